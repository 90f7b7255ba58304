// Package progress carries one-way notifications from the patch pipeline to
// an optional display consumer. Sends never block; when nobody is draining
// the channel the event is dropped. The pipeline's correctness never depends
// on a listener being present.
package progress

import "sync/atomic"

// EventKind identifies what happened.
type EventKind int

const (
	// ArchivePatched is emitted once per successfully rewritten archive.
	ArchivePatched EventKind = iota
)

// Event is a single pipeline notification.
type Event struct {
	Kind EventKind
	Path string
}

// Reporter is the producer half of the notification channel. The zero value
// of *Reporter (nil) is valid and discards all events.
type Reporter struct {
	ch      chan Event
	patched atomic.Uint64
}

// NewReporter creates a reporter with the given channel capacity.
func NewReporter(buffer int) *Reporter {
	return &Reporter{ch: make(chan Event, buffer)}
}

// NotifyPatched records a patched archive and offers the event to the
// consumer without blocking.
func (r *Reporter) NotifyPatched(path string) {
	if r == nil {
		return
	}
	r.patched.Add(1)
	select {
	case r.ch <- Event{Kind: ArchivePatched, Path: path}:
	default:
		// No active consumer, or consumer is behind. Dropping is fine.
	}
}

// Patched reports how many archives have been patched so far.
func (r *Reporter) Patched() uint64 {
	if r == nil {
		return 0
	}
	return r.patched.Load()
}

// Events exposes the consumer side of the channel.
func (r *Reporter) Events() <-chan Event {
	return r.ch
}

// Close signals consumers that no further events will arrive. The producer
// must not send after Close.
func (r *Reporter) Close() {
	if r != nil {
		close(r.ch)
	}
}
