package progress

import (
	"fmt"

	"github.com/pterm/pterm"
)

// Display consumes reporter events on its own goroutine and renders a live
// count of patched archives. It is strictly a subscriber; the patch pipeline
// never waits on it.
type Display struct {
	done chan struct{}
}

// StartDisplay begins rendering events from r until the reporter is closed.
func StartDisplay(r *Reporter) *Display {
	d := &Display{done: make(chan struct{})}

	spinner, err := pterm.DefaultSpinner.Start("Patching archives...")
	if err != nil {
		// Degraded terminal; fall back to counting silently.
		spinner = nil
	}

	go func() {
		defer close(d.done)
		var count uint64
		for ev := range r.Events() {
			if ev.Kind != ArchivePatched {
				continue
			}
			count++
			if spinner != nil {
				spinner.UpdateText(fmt.Sprintf("Patched %d archives (%s)", count, ev.Path))
			}
		}
		if spinner != nil {
			spinner.Success(fmt.Sprintf("Patched %d archives", count))
		}
	}()

	return d
}

// Wait blocks until the display has drained all events and stopped.
func (d *Display) Wait() {
	<-d.done
}
