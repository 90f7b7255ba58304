package ice

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Writer incrementally builds a new archive. Entries are added with
// BeginFile and the finished container is emitted by Finish. The archive is
// assembled fully in memory; nothing touches the output stream before
// Finish.
type Writer struct {
	version  int
	compress bool
	encrypt  bool
	oodle    bool

	payloads [2][]byte
	counts   [2]int
}

// NewWriter starts a new archive with the given format version and output
// flags. When compress is set, oodle selects which codec both groups use.
func NewWriter(version int, compress, encrypt, oodle bool) (*Writer, error) {
	if version < 0 || int64(version) > math.MaxUint32 {
		return nil, fmt.Errorf("archive version %d out of range", version)
	}
	if oodle && !compress {
		return nil, fmt.Errorf("oodle flag requires compression")
	}
	return &Writer{
		version:  version,
		compress: compress,
		encrypt:  encrypt,
		oodle:    oodle,
	}, nil
}

// EntryWriter collects the bytes of one entry. Writes are buffered; the
// entry joins the archive when Finish is called.
type EntryWriter struct {
	w     *Writer
	group Group
	name  string
	ext   string
	buf   bytes.Buffer
}

// BeginFile starts a new entry in the given group. The caller must invoke
// Finish on the returned EntryWriter before beginning the next entry.
func (w *Writer) BeginFile(name, ext string, g Group) *EntryWriter {
	return &EntryWriter{w: w, group: g, name: name, ext: ext}
}

// Write implements io.Writer.
func (e *EntryWriter) Write(p []byte) (int, error) {
	return e.buf.Write(p)
}

// Finish appends the buffered entry to its group.
func (e *EntryWriter) Finish() error {
	payload, err := appendEntry(e.w.payloads[e.group], e.name, e.ext, e.buf.Bytes())
	if err != nil {
		return err
	}
	e.w.payloads[e.group] = payload
	e.w.counts[e.group]++
	return nil
}

// Finish encodes the archive and writes it to out in one pass.
func (w *Writer) Finish(out io.Writer) error {
	var iv [8]byte
	if w.encrypt {
		if _, err := rand.Read(iv[:]); err != nil {
			return fmt.Errorf("generate archive IV: %w", err)
		}
	}

	var flags byte
	if w.compress {
		flags |= flagGroup1Compressed | flagGroup2Compressed
	}
	if w.encrypt {
		flags |= flagEncrypted
	}
	if w.oodle {
		flags |= flagOodle
	}

	var stored [2][]byte
	for i, g := range Groups {
		payload := w.payloads[i]
		if w.compress {
			var err error
			payload, err = compressPayload(payload, w.oodle)
			if err != nil {
				return fmt.Errorf("compress %s: %w", g, err)
			}
		}
		if w.encrypt {
			var err error
			payload, err = cryptPayload(payload, iv, g)
			if err != nil {
				return fmt.Errorf("encrypt %s: %w", g, err)
			}
		}
		if int64(len(payload)) > math.MaxUint32 {
			return fmt.Errorf("%s stored payload exceeds %d bytes", g, uint32(math.MaxUint32))
		}
		stored[i] = payload
	}

	hdr := make([]byte, headerSize)
	copy(hdr[0:4], magic[:])
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(w.version))
	hdr[8] = flags
	copy(hdr[9:17], iv[:])
	for i := range Groups {
		base := 17 + i*8
		binary.LittleEndian.PutUint32(hdr[base:base+4], uint32(w.counts[i]))
		binary.LittleEndian.PutUint32(hdr[base+4:base+8], uint32(len(stored[i])))
	}

	if _, err := out.Write(hdr); err != nil {
		return fmt.Errorf("write archive header: %w", err)
	}
	for i, g := range Groups {
		if _, err := out.Write(stored[i]); err != nil {
			return fmt.Errorf("write %s: %w", g, err)
		}
	}
	return nil
}
