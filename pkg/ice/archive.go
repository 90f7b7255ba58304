package ice

import (
	"encoding/binary"
	"fmt"
	"io"
)

var magic = [4]byte{'I', 'C', 'E', 0}

const (
	flagGroup1Compressed = 1 << 0
	flagGroup2Compressed = 1 << 1
	flagEncrypted        = 1 << 2
	flagOodle            = 1 << 3
)

// header layout: 4-byte magic, u32 version, u8 flags, 8-byte IV, then per
// group a u32 entry count and u32 stored payload length.
const headerSize = 4 + 4 + 1 + 8 + 2*(4+4)

// Archive is a loaded ICE container. It is immutable; patching builds a
// whole new archive with Writer and swaps the file on disk.
type Archive struct {
	version int
	flags   byte
	iv      [8]byte
	counts  [2]int
	stored  [2][]byte
}

// Load parses an archive from r. The full contents are read into memory.
func Load(r io.Reader) (*Archive, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	if len(raw) < headerSize {
		return nil, fmt.Errorf("archive too short: %d bytes", len(raw))
	}
	if [4]byte(raw[0:4]) != magic {
		return nil, fmt.Errorf("bad magic %q", raw[0:4])
	}

	a := &Archive{
		version: int(binary.LittleEndian.Uint32(raw[4:8])),
		flags:   raw[8],
	}
	copy(a.iv[:], raw[9:17])

	offset := headerSize
	var lens [2]int
	for i := range Groups {
		base := 17 + i*8
		a.counts[i] = int(binary.LittleEndian.Uint32(raw[base : base+4]))
		lens[i] = int(binary.LittleEndian.Uint32(raw[base+4 : base+8]))
	}
	for i := range Groups {
		if len(raw) < offset+lens[i] {
			return nil, fmt.Errorf("truncated %s: want %d bytes, have %d", Groups[i], lens[i], len(raw)-offset)
		}
		a.stored[i] = raw[offset : offset+lens[i]]
		offset += lens[i]
	}
	if offset != len(raw) {
		return nil, fmt.Errorf("archive has %d trailing bytes", len(raw)-offset)
	}
	return a, nil
}

// Version reports the archive format version.
func (a *Archive) Version() int { return a.version }

// IsCompressed reports whether the given group's payload is compressed.
func (a *Archive) IsCompressed(g Group) bool {
	if g == Group1 {
		return a.flags&flagGroup1Compressed != 0
	}
	return a.flags&flagGroup2Compressed != 0
}

// IsEncrypted reports whether the group payloads are encrypted.
func (a *Archive) IsEncrypted() bool { return a.flags&flagEncrypted != 0 }

// IsOodle reports whether compressed groups use the Oodle-path codec.
func (a *Archive) IsOodle() bool { return a.flags&flagOodle != 0 }

// GroupCount reports the number of entries stored in a group.
func (a *Archive) GroupCount(g Group) int { return a.counts[g] }

// DecompressGroup returns a group's plain payload, reversing encryption and
// compression as flagged. The result is suitable for Entries.
func (a *Archive) DecompressGroup(g Group) ([]byte, error) {
	payload := a.stored[g]

	if a.IsEncrypted() {
		var err error
		payload, err = cryptPayload(payload, a.iv, g)
		if err != nil {
			return nil, fmt.Errorf("decrypt %s: %w", g, err)
		}
	}

	if a.IsCompressed(g) {
		var err error
		payload, err = decompressPayload(payload, a.IsOodle())
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", g, err)
		}
	}

	return payload, nil
}
