package ice

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Entry is one named payload inside a group.
type Entry struct {
	Name string
	Ext  string
	Data []byte
}

// entry stream layout: u16 name length, u16 ext length, u32 data length,
// then name, ext and data bytes. Integers are little-endian.
const entryHeaderSize = 8

func appendEntry(dst []byte, name, ext string, data []byte) ([]byte, error) {
	if len(name) > math.MaxUint16 {
		return nil, fmt.Errorf("entry name %q exceeds %d bytes", name, math.MaxUint16)
	}
	if len(ext) > math.MaxUint16 {
		return nil, fmt.Errorf("entry extension %q exceeds %d bytes", ext, math.MaxUint16)
	}
	if int64(len(data)) > math.MaxUint32 {
		return nil, fmt.Errorf("entry %q payload exceeds %d bytes", name, uint32(math.MaxUint32))
	}

	var hdr [entryHeaderSize]byte
	binary.LittleEndian.PutUint16(hdr[0:2], uint16(len(name)))
	binary.LittleEndian.PutUint16(hdr[2:4], uint16(len(ext)))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(data)))

	dst = append(dst, hdr[:]...)
	dst = append(dst, name...)
	dst = append(dst, ext...)
	dst = append(dst, data...)
	return dst, nil
}

// Entries parses a decompressed group payload into its entries, in stored
// order. count must match the entry count recorded in the archive header.
func Entries(payload []byte, count int) ([]Entry, error) {
	entries := make([]Entry, 0, count)
	rest := payload

	for i := 0; i < count; i++ {
		if len(rest) < entryHeaderSize {
			return nil, fmt.Errorf("truncated group payload: entry %d of %d", i, count)
		}
		nameLen := int(binary.LittleEndian.Uint16(rest[0:2]))
		extLen := int(binary.LittleEndian.Uint16(rest[2:4]))
		dataLen := int(binary.LittleEndian.Uint32(rest[4:8]))
		rest = rest[entryHeaderSize:]

		if len(rest) < nameLen+extLen+dataLen {
			return nil, fmt.Errorf("truncated group payload: entry %d of %d", i, count)
		}

		entries = append(entries, Entry{
			Name: string(rest[:nameLen]),
			Ext:  string(rest[nameLen : nameLen+extLen]),
			Data: rest[nameLen+extLen : nameLen+extLen+dataLen],
		})
		rest = rest[nameLen+extLen+dataLen:]
	}

	if len(rest) != 0 {
		return nil, fmt.Errorf("group payload has %d trailing bytes after %d entries", len(rest), count)
	}
	return entries, nil
}
