// Package ice reads and writes ICE asset containers.
//
// An ICE archive holds two groups of named entries. Each group is stored as a
// single payload that may be compressed (LZ4 or, for Oodle-flagged archives,
// zstd) and encrypted (Blowfish in CTR mode). The package exposes a read side
// (Archive, Entries) and a write side (Writer) used by the patch pipeline to
// rebuild archives entry by entry.
package ice
