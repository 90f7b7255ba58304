// Package patch applies an overlay directory tree onto a tree of ICE
// archives.
//
// The walker descends the overlay looking for directories whose name ends in
// the configured suffix; each such directory is a patch unit for a single
// archive and may contain a "1" and/or "2" subdirectory, one per archive
// group. For every unit the merger rebuilds the target archive: entries that
// have a same-named overlay file get the overlay's bytes, all other entries
// are carried over unchanged, and overlay files that match no existing entry
// are appended as new entries. Originals are copied to the backup root at
// most once before the first rewrite.
package patch
