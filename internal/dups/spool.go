package dups

import "io"

// Spool holds downloaded originals while they are verified and archived.
// It enforces a maximum total size so a large batch cannot fill the disk.
type Spool interface {
	// Store reads r to the end, computes its MD5 and keeps the bytes.
	// Returns the lower-case hex checksum and the number of bytes stored.
	Store(r io.Reader) (checksum string, size int64, err error)

	// Open returns a reader for spooled content.
	Open(checksum string) (io.ReadCloser, error)

	// Remove drops spooled content (best-effort).
	Remove(checksum string)

	// Size returns the total bytes currently spooled.
	Size() (int64, error)
}
