package spool

import "io"

// spoolStore abstracts the storage mechanics for a spool.
// Concurrency is managed by the caller (spool.mu), so stores
// do not need to be safe for concurrent use.
type spoolStore interface {
	// StoreContent reads from r, computes MD5, and stores content.
	// Deduplicates if checksum already exists. Returns checksum and size.
	StoreContent(r io.Reader) (checksum string, size int64, err error)

	// RemoveContent removes stored content by checksum (best-effort).
	RemoveContent(checksum string)

	// OpenContent returns a reader for stored content by checksum.
	OpenContent(checksum string) (io.ReadCloser, error)

	// ContentSize returns total bytes of all stored content.
	ContentSize() (int64, error)
}
