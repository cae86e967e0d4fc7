package dups

import "io"

// Vault stores archived originals and their manifests.
// Content is addressed by the image's MD5 so archiving the same bytes twice
// is a no-op.
type Vault interface {
	// PutContent stores content identified by its checksum.
	// size is the number of bytes that will be read from r.
	PutContent(checksum string, r io.Reader, size int64) error

	// GetContent retrieves content by checksum and writes it to w.
	GetContent(checksum string, w io.Writer) error

	// HasContent reports whether content with the checksum is stored.
	HasContent(checksum string) (bool, error)

	// PutMetadata stores a named metadata item for an account, e.g.
	// "images/<id>.json" manifests or the "journal.db" snapshot.
	PutMetadata(account string, name string, r io.Reader, size int64) error

	// GetMetadata retrieves a named metadata item and writes it to w.
	GetMetadata(account string, name string, w io.Writer) error

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
