package testutil

import (
	"smugdups/internal/dups"
	"smugdups/internal/spool"
)

// DefaultSpoolMaxSize is the default max size for test spools (10MB).
const DefaultSpoolMaxSize = 10 * 1024 * 1024

// NewTestSpool creates a new in-memory spool for testing.
func NewTestSpool() dups.Spool {
	return spool.NewMemorySpool(DefaultSpoolMaxSize)
}
