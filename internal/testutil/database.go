package testutil

import (
	"testing"

	"smugdups/internal/database"
)

// NewTestDatabase creates a new in-memory journal with schema applied.
// The journal is automatically closed when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLiteJournal {
	t.Helper()

	j, err := database.NewSQLiteJournal(":memory:", FixedClock())
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}
