package database

import (
	"fmt"
	"os"
	"path/filepath"

	"smugdups/internal/config"
	"smugdups/internal/dups"
)

// JournalFileName is the journal's file name inside data_dir and its
// metadata name in the archive vault.
const JournalFileName = "journal.db"

// NewJournalFromConfig creates a journal based on the database config type.
func NewJournalFromConfig(cfg config.DatabaseConfig, clock dups.Clock) (*SQLiteJournal, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteJournal(filepath.Join(cfg.DataDir, JournalFileName), clock)
	case "memory":
		return NewSQLiteJournal(":memory:", clock)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
