package dups

import (
	"database/sql"
	"time"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunSuccess   = "success"
	RunCancelled = "cancelled"
	RunError     = "error"
)

// Run is one scan or resolve job as recorded in the journal.
type Run struct {
	ID         int64
	UUID       string
	Operation  string // "scan" or "resolve"
	Parameters string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Status     string
}

// GroupRecord is the journal entry for one resolved group.
type GroupRecord struct {
	RunID      int64
	Hash       string
	Decision   Decision
	KeeperID   string
	State      GroupState
	Reason     string
	RecordedAt time.Time
}

// ImageRecord is the journal entry for one moved or deleted image.
type ImageRecord struct {
	RunID        int64
	Hash         string
	ImageID      string
	FileName     string
	SourceAlbum  string
	TargetAlbum  string
	Action       Decision
	Status       OutcomeStatus
	Error        string
	ArchivedHash string
	RecordedAt   time.Time
}

// Journal records what each run did. It is an audit trail only and is never
// consulted to decide host state.
type Journal interface {
	// CreateRun starts a run record with status RunRunning.
	CreateRun(uuid, operation, parameters string) (*Run, error)

	// FinishRun sets the final status and finish time of a run.
	FinishRun(id int64, status string) error

	// ListRuns returns the most recent runs, newest first.
	ListRuns(limit int) ([]*Run, error)

	// RecordGroup appends a group outcome.
	RecordGroup(rec *GroupRecord) error

	// RecordImage appends an image outcome.
	RecordImage(rec *ImageRecord) error

	// ListImageRecords returns the image outcomes of a run in insertion order.
	ListImageRecords(runID int64) ([]*ImageRecord, error)

	// Close closes the journal.
	Close() error
}
