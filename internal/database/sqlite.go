package database

import (
	"database/sql"
	"fmt"
	"time"

	"smugdups/internal/database/migrations"
	"smugdups/internal/dups"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteJournal implements dups.Journal using SQLite.
type SQLiteJournal struct {
	db    *sql.DB
	path  string
	clock dups.Clock
}

var _ dups.Journal = (*SQLiteJournal)(nil)

// NewSQLiteJournal opens the journal at path, or ":memory:" for an
// in-memory journal, and brings its schema up to date.
func NewSQLiteJournal(path string, clock dups.Clock) (*SQLiteJournal, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating journal %s: %w", path, err)
	}
	if err := migrations.CheckDBMigrationStatus(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal %s: %w", path, err)
	}
	if clock == nil {
		clock = dups.RealClock{}
	}
	return &SQLiteJournal{db: db, path: path, clock: clock}, nil
}

// OpenConnection opens and configures a SQLite database connection with
// appropriate PRAGMAs. path can be a file path or ":memory:".
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database, and the
	// journal has a single writer anyway.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return db, nil
}

// Run operations

func (s *SQLiteJournal) CreateRun(uuid, operation, parameters string) (*dups.Run, error) {
	run := &dups.Run{
		UUID:       uuid,
		Operation:  operation,
		Parameters: parameters,
		StartedAt:  s.clock.Now().UTC(),
		Status:     dups.RunRunning,
	}
	res, err := s.db.Exec(
		`INSERT INTO runs (uuid, operation, parameters, started_at, status) VALUES (?, ?, ?, ?, ?)`,
		run.UUID, run.Operation, run.Parameters, run.StartedAt, run.Status)
	if err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	if run.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	return run, nil
}

func (s *SQLiteJournal) FinishRun(id int64, status string) error {
	res, err := s.db.Exec(`UPDATE runs SET finished_at = ?, status = ? WHERE id = ?`,
		s.clock.Now().UTC(), status, id)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing run %d: %w", id, sql.ErrNoRows)
	}
	return nil
}

func (s *SQLiteJournal) ListRuns(limit int) ([]*dups.Run, error) {
	rows, err := s.db.Query(
		`SELECT id, uuid, operation, parameters, started_at, finished_at, status
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*dups.Run
	for rows.Next() {
		var r dups.Run
		if err := rows.Scan(&r.ID, &r.UUID, &r.Operation, &r.Parameters, &r.StartedAt, &r.FinishedAt, &r.Status); err != nil {
			return nil, fmt.Errorf("listing runs: %w", err)
		}
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// Outcome operations

func (s *SQLiteJournal) RecordGroup(rec *dups.GroupRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO group_outcomes (run_id, hash, decision, keeper_id, state, reason, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Hash, string(rec.Decision), rec.KeeperID, string(rec.State), rec.Reason, s.recordedAt(rec.RecordedAt))
	if err != nil {
		return fmt.Errorf("recording group %s: %w", rec.Hash, err)
	}
	return nil
}

func (s *SQLiteJournal) RecordImage(rec *dups.ImageRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO image_outcomes (run_id, hash, image_id, file_name, source_album, target_album,
		                             action, status, error, archived_hash, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Hash, rec.ImageID, rec.FileName, rec.SourceAlbum, rec.TargetAlbum,
		string(rec.Action), string(rec.Status), rec.Error, rec.ArchivedHash, s.recordedAt(rec.RecordedAt))
	if err != nil {
		return fmt.Errorf("recording image %s: %w", rec.ImageID, err)
	}
	return nil
}

const imageColumns = `run_id, hash, image_id, file_name, source_album, target_album,
	action, status, error, archived_hash, recorded_at`

func (s *SQLiteJournal) ListImageRecords(runID int64) ([]*dups.ImageRecord, error) {
	return s.queryImages(`SELECT `+imageColumns+` FROM image_outcomes WHERE run_id = ? ORDER BY id`, runID)
}

// FindArchivedImages returns every image outcome that archived content with
// the given hash, newest first.
func (s *SQLiteJournal) FindArchivedImages(hash string) ([]*dups.ImageRecord, error) {
	return s.queryImages(`SELECT `+imageColumns+` FROM image_outcomes WHERE archived_hash = ? ORDER BY id DESC`, hash)
}

// ListGroupRecords returns the group outcomes of a run in insertion order.
func (s *SQLiteJournal) ListGroupRecords(runID int64) ([]*dups.GroupRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, hash, decision, keeper_id, state, reason, recorded_at
		 FROM group_outcomes WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing group outcomes: %w", err)
	}
	defer rows.Close()

	var recs []*dups.GroupRecord
	for rows.Next() {
		var r dups.GroupRecord
		var decision, state string
		if err := rows.Scan(&r.RunID, &r.Hash, &decision, &r.KeeperID, &state, &r.Reason, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("listing group outcomes: %w", err)
		}
		r.Decision = dups.Decision(decision)
		r.State = dups.GroupState(state)
		recs = append(recs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing group outcomes: %w", err)
	}
	return recs, nil
}

func (s *SQLiteJournal) queryImages(query string, args ...any) ([]*dups.ImageRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing image outcomes: %w", err)
	}
	defer rows.Close()

	var recs []*dups.ImageRecord
	for rows.Next() {
		var r dups.ImageRecord
		var action, status string
		if err := rows.Scan(&r.RunID, &r.Hash, &r.ImageID, &r.FileName, &r.SourceAlbum, &r.TargetAlbum,
			&action, &status, &r.Error, &r.ArchivedHash, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("listing image outcomes: %w", err)
		}
		r.Action = dups.Decision(action)
		r.Status = dups.OutcomeStatus(status)
		recs = append(recs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing image outcomes: %w", err)
	}
	return recs, nil
}

func (s *SQLiteJournal) recordedAt(t time.Time) time.Time {
	if t.IsZero() {
		return s.clock.Now().UTC()
	}
	return t.UTC()
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteJournal) Path() string {
	return s.path
}

// BackupTo creates a complete copy of the journal at destPath using VACUUM INTO.
func (s *SQLiteJournal) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up journal: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteJournal) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
