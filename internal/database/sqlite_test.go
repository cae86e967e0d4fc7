package database

import (
	"path/filepath"
	"testing"
	"time"

	"smugdups/internal/config"
	"smugdups/internal/dups"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// newTestJournal creates a new in-memory journal with schema applied.
func newTestJournal(t *testing.T) *SQLiteJournal {
	t.Helper()

	j, err := NewSQLiteJournal(":memory:", fixedClock{testNow})
	if err != nil {
		t.Fatalf("failed to create journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestSQLiteJournal_Runs(t *testing.T) {
	t.Run("create and finish", func(t *testing.T) {
		j := newTestJournal(t)

		run, err := j.CreateRun("run-1", dups.OpScan, `{"album_ids":["a"]}`)
		if err != nil {
			t.Fatalf("CreateRun() error = %v", err)
		}
		if run.ID == 0 {
			t.Error("CreateRun() returned run without ID")
		}
		if run.Status != dups.RunRunning {
			t.Errorf("Status = %q, want %q", run.Status, dups.RunRunning)
		}

		if err := j.FinishRun(run.ID, dups.RunSuccess); err != nil {
			t.Fatalf("FinishRun() error = %v", err)
		}

		runs, err := j.ListRuns(10)
		if err != nil {
			t.Fatalf("ListRuns() error = %v", err)
		}
		if len(runs) != 1 {
			t.Fatalf("len(ListRuns()) = %d, want 1", len(runs))
		}
		got := runs[0]
		if got.UUID != "run-1" || got.Operation != dups.OpScan || got.Status != dups.RunSuccess {
			t.Errorf("run = %+v, want run-1/scan/success", got)
		}
		if !got.StartedAt.Equal(testNow) {
			t.Errorf("StartedAt = %v, want %v", got.StartedAt, testNow)
		}
		if !got.FinishedAt.Valid || !got.FinishedAt.Time.Equal(testNow) {
			t.Errorf("FinishedAt = %+v, want %v", got.FinishedAt, testNow)
		}
	})

	t.Run("newest first with limit", func(t *testing.T) {
		j := newTestJournal(t)
		for _, id := range []string{"r1", "r2", "r3"} {
			if _, err := j.CreateRun(id, dups.OpResolve, "{}"); err != nil {
				t.Fatalf("CreateRun(%s) error = %v", id, err)
			}
		}

		runs, err := j.ListRuns(2)
		if err != nil {
			t.Fatalf("ListRuns() error = %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("len(ListRuns(2)) = %d, want 2", len(runs))
		}
		if runs[0].UUID != "r3" || runs[1].UUID != "r2" {
			t.Errorf("ListRuns order = %s, %s; want r3, r2", runs[0].UUID, runs[1].UUID)
		}
		if runs[0].FinishedAt.Valid {
			t.Error("unfinished run has FinishedAt set")
		}
	})

	t.Run("finish unknown run", func(t *testing.T) {
		j := newTestJournal(t)
		if err := j.FinishRun(999, dups.RunError); err == nil {
			t.Error("FinishRun() on unknown run expected error")
		}
	})

	t.Run("duplicate uuid", func(t *testing.T) {
		j := newTestJournal(t)
		j.CreateRun("same", dups.OpScan, "{}")
		if _, err := j.CreateRun("same", dups.OpScan, "{}"); err == nil {
			t.Error("CreateRun() with duplicate uuid expected error")
		}
	})
}

func TestSQLiteJournal_Outcomes(t *testing.T) {
	j := newTestJournal(t)
	run, err := j.CreateRun("run-1", dups.OpResolve, "{}")
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	images := []*dups.ImageRecord{
		{RunID: run.ID, Hash: "h1", ImageID: "img-2", FileName: "a.jpg", SourceAlbum: "al-1", TargetAlbum: "rev", Action: dups.DecisionMove, Status: dups.OutcomeMoved},
		{RunID: run.ID, Hash: "h1", ImageID: "img-3", FileName: "a.jpg", SourceAlbum: "al-2", TargetAlbum: "rev", Action: dups.DecisionMove, Status: dups.OutcomeUnverified, Error: "still in source"},
		{RunID: run.ID, Hash: "h2", ImageID: "img-5", FileName: "b.jpg", SourceAlbum: "al-1", Action: dups.DecisionDelete, Status: dups.OutcomeDeleted, ArchivedHash: "h2"},
	}
	for _, rec := range images {
		if err := j.RecordImage(rec); err != nil {
			t.Fatalf("RecordImage(%s) error = %v", rec.ImageID, err)
		}
	}
	if err := j.RecordGroup(&dups.GroupRecord{RunID: run.ID, Hash: "h1", Decision: dups.DecisionMove, KeeperID: "img-1", State: dups.StatePartial, Reason: "1 of 2"}); err != nil {
		t.Fatalf("RecordGroup() error = %v", err)
	}

	t.Run("image records in insertion order", func(t *testing.T) {
		got, err := j.ListImageRecords(run.ID)
		if err != nil {
			t.Fatalf("ListImageRecords() error = %v", err)
		}
		if len(got) != len(images) {
			t.Fatalf("len(ListImageRecords()) = %d, want %d", len(got), len(images))
		}
		for i, rec := range got {
			if rec.ImageID != images[i].ImageID || rec.Status != images[i].Status || rec.Action != images[i].Action {
				t.Errorf("record %d = %+v, want %+v", i, rec, images[i])
			}
			if !rec.RecordedAt.Equal(testNow) {
				t.Errorf("record %d RecordedAt = %v, want %v", i, rec.RecordedAt, testNow)
			}
		}
		if got[1].Error != "still in source" {
			t.Errorf("Error = %q, want %q", got[1].Error, "still in source")
		}
	})

	t.Run("group records", func(t *testing.T) {
		got, err := j.ListGroupRecords(run.ID)
		if err != nil {
			t.Fatalf("ListGroupRecords() error = %v", err)
		}
		if len(got) != 1 || got[0].State != dups.StatePartial || got[0].KeeperID != "img-1" {
			t.Errorf("ListGroupRecords() = %+v, want one partial group keeping img-1", got)
		}
	})

	t.Run("find archived", func(t *testing.T) {
		got, err := j.FindArchivedImages("h2")
		if err != nil {
			t.Fatalf("FindArchivedImages() error = %v", err)
		}
		if len(got) != 1 || got[0].ImageID != "img-5" {
			t.Errorf("FindArchivedImages(h2) = %+v, want img-5", got)
		}
	})

	t.Run("unknown run rejected", func(t *testing.T) {
		err := j.RecordImage(&dups.ImageRecord{RunID: 999, Hash: "x", ImageID: "y", SourceAlbum: "z", Action: dups.DecisionMove, Status: dups.OutcomeMoved})
		if err == nil {
			t.Error("RecordImage() for unknown run expected error")
		}
	})
}

func TestSQLiteJournal_BackupTo(t *testing.T) {
	j := newTestJournal(t)
	if _, err := j.CreateRun("run-1", dups.OpScan, "{}"); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	dest := filepath.Join(t.TempDir(), "snapshot.db")
	if err := j.BackupTo(dest); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	copyJ, err := NewSQLiteJournal(dest, fixedClock{testNow})
	if err != nil {
		t.Fatalf("opening snapshot: %v", err)
	}
	defer copyJ.Close()

	runs, err := copyJ.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns() on snapshot error = %v", err)
	}
	if len(runs) != 1 || runs[0].UUID != "run-1" {
		t.Errorf("snapshot runs = %+v, want run-1", runs)
	}
}

func TestNewJournalFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.DatabaseConfig
		wantErr bool
	}{
		{"sqlite", config.DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(t.TempDir(), "db")}, false},
		{"memory", config.DatabaseConfig{Type: "memory"}, false},
		{"sqlite without data dir", config.DatabaseConfig{Type: "sqlite"}, true},
		{"unknown", config.DatabaseConfig{Type: "postgres"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, err := NewJournalFromConfig(tt.cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewJournalFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if j != nil {
				j.Close()
			}
		})
	}
}
