package dups_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"smugdups/internal/dups"
	"smugdups/internal/testutil"
)

func newRunner(host dups.PhotoHost, journal dups.Journal) *dups.Runner {
	return dups.NewRunner(newFinder(host, nil), newOrchestrator(host, nil, journal), journal, testutil.NewStubIDGenerator(), dups.NewNopLogger())
}

// blockOn makes the first call of op with key wait until the returned
// release func is called. started is closed when the call is reached.
func blockOn(host *testutil.MockPhotoHost, op, key string) (started <-chan struct{}, release func()) {
	reached := make(chan struct{})
	gate := make(chan struct{})
	var once sync.Once
	host.BeforeCall = func(o, k string) {
		if o == op && k == key {
			once.Do(func() {
				close(reached)
				<-gate
			})
		}
	}
	var releaseOnce sync.Once
	return reached, func() { releaseOnce.Do(func() { close(gate) }) }
}

func TestRunner_ScanThenResolve(t *testing.T) {
	ctx := context.Background()
	host := newLibrary()
	db := testutil.NewTestDatabase(t)
	r := newRunner(host, db)

	var mu sync.Mutex
	var updates int
	r.OnProgress(func(dups.Progress) {
		mu.Lock()
		updates++
		mu.Unlock()
	})

	runID, err := r.StartScan(ctx, []string{"A", "B", "C"})
	if err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}
	if runID != "id-1" {
		t.Errorf("run ID = %q, want id-1", runID)
	}
	r.Wait()
	if err := r.Err(); err != nil {
		t.Fatalf("scan error = %v", err)
	}

	groups := r.Groups()
	if len(groups) != 1 {
		t.Fatalf("len(Groups()) = %d, want 1", len(groups))
	}
	if r.LastScan() == nil || r.LastScan().ImagesScanned != 4 {
		t.Errorf("LastScan() = %+v", r.LastScan())
	}

	if _, err := r.StartResolve(ctx, []dups.ResolveDecision{{Hash: groups[0].Hash, Decision: "Move"}}); err != nil {
		t.Fatalf("StartResolve() error = %v", err)
	}
	r.Wait()
	if err := r.Err(); err != nil {
		t.Fatalf("resolve error = %v", err)
	}

	g, ok := r.Group(groups[0].Hash)
	if !ok {
		t.Fatal("Group() not found")
	}
	if g.State != dups.StateMoved {
		t.Errorf("State = %s, want moved", g.State)
	}
	if groups[0].State != dups.StatePending {
		t.Error("Groups() returned shared state")
	}
	if rep := r.LastReport(); rep == nil || rep.Moved != 1 {
		t.Errorf("LastReport() = %+v", rep)
	}

	status := r.Status()
	if status.Running || status.Operation != dups.OpResolve || status.Progress.Phase != dups.PhaseDone {
		t.Errorf("Status() = %+v", status)
	}

	runs, err := db.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	for _, run := range runs {
		if run.Status != dups.RunSuccess {
			t.Errorf("run %s status = %s, want %s", run.UUID, run.Status, dups.RunSuccess)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if updates == 0 {
		t.Error("no progress updates delivered")
	}
}

func TestRunner_Busy(t *testing.T) {
	ctx := context.Background()
	host := newLibrary()
	started, release := blockOn(host, testutil.OpListAlbumImages, "A")
	defer release()
	r := newRunner(host, nil)

	if _, err := r.StartScan(ctx, []string{"A", "B"}); err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}
	<-started

	if _, err := r.StartScan(ctx, []string{"A"}); !errors.Is(err, dups.ErrBusy) {
		t.Errorf("second StartScan() error = %v, want ErrBusy", err)
	}
	if s := r.Status(); !s.Running || s.Operation != dups.OpScan {
		t.Errorf("Status() = %+v", s)
	}

	release()
	r.Wait()
	if r.Status().Running {
		t.Error("still running after Wait()")
	}
}

func TestRunner_Cancel(t *testing.T) {
	ctx := context.Background()
	host := newLibrary()
	started, release := blockOn(host, testutil.OpListAlbumImages, "A")
	defer release()
	db := testutil.NewTestDatabase(t)
	r := newRunner(host, db)

	if r.Cancel() {
		t.Error("Cancel() on idle runner = true")
	}

	if _, err := r.StartScan(ctx, []string{"A", "B", "C"}); err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}
	<-started
	if !r.Cancel() {
		t.Error("Cancel() = false, want true")
	}
	if !r.Status().Cancelling {
		t.Error("Status().Cancelling = false")
	}
	release()
	r.Wait()

	scan := r.LastScan()
	if scan == nil || !scan.Cancelled {
		t.Fatalf("LastScan() = %+v, want cancelled", scan)
	}
	if len(scan.AlbumsScanned) != 1 {
		t.Errorf("AlbumsScanned = %v, want [A]", scan.AlbumsScanned)
	}

	runs, err := db.ListRuns(1)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 || runs[0].Status != dups.RunCancelled {
		t.Errorf("runs = %+v, want one cancelled run", runs)
	}
}

func TestRunner_ResolveValidation(t *testing.T) {
	ctx := context.Background()
	host := newLibrary()
	r := newRunner(host, nil)
	if _, err := r.StartScan(ctx, []string{"A", "B"}); err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}
	r.Wait()
	hash := r.Groups()[0].Hash

	if _, err := r.StartResolve(ctx, []dups.ResolveDecision{{Hash: "unknown", Decision: dups.DecisionMove}}); !errors.Is(err, dups.ErrNotFound) {
		t.Errorf("unknown hash error = %v, want ErrNotFound", err)
	}
	if _, err := r.StartResolve(ctx, []dups.ResolveDecision{{Hash: hash, Decision: "keep"}}); err == nil {
		t.Error("invalid decision error = nil")
	}
	if host.CallCount(testutil.OpMoveImages) != 0 {
		t.Error("host called for rejected resolve")
	}
}

func TestRunner_ResolveAfterRescan(t *testing.T) {
	ctx := context.Background()
	host := newLibrary()
	r := newRunner(host, nil)
	if _, err := r.StartScan(ctx, []string{"A", "B"}); err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}
	r.Wait()
	hash := r.Groups()[0].Hash

	started, release := blockOn(host, testutil.OpListAlbumImages, "A")
	defer release()
	if _, err := r.StartScan(ctx, []string{"A", "B"}); err != nil {
		t.Fatalf("second StartScan() error = %v", err)
	}
	<-started
	if _, err := r.StartResolve(ctx, []dups.ResolveDecision{{Hash: "unknown", Decision: dups.DecisionMove}}); !errors.Is(err, dups.ErrBusy) {
		t.Errorf("StartResolve() during scan error = %v, want ErrBusy", err)
	}
	release()
	r.Wait()

	if _, err := r.StartResolve(ctx, []dups.ResolveDecision{{Hash: hash, Decision: dups.DecisionMove}}); err != nil {
		t.Fatalf("StartResolve() error = %v", err)
	}
	r.Wait()
	if g, ok := r.Group(hash); !ok || g.State != dups.StateMoved {
		t.Errorf("Group(%s) = %+v, want the rescanned group moved", hash, g)
	}
	if rep := r.LastReport(); rep == nil || rep.Moved != 1 {
		t.Errorf("LastReport() = %+v", rep)
	}
}

func TestRunner_SetKeeper(t *testing.T) {
	ctx := context.Background()
	host := newLibrary()
	r := newRunner(host, nil)
	if _, err := r.StartScan(ctx, []string{"A", "B"}); err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}
	r.Wait()
	hash := r.Groups()[0].Hash

	if err := r.SetKeeper(hash, "b1"); err != nil {
		t.Fatalf("SetKeeper() error = %v", err)
	}
	if g, _ := r.Group(hash); g.KeeperID != "b1" {
		t.Errorf("KeeperID = %s, want b1", g.KeeperID)
	}
	if err := r.SetKeeper("unknown", "b1"); !errors.Is(err, dups.ErrNotFound) {
		t.Errorf("SetKeeper(unknown) error = %v, want ErrNotFound", err)
	}

	started, release := blockOn(host, testutil.OpCreateAlbum, "SmugDups Review 20240115")
	defer release()
	if _, err := r.StartResolve(ctx, []dups.ResolveDecision{{Hash: hash, Decision: dups.DecisionMove}}); err != nil {
		t.Fatalf("StartResolve() error = %v", err)
	}
	<-started
	if err := r.SetKeeper(hash, "a1"); !errors.Is(err, dups.ErrBusy) {
		t.Errorf("SetKeeper() during resolve error = %v, want ErrBusy", err)
	}
	release()
	r.Wait()

	if !contains(host.AlbumImageIDs("B"), "b1") || contains(host.AlbumImageIDs("A"), "a1") {
		t.Errorf("A = %v, B = %v; want a1 moved and b1 kept", host.AlbumImageIDs("A"), host.AlbumImageIDs("B"))
	}
}
