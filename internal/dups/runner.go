package dups

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Job operations.
const (
	OpScan    = "scan"
	OpResolve = "resolve"
)

// ResolveDecision is a decision addressed to a group of the current scan by hash.
type ResolveDecision struct {
	Hash      string   `json:"hash"`
	Decision  Decision `json:"decision"`
	Confirmed bool     `json:"confirmed"`
}

// Status is a snapshot of the runner.
type Status struct {
	Running    bool     `json:"running"`
	Cancelling bool     `json:"cancelling"`
	Operation  string   `json:"operation,omitempty"`
	RunID      string   `json:"run_id,omitempty"`
	Progress   Progress `json:"progress"`
	Error      string   `json:"error,omitempty"`
}

// Runner runs one scan or resolve job at a time on a background goroutine
// and owns the current duplicate groups between jobs.
type Runner struct {
	finder       *Finder
	orchestrator *Orchestrator
	journal      Journal
	ids          IDGenerator
	logger       Logger

	stop atomic.Bool

	mu         sync.Mutex
	active     bool
	op         string
	runID      string
	progress   Progress
	lastErr    error
	done       chan struct{}
	groups     []*DuplicateGroup
	lastScan   *ScanResult
	lastReport *Report
	onProgress ProgressFunc
}

// NewRunner creates a Runner. journal may be nil.
func NewRunner(finder *Finder, orchestrator *Orchestrator, journal Journal, ids IDGenerator, logger Logger) *Runner {
	done := make(chan struct{})
	close(done)
	return &Runner{
		finder:       finder,
		orchestrator: orchestrator,
		journal:      journal,
		ids:          ids,
		logger:       logger,
		done:         done,
	}
}

// OnProgress registers fn to receive every progress update. It is called
// on the job goroutine.
func (r *Runner) OnProgress(fn ProgressFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onProgress = fn
}

// StartScan starts scanning albumIDs. It returns the run ID, or ErrBusy
// when a job is already active.
func (r *Runner) StartScan(ctx context.Context, albumIDs []string) (string, error) {
	runID, err := r.begin(OpScan, nil)
	if err != nil {
		return "", err
	}

	go func() {
		dbRun := r.openRun(runID, OpScan, map[string]any{"album_ids": albumIDs})
		result, err := r.finder.Scan(ctx, ScanRequest{
			AlbumIDs: albumIDs,
			Progress: r.update,
			Stop:     r.stop.Load,
		})

		r.mu.Lock()
		if result != nil {
			r.groups = result.Groups
			r.lastScan = result
			r.lastReport = nil
		}
		r.mu.Unlock()

		r.finish(dbRun, err, result != nil && result.Cancelled)
	}()
	return runID, nil
}

// StartResolve applies decisions to the groups of the last scan. Unknown
// hashes are rejected before the job starts.
func (r *Runner) StartResolve(ctx context.Context, decisions []ResolveDecision) (string, error) {
	decisions = append([]ResolveDecision(nil), decisions...)
	for i, d := range decisions {
		decision, err := ParseDecision(string(d.Decision))
		if err != nil {
			return "", err
		}
		decisions[i].Decision = decision
	}

	// The job works on copies; states are copied back as groups complete.
	var shared []*DuplicateGroup
	var resolutions []Resolution
	runID, err := r.begin(OpResolve, func() error {
		byHash := make(map[string]*DuplicateGroup, len(r.groups))
		for _, g := range r.groups {
			byHash[g.Hash] = g
		}
		for _, d := range decisions {
			g, ok := byHash[d.Hash]
			if !ok {
				return fmt.Errorf("group %s: %w", d.Hash, ErrNotFound)
			}
			shared = append(shared, g)
			resolutions = append(resolutions, Resolution{Group: g.Clone(), Decision: d.Decision, Confirmed: d.Confirmed})
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	syncStates := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, res := range resolutions {
			shared[i].State = res.Group.State
			shared[i].Reason = res.Group.Reason
		}
	}

	go func() {
		dbRun := r.openRun(runID, OpResolve, map[string]any{"decisions": decisions})
		var journalID int64
		if dbRun != nil {
			journalID = dbRun.ID
		}

		report, err := r.orchestrator.Resolve(ctx, ResolveRequest{
			RunID:       journalID,
			Resolutions: resolutions,
			Progress: func(p Progress) {
				syncStates()
				r.update(p)
			},
			Stop: r.stop.Load,
		})
		syncStates()

		r.mu.Lock()
		r.lastReport = report
		r.mu.Unlock()

		r.finish(dbRun, err, report != nil && report.Cancelled)
	}()
	return runID, nil
}

// Cancel asks the active job to stop at the next album or group boundary.
// In-flight host calls complete. It reports whether a job was active.
func (r *Runner) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return false
	}
	r.stop.Store(true)
	r.logger.Info("cancellation requested", "run", r.runID, "operation", r.op)
	return true
}

// Wait blocks until no job is active.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	<-done
}

// Status returns a snapshot of the current or last job.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Status{
		Running:    r.active,
		Cancelling: r.active && r.stop.Load(),
		Operation:  r.op,
		RunID:      r.runID,
		Progress:   r.progress,
	}
	if r.lastErr != nil {
		s.Error = r.lastErr.Error()
	}
	return s
}

// Err returns the error of the last finished job.
func (r *Runner) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Groups returns copies of the current duplicate groups.
func (r *Runner) Groups() []*DuplicateGroup {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*DuplicateGroup, len(r.groups))
	for i, g := range r.groups {
		out[i] = g.Clone()
	}
	return out
}

// Group returns a copy of the group with the given hash.
func (r *Runner) Group(hash string) (*DuplicateGroup, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.groups {
		if g.Hash == hash {
			return g.Clone(), true
		}
	}
	return nil, false
}

// SetKeeper changes the keeper of a pending group. It is refused while a
// resolve job is running.
func (r *Runner) SetKeeper(hash, imageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active && r.op == OpResolve {
		return ErrBusy
	}
	for _, g := range r.groups {
		if g.Hash == hash {
			return g.SetKeeper(imageID)
		}
	}
	return fmt.Errorf("group %s: %w", hash, ErrNotFound)
}

// LastScan returns the result of the last scan, or nil.
func (r *Runner) LastScan() *ScanResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastScan
}

// LastReport returns the report of the last resolve, or nil.
func (r *Runner) LastReport() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastReport
}

// begin marks a job of kind op active. prepare, when set, runs under the
// same lock after the busy check; its error aborts the start.
func (r *Runner) begin(op string, prepare func() error) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return "", fmt.Errorf("%s already running: %w", r.op, ErrBusy)
	}
	if prepare != nil {
		if err := prepare(); err != nil {
			return "", err
		}
	}
	r.active = true
	r.op = op
	r.runID = r.ids.New()
	r.progress = Progress{Phase: PhaseScan, Message: "Starting"}
	if op == OpResolve {
		r.progress.Phase = PhaseResolve
	}
	r.lastErr = nil
	r.done = make(chan struct{})
	r.stop.Store(false)
	r.logger.Info("job started", "run", r.runID, "operation", op)
	return r.runID, nil
}

func (r *Runner) finish(dbRun *Run, err error, cancelled bool) {
	status := RunSuccess
	switch {
	case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		status = RunCancelled
	case err != nil:
		status = RunError
	case cancelled:
		status = RunCancelled
	}
	if dbRun != nil {
		if ferr := r.journal.FinishRun(dbRun.ID, status); ferr != nil {
			r.logger.Warn("journal write failed", "run", dbRun.UUID, "error", ferr)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastErr = err
	r.active = false
	if err != nil {
		r.logger.Error("job failed", "run", r.runID, "operation", r.op, "error", err)
	} else {
		r.logger.Info("job finished", "run", r.runID, "operation", r.op, "status", status)
	}
	close(r.done)
}

func (r *Runner) update(p Progress) {
	r.mu.Lock()
	r.progress = p
	fn := r.onProgress
	r.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

func (r *Runner) openRun(runID, op string, params map[string]any) *Run {
	if r.journal == nil {
		return nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		data = []byte("{}")
	}
	run, err := r.journal.CreateRun(runID, op, string(data))
	if err != nil {
		r.logger.Warn("journal write failed", "run", runID, "error", err)
		return nil
	}
	return run
}
