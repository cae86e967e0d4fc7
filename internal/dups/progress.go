package dups

import "context"

// Phase names the stage a job is in.
type Phase string

const (
	PhaseScan    Phase = "scan"
	PhaseGroup   Phase = "group"
	PhaseResolve Phase = "resolve"
	PhaseDone    Phase = "done"
)

// Progress is an incremental status update from a running job.
type Progress struct {
	Phase   Phase
	Done    int
	Total   int
	Message string
}

// Percent returns completion of the current phase, 0-100.
func (p Progress) Percent() int {
	if p.Phase == PhaseDone {
		return 100
	}
	if p.Total <= 0 {
		return 0
	}
	return p.Done * 100 / p.Total
}

// ProgressFunc receives progress updates. It is called on the job's goroutine.
type ProgressFunc func(Progress)

// StopFunc reports whether cooperative cancellation was requested. It is
// checked between albums and between groups so in-flight calls complete.
type StopFunc func() bool

func reportProgress(fn ProgressFunc, p Progress) {
	if fn != nil {
		fn(p)
	}
}

func stopRequested(ctx context.Context, stop StopFunc) bool {
	if ctx.Err() != nil {
		return true
	}
	return stop != nil && stop()
}
