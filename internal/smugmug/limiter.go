package smugmug

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Clock is the time source for write spacing and retry backoff.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Sleep blocks for d, returning early if ctx is cancelled.
func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// writeLimiter spaces write calls by at least interval. It reserves against
// the client's clock so tests control time.
type writeLimiter struct {
	limiter *rate.Limiter
	clock   Clock
}

func newWriteLimiter(interval time.Duration, clock Clock) *writeLimiter {
	return &writeLimiter{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		clock:   clock,
	}
}

func (l *writeLimiter) wait(ctx context.Context) error {
	now := l.clock.Now()
	r := l.limiter.ReserveN(now, 1)
	if err := l.clock.Sleep(ctx, r.DelayFrom(now)); err != nil {
		r.CancelAt(l.clock.Now())
		return err
	}
	return nil
}
