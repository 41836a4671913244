// Package ratelimit bounds concurrent calls to an external service and
// spaces out their start times.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Limiter combines a counting semaphore with a minimum interval between
// consecutive grants.
type Limiter struct {
	sem         *semaphore.Weighted
	minInterval time.Duration

	mu   sync.Mutex
	last time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// New creates a Limiter allowing maxConcurrent holders and at least
// minInterval between grants.
func New(maxConcurrent int, minInterval time.Duration) *Limiter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Limiter{
		sem:         semaphore.NewWeighted(int64(maxConcurrent)),
		minInterval: minInterval,
		now:         time.Now,
		sleep:       Sleep,
	}
}

// Acquire blocks until a permit is available and the pacing interval has
// elapsed. The returned release func must be called exactly once.
func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	l.mu.Lock()
	if wait := l.minInterval - l.now().Sub(l.last); !l.last.IsZero() && wait > 0 {
		slog.Debug("ratelimit.wait", "seconds", wait.Seconds())
		if err := l.sleep(ctx, wait); err != nil {
			l.mu.Unlock()
			l.sem.Release(1)
			return nil, err
		}
	}
	l.last = l.now()
	l.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { l.sem.Release(1) }) }, nil
}

// Do runs fn while holding a permit.
func (l *Limiter) Do(ctx context.Context, fn func(context.Context) error) error {
	release, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
