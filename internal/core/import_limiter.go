package core

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTooManyImports is returned when every import slot stays busy for the
// limiter's wait time.
var ErrTooManyImports = errors.New("too many concurrent imports")

const (
	DefaultMaxConcurrentImports = 3
	DefaultImportWait           = 30 * time.Second
)

// ImportLimiter bounds how many bulk imports write to the store at once.
type ImportLimiter struct {
	sem     *semaphore.Weighted
	max     int
	maxWait time.Duration
	active  atomic.Int64
}

// NewImportLimiter allows maxConcurrent imports. Callers that cannot get a
// slot within maxWait receive ErrTooManyImports.
func NewImportLimiter(maxConcurrent int, maxWait time.Duration) *ImportLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentImports
	}
	if maxWait <= 0 {
		maxWait = DefaultImportWait
	}
	return &ImportLimiter{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		max:     maxConcurrent,
		maxWait: maxWait,
	}
}

// Acquire takes a slot. The caller must Release it.
func (l *ImportLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyImports
	}
	l.active.Add(1)
	return nil
}

// Release returns a slot taken by Acquire.
func (l *ImportLimiter) Release() {
	l.active.Add(-1)
	l.sem.Release(1)
}

// Active reports the number of imports holding a slot.
func (l *ImportLimiter) Active() int {
	return int(l.active.Load())
}

// MaxConcurrent reports the slot count.
func (l *ImportLimiter) MaxConcurrent() int {
	return l.max
}

// WaitForDrain blocks until no import holds a slot or ctx ends. It is
// called during shutdown.
func (l *ImportLimiter) WaitForDrain(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, int64(l.max)); err != nil {
		return err
	}
	l.sem.Release(int64(l.max))
	return nil
}
