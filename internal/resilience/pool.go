package resilience

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool caps how many runtime processes run at once. Watchdog scans, message
// sends and snapshot refreshes share one Pool so a burst of dashboard
// requests cannot fork an unbounded number of CLI processes.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool creates a Pool that allows at most limit concurrent calls.
// A limit below 1 is treated as 1.
func NewPool(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit))}
}

// Run waits for a free slot, runs fn and releases the slot. It returns
// ctx.Err() if ctx ends while waiting. A nil Pool runs fn directly.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if p == nil || p.sem == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
