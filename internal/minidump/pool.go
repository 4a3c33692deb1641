package minidump

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"
)

// Result is one summarization outcome.
type Result struct {
	Summary  Summary
	Analysis *Analysis
}

// Pool runs summarizations off the caller's goroutine with bounded
// parallelism, so large snapshots cannot starve unrelated requests.
type Pool struct {
	sem     *semaphore.Weighted
	timeout time.Duration
}

// NewPool returns a pool with the given number of slots (NumCPU when <= 0).
// A positive timeout bounds each call in addition to the caller's context.
func NewPool(workers int, timeout time.Duration) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers)), timeout: timeout}
}

// Summarize waits for a free slot, then decodes data. If ctx ends first the
// call returns ctx.Err(); a decode already running finishes in the
// background and releases its slot.
func (p *Pool) Summarize(ctx context.Context, data []byte) (*Result, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("summarize: wait for worker: %w", err)
	}

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer p.sem.Release(1)
		s, a, err := Summarize(data)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		done <- outcome{res: &Result{Summary: s, Analysis: a}}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return nil, fmt.Errorf("summarize: %w", ctx.Err())
	}
}
