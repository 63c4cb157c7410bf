// Package task runs fire-and-forget side effects (read reconciliation, media
// finalization) under a supervisor: a panic or error in one task is logged
// and contained, and can never propagate to sibling tasks or to the
// subscription that spawned it.
package task

import (
	"context"
	"sync"
	"time"

	"github.com/chatsync/internal/logger"
)

// Fn is a unit of background work. A non-nil error is logged and swallowed;
// tasks that must surface failures to a caller do not belong here.
type Fn func(ctx context.Context) error

// Runner executes tasks on their own goroutines with a lifetime independent
// of the submitter: cancelling a subscription does not cancel tasks it
// already spawned.
type Runner struct {
	timeout time.Duration

	mu     sync.Mutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// NewRunner creates a runner. timeout bounds each task's context; zero means
// no per-task deadline.
func NewRunner(timeout time.Duration) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{timeout: timeout, ctx: ctx, cancel: cancel}
}

// Submit schedules fn. Returns false if the runner is already shut down.
// Never blocks the caller.
func (r *Runner) Submit(name string, fn Fn) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				logger.Errorf("task %s panic: %v", name, rec)
			}
		}()
		ctx := r.ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
		defer logger.DeferLogDuration("task."+name, time.Now())()
		if err := fn(ctx); err != nil {
			logger.Errorf("task %s: %v", name, err)
		}
	}()
	return true
}

// Shutdown stops accepting tasks, cancels in-flight ones, and waits for them
// to drain.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

// Wait blocks until all currently submitted tasks have finished, without
// shutting the runner down. Used by tests to observe side effects.
func (r *Runner) Wait() {
	r.wg.Wait()
}
