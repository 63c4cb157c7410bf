package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsTask(t *testing.T) {
	r := NewRunner(0)
	defer r.Shutdown()

	var ran atomic.Bool
	if !r.Submit("mark", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}) {
		t.Fatal("submit returned false on an open runner")
	}
	r.Wait()
	if !ran.Load() {
		t.Fatal("task did not run")
	}
}

func TestPanicIsContained(t *testing.T) {
	r := NewRunner(0)
	defer r.Shutdown()

	var after atomic.Bool
	r.Submit("boom", func(ctx context.Context) error {
		panic("boom")
	})
	r.Wait()
	r.Submit("after", func(ctx context.Context) error {
		after.Store(true)
		return nil
	})
	r.Wait()
	if !after.Load() {
		t.Fatal("runner unusable after a panicking task")
	}
}

func TestErrorIsSwallowed(t *testing.T) {
	r := NewRunner(0)
	defer r.Shutdown()

	r.Submit("fails", func(ctx context.Context) error {
		return errors.New("transient")
	})
	r.Wait()
}

func TestSubmitAfterShutdown(t *testing.T) {
	r := NewRunner(0)
	r.Shutdown()
	if r.Submit("late", func(ctx context.Context) error { return nil }) {
		t.Fatal("submit accepted after shutdown")
	}
}

func TestShutdownCancelsInFlight(t *testing.T) {
	r := NewRunner(0)
	started := make(chan struct{})
	done := make(chan struct{})
	r.Submit("blocked", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(done)
		return ctx.Err()
	})
	<-started
	r.Shutdown()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight task was not cancelled by shutdown")
	}
}

func TestTimeoutBoundsTask(t *testing.T) {
	r := NewRunner(20 * time.Millisecond)
	defer r.Shutdown()

	expired := make(chan struct{})
	r.Submit("slow", func(ctx context.Context) error {
		<-ctx.Done()
		close(expired)
		return ctx.Err()
	})
	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("task context never expired")
	}
}
