package bridge

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func testRunner() *runner {
	return newRunner(quietLogger().WithField("component", "test"))
}

func TestRunner_GoAndShutdown(t *testing.T) {
	r := testRunner()

	var ran atomic.Int64
	for i := 0; i < 8; i++ {
		if err := r.Go("count", func(ctx context.Context) {
			ran.Add(1)
		}); err != nil {
			t.Fatalf("Go() failed: %v", err)
		}
	}

	if err := r.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}
	if got := ran.Load(); got != 8 {
		t.Errorf("ran %d tasks, want 8", got)
	}
}

func TestRunner_RejectsWorkAfterShutdown(t *testing.T) {
	r := testRunner()
	if err := r.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}

	if err := r.Go("late", func(ctx context.Context) {}); !errors.Is(err, ErrRunnerClosed) {
		t.Errorf("Go() after shutdown = %v, want ErrRunnerClosed", err)
	}
	if err := r.Wait("late", func(ctx context.Context) {}); !errors.Is(err, ErrRunnerClosed) {
		t.Errorf("Wait() after shutdown = %v, want ErrRunnerClosed", err)
	}
	if err := r.Shutdown(time.Second); !errors.Is(err, ErrRunnerClosed) {
		t.Errorf("second Shutdown() = %v, want ErrRunnerClosed", err)
	}
}

func TestRunner_WaitBlocksUntilDone(t *testing.T) {
	r := testRunner()
	defer r.Shutdown(time.Second)

	var done atomic.Bool
	if err := r.Wait("blocking", func(ctx context.Context) {
		time.Sleep(50 * time.Millisecond)
		done.Store(true)
	}); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	if !done.Load() {
		t.Error("Wait() returned before the task finished")
	}
}

func TestRunner_ShutdownCancelsContext(t *testing.T) {
	r := testRunner()

	canceled := make(chan struct{})
	if err := r.Go("watch-ctx", func(ctx context.Context) {
		<-ctx.Done()
		close(canceled)
	}); err != nil {
		t.Fatalf("Go() failed: %v", err)
	}

	if err := r.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}
	select {
	case <-canceled:
	default:
		t.Error("task context was not canceled by Shutdown")
	}
}

func TestRunner_ShutdownTimesOutOnStuckTask(t *testing.T) {
	r := testRunner()

	release := make(chan struct{})
	if err := r.Go("stuck", func(ctx context.Context) {
		<-release
	}); err != nil {
		t.Fatalf("Go() failed: %v", err)
	}

	if err := r.Shutdown(50 * time.Millisecond); !errors.Is(err, ErrJoinTimeout) {
		t.Errorf("Shutdown() with stuck task = %v, want ErrJoinTimeout", err)
	}
	close(release)
}

func TestRunner_RecoversTaskPanic(t *testing.T) {
	r := testRunner()

	if err := r.Wait("panics", func(ctx context.Context) {
		panic("boom")
	}); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	// The panicking task must not poison the runner.
	if err := r.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown() after panic = %v, want nil", err)
	}
}
