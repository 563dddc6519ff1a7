package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Runner errors
var (
	ErrRunnerClosed = errors.New("runner closed")
	ErrJoinTimeout  = errors.New("timed out waiting for background tasks")
)

// runner is the session's private background scheduler. Every negotiation
// and transport operation executes on it as a tracked task, so Shutdown can
// join in-flight work with a bounded timeout instead of leaking goroutines.
type runner struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *logrus.Entry

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

func newRunner(log *logrus.Entry) *runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &runner{
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
}

// Go schedules fn as a fire-and-forget task. It returns ErrRunnerClosed if
// the runner has been shut down; fn's own failures stay inside fn (logged),
// per the session's fire-and-forget contract.
func (r *runner) Go(name string, fn func(ctx context.Context)) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRunnerClosed
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				r.log.WithFields(logrus.Fields{
					"task":  name,
					"panic": p,
				}).Error("background task panicked")
			}
		}()
		fn(r.ctx)
	}()
	return nil
}

// Wait schedules fn and blocks the caller until it finishes. Used by the
// one synchronous entry point, diagnostics collection.
func (r *runner) Wait(name string, fn func(ctx context.Context)) error {
	done := make(chan struct{})
	err := r.Go(name, func(ctx context.Context) {
		defer close(done)
		fn(ctx)
	})
	if err != nil {
		return err
	}
	<-done
	return nil
}

// Shutdown cancels the runner context and joins outstanding tasks, waiting
// at most timeout. Tasks still running after the timeout keep their shared
// handles (engine, track) alive until they finish; they are reported, not
// killed.
func (r *runner) Shutdown(timeout time.Duration) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRunnerClosed
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		r.log.Warn("background tasks still running after shutdown timeout")
		return ErrJoinTimeout
	}
}
