package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Abhranil-01/dsport-backend-api/internal/platform/requestctx"
)

const defaultEffectTimeout = 30 * time.Second

// Dispatcher runs post-commit side effects outside the request. Each effect gets a context
// detached from the caller's cancellation, its own timeout and a recover boundary; failures are
// logged and never reach the caller.
type Dispatcher struct {
	timeout time.Duration
	logger  func(context.Context, string, map[string]any)

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

// DispatcherDeps configures a Dispatcher.
type DispatcherDeps struct {
	Timeout time.Duration
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultEffectTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Dispatcher{timeout: timeout, logger: logger}
}

// Go schedules fn. Effects submitted after Shutdown are dropped with a log entry.
func (d *Dispatcher) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	if d == nil || fn == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger(ctx, "dispatch.dropped", map[string]any{"effect": name})
		return
	}
	d.pending.Add(1)
	d.mu.Unlock()

	detached := requestctx.Detach(ctx)
	go func() {
		defer d.pending.Done()
		runCtx, cancel := context.WithTimeout(detached, d.timeout)
		defer cancel()
		if err := d.run(runCtx, fn); err != nil {
			d.logger(runCtx, "dispatch.failed", map[string]any{"effect": name, "error": err.Error()})
		}
	}()
}

func (d *Dispatcher) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx)
}

// Shutdown stops intake and waits for in-flight effects or ctx expiry.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return d.Wait(ctx)
}

// Wait blocks until every effect scheduled so far has finished or ctx expires.
func (d *Dispatcher) Wait(ctx context.Context) error {
	if d == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		d.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("dispatcher: effects still running"), ctx.Err())
	}
}
