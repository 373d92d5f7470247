// internal/browser/jsexec/runtime.go
package jsexec

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/procfilter/internal/config"
)

const DefaultTimeout = 30 * time.Second

// ErrStopped is returned when work is submitted to a stopped runtime.
var ErrStopped = errors.New("javascript runtime is stopped")

// Runtime runs compiled filter scripts on a goja event loop. Scripts and
// scheduled tasks share the loop goroutine, so a task scheduled during a
// script runs only after that script has returned.
type Runtime struct {
	cfg     config.ScriptConfig
	logger  *zap.Logger
	loop    *eventloop.EventLoop
	runID   string
	pending atomic.Int64
	running atomic.Bool
	stopped atomic.Bool
}

// NewRuntime creates a runtime. Console output is routed to the logger when
// enabled in cfg. Call Start before submitting work.
func NewRuntime(cfg config.ScriptConfig, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	runID := uuid.NewString()
	log := logger.Named("jsexec").With(zap.String("run_id", runID))

	registry := require.NewRegistry()
	if cfg.EnableConsole {
		registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(&zapPrinter{logger: log.Named("console")}))
	}
	loop := eventloop.NewEventLoop(
		eventloop.WithRegistry(registry),
		eventloop.EnableConsole(cfg.EnableConsole),
	)

	return &Runtime{
		cfg:    cfg,
		logger: log,
		loop:   loop,
		runID:  runID,
	}
}

// RunID identifies this runtime in logs.
func (r *Runtime) RunID() string {
	return r.runID
}

// Start runs the event loop in the background.
func (r *Runtime) Start() {
	if r.stopped.Load() || !r.running.CompareAndSwap(false, true) {
		return
	}
	r.loop.Start()
	r.logger.Debug("Event loop started.")
}

// Stop halts the event loop. Queued tasks that have not run are dropped.
func (r *Runtime) Stop() {
	if !r.running.CompareAndSwap(true, false) {
		r.stopped.Store(true)
		return
	}
	r.stopped.Store(true)
	r.loop.Stop()
	r.logger.Debug("Event loop stopped.", zap.Int64("dropped_tasks", r.pending.Load()))
}

// Bind runs fn on the loop with direct access to the VM, typically to install
// globals.
func (r *Runtime) Bind(ctx context.Context, fn func(vm *goja.Runtime) error) error {
	errCh := make(chan error, 1)
	if err := r.submit(func(vm *goja.Runtime) { errCh <- fn(vm) }); err != nil {
		return err
	}
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Schedule queues task behind everything already on the loop. It satisfies
// cosmetic.Scheduler; tasks are fire and forget and panics are logged.
func (r *Runtime) Schedule(task func()) {
	if task == nil {
		return
	}
	r.pending.Add(1)
	err := r.submit(func(*goja.Runtime) {
		defer r.pending.Add(-1)
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("Scheduled task panicked.", zap.Any("panic", p))
			}
		}()
		task()
	})
	if err != nil {
		r.pending.Add(-1)
		r.logger.Warn("Dropped scheduled task.", zap.Error(err))
	}
}

// Pending reports scheduled tasks that have not finished.
func (r *Runtime) Pending() int64 {
	return r.pending.Load()
}

// Settle waits until every scheduled task, including tasks scheduled by
// other tasks, has run.
func (r *Runtime) Settle(ctx context.Context) error {
	for {
		barrier := make(chan struct{})
		if err := r.submit(func(*goja.Runtime) { close(barrier) }); err != nil {
			return err
		}
		select {
		case <-barrier:
		case <-ctx.Done():
			return ctx.Err()
		}
		if r.pending.Load() == 0 {
			return nil
		}
	}
}

func (r *Runtime) submit(job func(*goja.Runtime)) error {
	if r.stopped.Load() {
		return ErrStopped
	}
	r.loop.RunOnLoop(job)
	return nil
}

// -- Script execution --

type execResult struct {
	value interface{}
	err   error
}

// Execute runs a script on the loop and waits for it to finish. The script is
// interrupted when the configured timeout or the context deadline passes.
func (r *Runtime) Execute(ctx context.Context, script string) (interface{}, error) {
	resultCh := make(chan execResult, 1)
	if err := r.submit(func(vm *goja.Runtime) {
		v, err := r.run(ctx, vm, script)
		resultCh <- execResult{value: v, err: err}
	}); err != nil {
		return nil, err
	}

	select {
	case res := <-resultCh:
		return res.value, res.err
	case <-ctx.Done():
		// The job interrupts itself once it observes the canceled context.
		return nil, fmt.Errorf("javascript execution interrupted: %w", ctx.Err())
	}
}

func (r *Runtime) run(ctx context.Context, vm *goja.Runtime, script string) (interface{}, error) {
	timeout := r.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeToDeadline := time.Until(deadline)
		if timeToDeadline < timeout && timeToDeadline > 0 {
			timeout = timeToDeadline
		}
	}

	done := make(chan struct{})
	watchdog := make(chan struct{})

	// Clear stale interrupts from previous executions.
	vm.ClearInterrupt()

	go func() {
		defer close(watchdog)
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			r.logger.Warn("JavaScript execution timeout", zap.Duration("timeout", timeout))
			vm.Interrupt(fmt.Sprintf("execution timeout exceeded (%v)", timeout))
		case <-ctx.Done():
			r.logger.Debug("JavaScript execution context canceled")
			vm.Interrupt(ctx.Err().Error())
		case <-done:
		}
	}()

	result, err := vm.RunString(script)

	close(done)
	<-watchdog

	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("javascript execution interrupted: %w", ctx.Err())
			}
			return nil, fmt.Errorf("javascript execution interrupted: %w", err)
		}
		var jsErr *goja.Exception
		if errors.As(err, &jsErr) {
			return nil, fmt.Errorf("javascript exception: %s", jsErr.String())
		}
		return nil, fmt.Errorf("javascript error: %w", err)
	}
	if result == nil {
		return nil, nil
	}

	if promise, ok := result.Export().(*goja.Promise); ok {
		return settledPromise(promise)
	}
	return result.Export(), nil
}

// settledPromise unwraps a promise that already settled. Pending promises are
// returned as they are; their reactions run as later loop jobs.
func settledPromise(promise *goja.Promise) (interface{}, error) {
	switch promise.State() {
	case goja.PromiseStateFulfilled:
		return promise.Result().Export(), nil
	case goja.PromiseStateRejected:
		return nil, fmt.Errorf("javascript promise rejected: %v", promise.Result().Export())
	}
	return promise, nil
}

// -- Console --

// zapPrinter routes console.log, console.warn and console.error to zap.
type zapPrinter struct {
	logger *zap.Logger
}

func (p *zapPrinter) Log(s string)   { p.logger.Info(s) }
func (p *zapPrinter) Warn(s string)  { p.logger.Warn(s) }
func (p *zapPrinter) Error(s string) { p.logger.Error(s) }
