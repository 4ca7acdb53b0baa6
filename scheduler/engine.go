// Package scheduler implements the kernel's scheduling facility (§4.5,
// component C5): cron-expression, fixed-interval and cron-reset-driven
// one-shot ("sliding") jobs, all running under a single robfig/cron/v3.Cron
// and surviving for the lifetime of the process between Start and Stop.
//
// This package has no dependency on the root kernel package; the kernel
// wraps *Engine to satisfy its own Scheduler interface per service
// context, keeping the scheduling engine reusable outside this module's
// particular wiring conventions.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Logger is the minimal logging surface Engine needs, satisfied by
// kernel.Logger without importing it.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Engine owns the process-wide cron scheduler and every job registered
// against it, regardless of which service label registered them.
type Engine struct {
	mu      sync.Mutex
	cron    *cron.Cron
	logger  Logger
	started bool
	jobs    map[string]func()
}

// NewEngine returns an Engine ready to accept registrations; Cron jobs and
// Sliding reset ticks are cron entries, so they queue until Start runs them
// (cron.Cron's own behaviour); Interval jobs run their own ticker goroutine
// starting immediately, since there is no equivalent queue-before-start
// semantics to borrow from cron.Cron for that job kind.
func NewEngine(logger Logger) *Engine {
	return &Engine{
		cron:   cron.New(),
		logger: logger,
		jobs:   make(map[string]func()),
	}
}

// Start begins running registered Cron jobs. Called once, at Ready.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	e.cron.Start()
}

// Stop cancels every still-registered job and halts the cron scheduler.
// Called once, at PreShutdown.
func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	cancels := make([]func(), 0, len(e.jobs))
	for _, cancel := range e.jobs {
		cancels = append(cancels, cancel)
	}
	e.jobs = make(map[string]func())
	e.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	stopCtx := e.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
}

// safeExec wraps fn so a panic is recovered and logged rather than
// propagating into the scheduler's own goroutines.
func (e *Engine) safeExec(label string, fn func(ctx context.Context)) func(ctx context.Context) {
	return func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("scheduled job panicked", "label", label, "panic", r)
			}
		}()
		fn(ctx)
	}
}

func (e *Engine) track(cancelFn func()) (id string, cancel func()) {
	id = uuid.NewString()
	var once sync.Once
	cancel = func() {
		once.Do(func() {
			cancelFn()
			e.mu.Lock()
			delete(e.jobs, id)
			e.mu.Unlock()
		})
	}
	e.mu.Lock()
	e.jobs[id] = cancel
	e.mu.Unlock()
	return id, cancel
}

// Cron registers fn on the given cron expression (standard 5-field
// robfig/cron/v3 syntax). The returned cancel is idempotent.
func (e *Engine) Cron(label string, spec string, fn func(ctx context.Context)) (cancel func(), err error) {
	wrapped := e.safeExec(label, fn)
	var entryID cron.EntryID
	entryID, err = e.cron.AddFunc(spec, func() { wrapped(context.Background()) })
	if err != nil {
		return nil, fmt.Errorf("scheduler: bad cron spec %q: %w", spec, err)
	}

	_, cancel = e.track(func() { e.cron.Remove(entryID) })
	return cancel, nil
}

// Interval registers fn to run every d, first firing after d elapses.
func (e *Engine) Interval(label string, d time.Duration, fn func(ctx context.Context)) (cancel func()) {
	wrapped := e.safeExec(label, fn)
	ticker := time.NewTicker(d)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				wrapped(context.Background())
			}
		}
	}()

	_, cancel = e.track(func() { close(done) })
	return cancel
}

// Sliding implements §4.5's sliding timer: on each cron tick of resetExpr,
// next is called to compute the absolute instant exec should next run, and
// a one-shot timer is armed for that instant. A next result that is not in
// the future is skipped. If a reset tick arrives while a previously armed
// one-shot is still pending, that one-shot is cancelled and the skip is
// logged as a warning before the new instant is armed.
func (e *Engine) Sliding(label string, resetExpr string, next func(ctx context.Context) time.Time, exec func(ctx context.Context)) (cancel func(), err error) {
	wrappedExec := e.safeExec(label, exec)

	var mu sync.Mutex
	var pending *time.Timer
	var stopped bool

	armPending := func(at time.Time) {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		if pending != nil {
			if pending.Stop() {
				e.logger.Warn("sliding timer reset while a scheduled run was still pending", "label", label)
			}
			pending = nil
		}
		d := time.Until(at)
		if d <= 0 {
			return
		}
		pending = time.AfterFunc(d, func() { wrappedExec(context.Background()) })
	}

	reset := func() {
		at := next(context.Background())
		armPending(at)
	}

	var entryID cron.EntryID
	entryID, err = e.cron.AddFunc(resetExpr, reset)
	if err != nil {
		return nil, fmt.Errorf("scheduler: bad sliding reset spec %q: %w", resetExpr, err)
	}

	_, cancel = e.track(func() {
		e.cron.Remove(entryID)
		mu.Lock()
		stopped = true
		if pending != nil {
			pending.Stop()
			pending = nil
		}
		mu.Unlock()
	})
	return cancel, nil
}
