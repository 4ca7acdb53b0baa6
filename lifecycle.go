package kernel

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Stage is one of the named points at which user callbacks may run.
type Stage int

const (
	PreInit Stage = iota
	PostConfig
	Bootstrap
	Ready
	// PreShutdown fires strictly before ShutdownStart, giving the
	// scheduler (and anything else holding background resources) a
	// chance to quiesce before modules start tearing down (§4.5, §4.6).
	PreShutdown
	ShutdownStart
	ShutdownComplete
)

func (s Stage) String() string {
	switch s {
	case PreInit:
		return "PreInit"
	case PostConfig:
		return "PostConfig"
	case Bootstrap:
		return "Bootstrap"
	case Ready:
		return "Ready"
	case PreShutdown:
		return "PreShutdown"
	case ShutdownStart:
		return "ShutdownStart"
	case ShutdownComplete:
		return "ShutdownComplete"
	default:
		return "Unknown"
	}
}

// stageOrder is the linear sequence the engine advances through.
var stageOrder = []Stage{PreInit, PostConfig, Bootstrap, Ready, PreShutdown, ShutdownStart, ShutdownComplete}

// shutdownStages are the stages for which a late attach is a programming
// error (logged fatal, callback dropped). A late attach to any other
// completed stage runs synchronously inside the registering call; it is
// not queued behind the work in progress.
var shutdownStages = map[Stage]bool{PreShutdown: true, ShutdownStart: true, ShutdownComplete: true}

// UnorderedPriority is the sentinel meaning "no explicit priority" —
// such callbacks run after all prioritized callbacks for the stage,
// parallelizable with respect to each other.
const UnorderedPriority = -1

type stageCallback struct {
	priority int // UnorderedPriority for unordered
	seq      int // registration order, used as a tiebreaker
	fn       func(ctx context.Context) error
}

// LifecycleHandle is the per-module API for registering stage callbacks,
// exposed to service factories via ServiceParams.Lifecycle.
type LifecycleHandle interface {
	OnPreInit(fn func(ctx context.Context) error, priority ...int)
	OnPostConfig(fn func(ctx context.Context) error, priority ...int)
	OnBootstrap(fn func(ctx context.Context) error, priority ...int)
	OnReady(fn func(ctx context.Context) error, priority ...int)
	OnPreShutdown(fn func(ctx context.Context) error, priority ...int)
	OnShutdownStart(fn func(ctx context.Context) error, priority ...int)
	OnShutdownComplete(fn func(ctx context.Context) error, priority ...int)
}

// moduleLifecycle is one module's callback lists, keyed by stage.
type moduleLifecycle struct {
	moduleName string

	mu        sync.Mutex
	callbacks map[Stage][]stageCallback
	completed map[Stage]bool
	seq       int

	// onLateFatal is invoked when a callback is registered for an
	// already-completed shutdown stage. Overridable by the engine so the
	// log line carries the owning logger.
	onLateFatal func(stage Stage)

	// onLateNonShutdown is invoked when a callback is registered for an
	// already-completed non-shutdown stage. There is no future "start of
	// this stage" to wait for — PreInit/PostConfig/Bootstrap/Ready each
	// run exactly once — so a late attach here runs immediately instead
	// (§4.3's "next opportunity", degenerate case: now).
	onLateNonShutdown func(stage Stage, fn func(ctx context.Context) error)
}

func newModuleLifecycle(name string) *moduleLifecycle {
	return &moduleLifecycle{
		moduleName: name,
		callbacks:  make(map[Stage][]stageCallback),
		completed:  make(map[Stage]bool),
	}
}

// resetCompleted clears the completed-stage bookkeeping. A library's or
// application's moduleLifecycle outlives a single Bootstrap/Teardown cycle
// (it is created once at CreateLibrary/CreateApplication time), so without
// this a second Bootstrap would treat every stage as already run and every
// re-registered callback as a late attach.
func (m *moduleLifecycle) resetCompleted() {
	m.mu.Lock()
	m.completed = make(map[Stage]bool)
	m.mu.Unlock()
}

func (m *moduleLifecycle) register(stage Stage, fn func(ctx context.Context) error, priority []int) {
	p := UnorderedPriority
	if len(priority) > 0 {
		p = priority[0]
	}

	m.mu.Lock()
	completed := m.completed[stage]
	if !completed {
		m.seq++
		m.callbacks[stage] = append(m.callbacks[stage], stageCallback{priority: p, seq: m.seq, fn: fn})
	}
	m.mu.Unlock()

	if completed {
		if shutdownStages[stage] {
			if m.onLateFatal != nil {
				m.onLateFatal(stage)
			}
			return
		}
		if m.onLateNonShutdown != nil {
			m.onLateNonShutdown(stage, fn)
		}
	}
}

func (m *moduleLifecycle) OnPreInit(fn func(ctx context.Context) error, priority ...int) {
	m.register(PreInit, fn, priority)
}
func (m *moduleLifecycle) OnPostConfig(fn func(ctx context.Context) error, priority ...int) {
	m.register(PostConfig, fn, priority)
}
func (m *moduleLifecycle) OnBootstrap(fn func(ctx context.Context) error, priority ...int) {
	m.register(Bootstrap, fn, priority)
}
func (m *moduleLifecycle) OnReady(fn func(ctx context.Context) error, priority ...int) {
	m.register(Ready, fn, priority)
}
func (m *moduleLifecycle) OnPreShutdown(fn func(ctx context.Context) error, priority ...int) {
	m.register(PreShutdown, fn, priority)
}
func (m *moduleLifecycle) OnShutdownStart(fn func(ctx context.Context) error, priority ...int) {
	m.register(ShutdownStart, fn, priority)
}
func (m *moduleLifecycle) OnShutdownComplete(fn func(ctx context.Context) error, priority ...int) {
	m.register(ShutdownComplete, fn, priority)
}

// runStage invokes this module's callbacks for stage: prioritized first
// (ascending, ties by registration order), then unordered.
func (m *moduleLifecycle) runStage(ctx context.Context, stage Stage, onFailure func(err error)) {
	m.mu.Lock()
	pending := append([]stageCallback(nil), m.callbacks[stage]...)
	m.mu.Unlock()

	sort.SliceStable(pending, func(i, j int) bool {
		pi, pj := pending[i].priority, pending[j].priority
		if pi == UnorderedPriority && pj == UnorderedPriority {
			return pending[i].seq < pending[j].seq
		}
		if pi == UnorderedPriority {
			return false
		}
		if pj == UnorderedPriority {
			return true
		}
		if pi != pj {
			return pi < pj
		}
		return pending[i].seq < pending[j].seq
	})

	var unordered []stageCallback
	for _, cb := range pending {
		if cb.priority == UnorderedPriority {
			unordered = append(unordered, cb)
			continue
		}
		safeExecCallback(ctx, cb.fn, onFailure)
	}

	if len(unordered) > 0 {
		var wg sync.WaitGroup
		wg.Add(len(unordered))
		for _, cb := range unordered {
			cb := cb
			go func() {
				defer wg.Done()
				safeExecCallback(ctx, cb.fn, onFailure)
			}()
		}
		wg.Wait()
	}

	m.mu.Lock()
	m.completed[stage] = true
	m.mu.Unlock()
}

// safeExecCallback invokes fn, recovering panics and reporting any error
// (panic or returned) via onFailure instead of propagating it — the
// kernel's safeExec envelope (§4.5, §7 UserCallbackFailure).
func safeExecCallback(ctx context.Context, fn func(ctx context.Context) error, onFailure func(err error)) {
	defer func() {
		if r := recover(); r != nil {
			if onFailure != nil {
				onFailure(fmt.Errorf("%w: panic: %v", ErrUserCallbackFailure, r))
			}
		}
	}()
	if err := fn(ctx); err != nil {
		if onFailure != nil {
			onFailure(fmt.Errorf("%w: %v", ErrUserCallbackFailure, err))
		}
	}
}

// LifecycleEngine drives the seven-stage state machine across every module
// registered with it, in a fixed module order (boilerplate first).
type LifecycleEngine struct {
	mu      sync.Mutex
	modules []*moduleLifecycle // boilerplate first, then registration order
	logger  Logger
}

// NewLifecycleEngine returns an engine with no modules registered.
func NewLifecycleEngine(logger Logger) *LifecycleEngine {
	return &LifecycleEngine{logger: logger}
}

// Attach registers a module's lifecycle with the engine. boilerplate must
// be attached first for the fixed-order guarantee to hold; the Container
// enforces this by attaching it before any user library.
func (e *LifecycleEngine) Attach(ml *moduleLifecycle) {
	ml.onLateFatal = func(stage Stage) {
		e.logger.Fatal("late lifecycle attach dropped: stage already complete",
			"module", ml.moduleName, "stage", stage.String())
	}
	ml.onLateNonShutdown = func(stage Stage, fn func(ctx context.Context) error) {
		safeExecCallback(context.Background(), fn, func(err error) {
			e.logger.Error("late lifecycle attach ran immediately", "module", ml.moduleName, "stage", stage.String(), "error", err)
		})
	}
	e.mu.Lock()
	e.modules = append(e.modules, ml)
	e.mu.Unlock()
}

// RunStage runs every attached module's callbacks for stage, in module
// attach order, returning the first UserCallbackFailure encountered (for
// stages before Ready, the caller treats this as ServiceFactoryFailure and
// aborts bootstrap; at or after Ready it is only logged).
func (e *LifecycleEngine) RunStage(ctx context.Context, stage Stage) error {
	e.mu.Lock()
	modules := append([]*moduleLifecycle(nil), e.modules...)
	e.mu.Unlock()

	var firstErr error
	for _, ml := range modules {
		ml.runStage(ctx, stage, func(err error) {
			e.logger.Error("lifecycle callback failed", "module", ml.moduleName, "stage", stage.String(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		})
	}
	return firstErr
}
