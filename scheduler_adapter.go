package kernel

import (
	"context"
	"time"

	schedulerpkg "github.com/modkernel/kernel/scheduler"
)

// scopedScheduler adapts a *scheduler.Engine to the per-service Scheduler
// interface, stamping every job it registers with the owning service's
// context string for diagnostics.
type scopedScheduler struct {
	label  string
	engine *schedulerpkg.Engine
}

func newScopedScheduler(label string, engine *schedulerpkg.Engine) Scheduler {
	return &scopedScheduler{label: label, engine: engine}
}

func (s *scopedScheduler) Cron(spec string, fn func(ctx context.Context)) (func(), error) {
	return s.engine.Cron(s.label, spec, fn)
}

func (s *scopedScheduler) Interval(d time.Duration, fn func(ctx context.Context)) func() {
	return s.engine.Interval(s.label, d, fn)
}

func (s *scopedScheduler) Sliding(resetExpr string, next func(ctx context.Context) time.Time, exec func(ctx context.Context)) (func(), error) {
	return s.engine.Sliding(s.label, resetExpr, next, exec)
}
