package kernel

import (
	"context"
	"time"
)

// Scheduler is the per-service view of the kernel's scheduling facility
// (§4.5, component C5). Cron and Sliding jobs first fire once the engine
// starts at Ready; an Interval job's ticker starts at registration, not at
// Ready. Every job is cancelled automatically at PreShutdown if the caller
// never cancels it explicitly; the returned cancel function is always safe
// to call more than once.
type Scheduler interface {
	// Cron runs fn on the given robfig/cron/v3 schedule expression.
	Cron(spec string, fn func(ctx context.Context)) (cancel func(), err error)
	// Interval runs fn every d, starting d after registration.
	Interval(d time.Duration, fn func(ctx context.Context)) (cancel func())
	// Sliding arms a one-shot timer on each cron tick of resetExpr: next
	// is called to compute the absolute instant exec should next run. A
	// next result that isn't in the future is skipped; a reset tick that
	// arrives while a previous one-shot is still pending cancels it and
	// logs a warning before arming the new instant.
	Sliding(resetExpr string, next func(ctx context.Context) time.Time, exec func(ctx context.Context)) (cancel func(), err error)
}
