package schedule

import (
	"context"
	"log/slog"
	"time"
)

// Metrics receives scheduler activity.
type Metrics interface {
	TickObserved(scheduler string, d time.Duration)
	NotificationDispatched()
	NotificationFailed()
	NotificationSkipped(reason string)
}

type nopMetrics struct{}

func (nopMetrics) TickObserved(string, time.Duration) {}
func (nopMetrics) NotificationDispatched()            {}
func (nopMetrics) NotificationFailed()                {}
func (nopMetrics) NotificationSkipped(string)         {}

// loop runs tick serially until ctx is cancelled. An aligned loop fires on
// interval boundaries of the clock; an unaligned one fires every interval.
// With immediate set the first tick runs at start. A slow tick delays the
// next one rather than overlapping it.
type loop struct {
	name      string
	interval  time.Duration
	align     bool
	immediate bool
	now       func() time.Time
	logger    *slog.Logger
	metrics   Metrics
}

func (l loop) run(ctx context.Context, tick func(context.Context, time.Time)) {
	l.logger.Info("scheduler started", "scheduler", l.name, "interval", l.interval, "aligned", l.align)

	if l.immediate {
		l.fire(ctx, tick)
	}
	for {
		wait := l.interval
		if l.align {
			n := l.now()
			wait = n.Truncate(l.interval).Add(l.interval).Sub(n)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.logger.Info("scheduler stopped", "scheduler", l.name)
			return
		case <-timer.C:
			l.fire(ctx, tick)
		}
	}
}

func (l loop) fire(ctx context.Context, tick func(context.Context, time.Time)) {
	start := time.Now()
	tick(ctx, l.now())
	l.metrics.TickObserved(l.name, time.Since(start))
}
