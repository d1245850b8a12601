package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"gocommute/internal/trip"
)

// PlanStore lists the commute plans to evaluate.
type PlanStore interface {
	ListPlans(ctx context.Context) ([]CommutePlan, error)
}

// TripStarter starts trips; satisfied by *trip.Tracker.
type TripStarter interface {
	Start(ctx context.Context, username, startLocation, endLocation string, legs []trip.Leg) (*trip.Trip, error)
}

// TripNotifier announces a freshly started trip; satisfied by
// *notify.Composer.
type TripNotifier interface {
	TripStartNotifications(ctx context.Context, t *trip.Trip)
}

// maxCatchUp bounds how many past minutes a late tick evaluates.
const maxCatchUp = 5 * time.Minute

// RecurrenceScheduler starts a trip for every commute plan whose notify
// time matches the current minute on one of its recurrence days.
type RecurrenceScheduler struct {
	plans     PlanStore
	trips     TripStarter
	notifier  TripNotifier
	loc       *time.Location
	interval  time.Duration
	notifyTTL time.Duration
	metrics   Metrics
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	last  time.Time         // latest local minute evaluated
	fired map[string]string // plan id -> minute key it last fired in

	notifying sync.WaitGroup
}

// NewRecurrenceScheduler creates a RecurrenceScheduler evaluating plans in
// loc. notifier and metrics may be nil.
func NewRecurrenceScheduler(plans PlanStore, trips TripStarter, notifier TripNotifier, loc *time.Location, interval time.Duration, metrics Metrics, logger *slog.Logger) *RecurrenceScheduler {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if loc == nil {
		loc = time.Local
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &RecurrenceScheduler{
		plans:     plans,
		trips:     trips,
		notifier:  notifier,
		loc:       loc,
		interval:  interval,
		notifyTTL: 30 * time.Second,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		fired:     make(map[string]string),
	}
}

// Start ticks once, then on interval boundaries. Blocks until ctx is
// cancelled.
func (r *RecurrenceScheduler) Start(ctx context.Context) {
	loop{
		name:      "recurrence",
		interval:  r.interval,
		align:     true,
		immediate: true,
		now:       r.now,
		logger:    r.logger,
		metrics:   r.metrics,
	}.run(ctx, r.Tick)
}

// Tick starts trips for the plans due at now. Minutes passed since the
// previous tick are evaluated too, so a late tick never drops a plan, and
// a plan fires at most once per minute however often Tick runs.
func (r *RecurrenceScheduler) Tick(ctx context.Context, now time.Time) {
	plans, err := r.plans.ListPlans(ctx)
	if err != nil {
		r.logger.Error("list commute plans", "error", err)
		return
	}
	for _, minute := range r.pendingMinutes(now) {
		r.evaluate(ctx, plans, minute)
	}
}

// pendingMinutes returns the local minutes after the last evaluated one up
// to and including now's minute, at most maxCatchUp back. A tick within an
// already evaluated minute re-evaluates just that minute.
func (r *RecurrenceScheduler) pendingMinutes(now time.Time) []time.Time {
	cur := now.In(r.loc).Truncate(time.Minute)

	r.mu.Lock()
	defer r.mu.Unlock()
	from := cur
	if !r.last.IsZero() && cur.After(r.last) {
		from = r.last.Add(time.Minute)
		if oldest := cur.Add(-maxCatchUp); from.Before(oldest) {
			from = oldest
		}
	}
	if cur.After(r.last) {
		r.last = cur
	}

	var minutes []time.Time
	for m := from; !m.After(cur); m = m.Add(time.Minute) {
		minutes = append(minutes, m)
	}
	return minutes
}

func (r *RecurrenceScheduler) evaluate(ctx context.Context, plans []CommutePlan, local time.Time) {
	today := DayIndex(local.Weekday())
	for _, p := range plans {
		if !p.RecurrenceDays[today] {
			continue
		}
		h, m, err := ParseClock(p.NotifyTime)
		if err != nil {
			r.logger.Warn("plan has bad notify time", "plan", p.ID, "notify_time", p.NotifyTime, "error", err)
			continue
		}
		if h != local.Hour() || m != local.Minute() {
			continue
		}
		if !r.claim(p.ID, local) {
			r.logger.Debug("plan already fired this minute", "plan", p.ID)
			continue
		}
		r.startPlan(ctx, p)
	}
}

func (r *RecurrenceScheduler) claim(planID string, local time.Time) bool {
	key := local.Format("2006-01-02T15:04")
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fired[planID] == key {
		return false
	}
	r.fired[planID] = key
	return true
}

// startPlan starts the plan's trip. Notifications are sent in the
// background so provider lookups never hold up the tick.
func (r *RecurrenceScheduler) startPlan(ctx context.Context, p CommutePlan) {
	t, err := r.trips.Start(ctx, p.Username, p.StartLocation, p.EndLocation, p.Legs)
	switch {
	case errors.Is(err, trip.ErrActiveTripExists):
		r.logger.Info("user already on a trip, plan skipped", "plan", p.ID, "user", p.Username)
		return
	case err != nil:
		r.logger.Warn("start planned trip", "plan", p.ID, "user", p.Username, "error", err)
		return
	}
	r.logger.Info("planned trip started", "plan", p.ID, "trip", t.ID, "user", p.Username)
	if r.notifier == nil {
		return
	}

	r.notifying.Add(1)
	go func() {
		defer r.notifying.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.notifyTTL)
		defer cancel()
		r.notifier.TripStartNotifications(nctx, t)
	}()
}
