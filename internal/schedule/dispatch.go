package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gocommute/internal/push"
)

// JobStore persists notification jobs. TransitionStatus is a
// compare-and-set: it changes the status only if it currently equals from
// and reports whether it did.
type JobStore interface {
	ListJobs(ctx context.Context) ([]NotificationJob, error)
	JobByID(ctx context.Context, id string) (*NotificationJob, error)
	InsertJob(ctx context.Context, j *NotificationJob) error
	TransitionStatus(ctx context.Context, id string, from, to Status) (bool, error)
}

// DeviceTokens resolves a device id to its current push token. An empty
// token means the device is unknown.
type DeviceTokens interface {
	TokenForDevice(ctx context.Context, deviceID string) (string, error)
}

// DispatchScheduler sends due notification jobs once a minute.
type DispatchScheduler struct {
	jobs    JobStore
	tokens  DeviceTokens
	sender  push.Sender
	metrics Metrics
	logger  *slog.Logger
	now     func() time.Time

	// max jobs processed concurrently within one tick
	parallel int

	locMu sync.Mutex
	locs  map[string]*time.Location
}

// NewDispatchScheduler creates a DispatchScheduler. metrics may be nil.
func NewDispatchScheduler(jobs JobStore, tokens DeviceTokens, sender push.Sender, metrics Metrics, logger *slog.Logger) *DispatchScheduler {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &DispatchScheduler{
		jobs:     jobs,
		tokens:   tokens,
		sender:   sender,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
		parallel: 8,
		locs:     make(map[string]*time.Location),
	}
}

// Start ticks on every minute boundary. Blocks until ctx is cancelled.
func (d *DispatchScheduler) Start(ctx context.Context) {
	loop{
		name:     "dispatch",
		interval: time.Minute,
		align:    true,
		now:      d.now,
		logger:   d.logger,
		metrics:  d.metrics,
	}.run(ctx, d.Tick)
}

// Tick evaluates every job against now. Failures are per job.
func (d *DispatchScheduler) Tick(ctx context.Context, now time.Time) {
	now = now.UTC()
	jobs, err := d.jobs.ListJobs(ctx)
	if err != nil {
		d.logger.Error("list notification jobs", "error", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallel)
	for _, job := range jobs {
		if job.Status != StatusPending {
			continue
		}
		g.Go(func() error {
			d.process(gctx, job, now)
			return nil
		})
	}
	g.Wait()
}

func (d *DispatchScheduler) process(ctx context.Context, job NotificationJob, now time.Time) {
	log := d.logger.With("job", job.ID, "device", job.DeviceID)

	loc, err := d.location(job.Timezone)
	if err != nil {
		log.Warn("job has unknown time zone", "timezone", job.Timezone, "error", err)
		d.metrics.NotificationSkipped("bad_timezone")
		return
	}
	if !job.DueIn(now, loc) {
		return
	}

	token, err := d.tokens.TokenForDevice(ctx, job.DeviceID)
	if err != nil {
		log.Error("device token lookup failed", "error", err)
		d.metrics.NotificationSkipped("token_error")
		return
	}
	if token == "" {
		log.Warn("no push token for device, job left pending")
		d.metrics.NotificationSkipped("no_token")
		return
	}

	claimed, err := d.jobs.TransitionStatus(ctx, job.ID, StatusPending, StatusOngoing)
	if err != nil {
		log.Error("claim job", "error", err)
		return
	}
	if !claimed {
		log.Debug("job already claimed")
		d.metrics.NotificationSkipped("claimed")
		return
	}

	if err := d.sender.Send(ctx, token, job.MessageTitle, job.MessageBody); err != nil {
		log.Error("push send failed", "error", err)
		d.metrics.NotificationFailed()
		if _, err := d.jobs.TransitionStatus(ctx, job.ID, StatusOngoing, StatusFailed); err != nil {
			log.Error("mark job failed", "error", err)
		}
		return
	}
	d.metrics.NotificationDispatched()
	log.Info("notification dispatched", "title", job.MessageTitle)
}

func (d *DispatchScheduler) location(name string) (*time.Location, error) {
	d.locMu.Lock()
	defer d.locMu.Unlock()
	if loc, ok := d.locs[name]; ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}
	d.locs[name] = loc
	return loc, nil
}
