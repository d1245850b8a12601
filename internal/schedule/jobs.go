package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// NewJob is the input for creating a notification job.
type NewJob struct {
	NotificationID string `json:"notificationId"`
	RouteID        string `json:"routeId"`
	DeviceID       string `json:"deviceId" validate:"required"`
	ScheduledTime  string `json:"scheduledTime" validate:"required,datetime=15:04"`
	Timezone       string `json:"timezone" validate:"required,timezone"`
	SelectedDays   []bool `json:"selectedDays" validate:"len=7"`
	MessageTitle   string `json:"messageTitle" validate:"required"`
	MessageBody    string `json:"messageBody"`
}

// Jobs performs administrative operations on notification jobs. It is the
// only writer of job status besides the DispatchScheduler.
type Jobs struct {
	store    JobStore
	validate *validator.Validate
	logger   *slog.Logger
}

func NewJobs(store JobStore, logger *slog.Logger) *Jobs {
	return &Jobs{store: store, validate: validator.New(), logger: logger}
}

// Create stores a new PENDING job.
func (s *Jobs) Create(ctx context.Context, in NewJob) (*NotificationJob, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	var days Days
	copy(days[:], in.SelectedDays)
	h, m, err := ParseClock(in.ScheduledTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}

	j := &NotificationJob{
		ID:             uuid.NewString(),
		NotificationID: in.NotificationID,
		RouteID:        in.RouteID,
		DeviceID:       in.DeviceID,
		ScheduledTime:  fmt.Sprintf("%02d:%02d", h, m),
		Timezone:       in.Timezone,
		SelectedDays:   days,
		MessageTitle:   in.MessageTitle,
		MessageBody:    in.MessageBody,
		Status:         StatusPending,
	}
	if err := s.store.InsertJob(ctx, j); err != nil {
		return nil, fmt.Errorf("saving job: %w", err)
	}
	s.logger.Info("notification job created", "job", j.ID, "device", j.DeviceID, "at", j.ScheduledTime, "timezone", j.Timezone, "days", days.String())
	return j, nil
}

// Get returns one job.
func (s *Jobs) Get(ctx context.Context, id string) (*NotificationJob, error) {
	j, err := s.store.JobByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading job: %w", err)
	}
	if j == nil {
		return nil, ErrJobNotFound
	}
	return j, nil
}

// Cancel moves any non-terminal job to CANCELLED.
func (s *Jobs) Cancel(ctx context.Context, id string) (*NotificationJob, error) {
	return s.transition(ctx, id, StatusCancelled, StatusPending, StatusOngoing, StatusFailed, StatusSkip)
}

// Skip marks a PENDING job as SKIP so the dispatcher ignores it.
func (s *Jobs) Skip(ctx context.Context, id string) (*NotificationJob, error) {
	return s.transition(ctx, id, StatusSkip, StatusPending)
}

// Reset re-arms a job so it dispatches again on its next matching minute.
func (s *Jobs) Reset(ctx context.Context, id string) (*NotificationJob, error) {
	return s.transition(ctx, id, StatusPending, StatusOngoing, StatusFailed, StatusSkip, StatusSent)
}

func (s *Jobs) transition(ctx context.Context, id string, to Status, allowed ...Status) (*NotificationJob, error) {
	j, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.Status == to {
		return j, nil
	}
	permitted := false
	for _, from := range allowed {
		if j.Status == from {
			permitted = true
			break
		}
	}
	if !permitted {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}

	ok, err := s.store.TransitionStatus(ctx, id, j.Status, to)
	if err != nil {
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: job %s changed concurrently", ErrInvalidTransition, id)
	}
	s.logger.Info("notification job status changed", "job", id, "from", j.Status, "to", to)
	j.Status = to
	return j, nil
}
