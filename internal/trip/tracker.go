package trip

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists trips. Lookups return nil, nil when nothing matches.
// InsertTrip must fail with ErrActiveTripExists if the user already has an
// ON_TRIP row.
type Store interface {
	ActiveTrip(ctx context.Context, username string) (*Trip, error)
	InsertTrip(ctx context.Context, t *Trip) error
	UpdateTrip(ctx context.Context, t *Trip) error
	TripByID(ctx context.Context, id string) (*Trip, error)
	TripsByUser(ctx context.Context, username string) ([]Trip, error)
}

// Metrics receives trip lifecycle counts.
type Metrics interface {
	TripStarted()
	TripCompleted()
}

// Tracker drives the ON_TRIP -> COMPLETED lifecycle.
type Tracker struct {
	store   Store
	metrics Metrics
	logger  *slog.Logger
	now     func() time.Time

	// serializes the active-trip check and insert within this process
	startMu sync.Mutex
}

// NewTracker creates a Tracker. metrics may be nil.
func NewTracker(store Store, metrics Metrics, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:   store,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Start begins a new trip for username.
func (tr *Tracker) Start(ctx context.Context, username, startLocation, endLocation string, legs []Leg) (*Trip, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidRoute)
	}
	if err := ValidateRoute(legs); err != nil {
		return nil, err
	}

	tr.startMu.Lock()
	defer tr.startMu.Unlock()

	active, err := tr.store.ActiveTrip(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("looking up active trip: %w", err)
	}
	if active != nil {
		return nil, ErrActiveTripExists
	}

	t := &Trip{
		ID:              uuid.NewString(),
		Username:        username,
		StartLocation:   startLocation,
		EndLocation:     endLocation,
		Legs:            legs,
		Status:          StatusOnTrip,
		CurrentLegIndex: 0,
		StartTime:       tr.now().UTC(),
	}
	if err := tr.store.InsertTrip(ctx, t); err != nil {
		return nil, fmt.Errorf("saving trip: %w", err)
	}
	if tr.metrics != nil {
		tr.metrics.TripStarted()
	}
	tr.logger.Info("trip started", "trip", t.ID, "user", username, "from", startLocation, "to", endLocation, "legs", len(legs))
	return t, nil
}

// UpdateProgress moves the trip to legIndex.
func (tr *Tracker) UpdateProgress(ctx context.Context, tripID string, legIndex int) (*Trip, error) {
	t, err := tr.load(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if t.Status == StatusCompleted {
		return nil, ErrTripCompleted
	}
	if legIndex < 0 || legIndex >= len(t.Legs) {
		return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrLegIndexOutOfRange, legIndex, len(t.Legs))
	}

	t.CurrentLegIndex = legIndex
	if err := tr.store.UpdateTrip(ctx, t); err != nil {
		return nil, fmt.Errorf("saving trip progress: %w", err)
	}
	tr.logger.Debug("trip progress", "trip", t.ID, "leg", legIndex)
	return t, nil
}

// Complete ends the trip. Completing an already completed trip refreshes
// its end time.
func (tr *Tracker) Complete(ctx context.Context, tripID string) (*Trip, error) {
	t, err := tr.load(ctx, tripID)
	if err != nil {
		return nil, err
	}

	wasActive := t.Status == StatusOnTrip
	end := tr.now().UTC()
	t.Status = StatusCompleted
	t.EndTime = &end
	if err := tr.store.UpdateTrip(ctx, t); err != nil {
		return nil, fmt.Errorf("saving completed trip: %w", err)
	}
	if wasActive && tr.metrics != nil {
		tr.metrics.TripCompleted()
	}
	tr.logger.Info("trip completed", "trip", t.ID, "user", t.Username)
	return t, nil
}

// ActiveTrip returns the user's ON_TRIP trip, or nil.
func (tr *Tracker) ActiveTrip(ctx context.Context, username string) (*Trip, error) {
	t, err := tr.store.ActiveTrip(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("looking up active trip: %w", err)
	}
	return t, nil
}

// History returns every trip of the user, newest first.
func (tr *Tracker) History(ctx context.Context, username string) ([]Trip, error) {
	trips, err := tr.store.TripsByUser(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("listing trips: %w", err)
	}
	return trips, nil
}

func (tr *Tracker) load(ctx context.Context, tripID string) (*Trip, error) {
	t, err := tr.store.TripByID(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("loading trip: %w", err)
	}
	if t == nil {
		return nil, ErrTripNotFound
	}
	return t, nil
}
