package handler

import (
	"context"
	"log/slog"
	"time"

	"gocommute/internal/geocode"
	"gocommute/internal/schedule"
	"gocommute/internal/storage"
	"gocommute/internal/transit"
	"gocommute/internal/trip"
)

// Transit is the stop and arrival lookup surface; satisfied by
// *transit.Aggregator.
type Transit interface {
	Sources() []string
	Refresh(ctx context.Context) []transit.Stop
	Search(ctx context.Context, query string) []transit.Stop
	Stop(ctx context.Context, sourceID, code string) (transit.Stop, bool)
	Nearby(ctx context.Context, lat, lon, radiusMeters float64) []transit.NearbyStop
	ArrivalsFor(ctx context.Context, stop transit.Stop) ([]transit.Arrival, error)
}

// Trips is satisfied by *trip.Tracker.
type Trips interface {
	Start(ctx context.Context, username, startLocation, endLocation string, legs []trip.Leg) (*trip.Trip, error)
	UpdateProgress(ctx context.Context, tripID string, legIndex int) (*trip.Trip, error)
	Complete(ctx context.Context, tripID string) (*trip.Trip, error)
	ActiveTrip(ctx context.Context, username string) (*trip.Trip, error)
	History(ctx context.Context, username string) ([]trip.Trip, error)
}

// TripNotifier announces a trip started over HTTP; satisfied by
// *notify.Composer.
type TripNotifier interface {
	TripStartNotifications(ctx context.Context, t *trip.Trip)
}

// Jobs is satisfied by *schedule.Jobs.
type Jobs interface {
	Create(ctx context.Context, in schedule.NewJob) (*schedule.NotificationJob, error)
	Get(ctx context.Context, id string) (*schedule.NotificationJob, error)
	Cancel(ctx context.Context, id string) (*schedule.NotificationJob, error)
	Skip(ctx context.Context, id string) (*schedule.NotificationJob, error)
	Reset(ctx context.Context, id string) (*schedule.NotificationJob, error)
}

// Geocoder resolves plan locations; satisfied by *geocode.Client.
type Geocoder interface {
	Search(ctx context.Context, query string) (*geocode.Result, error)
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

// Store covers the persistence the handlers write directly; satisfied by
// *storage.DB.
type Store interface {
	Ping(ctx context.Context) error
	RegisterDevice(ctx context.Context, deviceID, username, token string) error
	UpsertLocation(ctx context.Context, l storage.Location) error
	InsertPlan(ctx context.Context, p *schedule.CommutePlan, startLocationID, endLocationID string) error
}

// Handler holds shared dependencies for all HTTP handlers.
type Handler struct {
	transit  Transit
	trips    Trips
	notifier TripNotifier
	jobs     Jobs
	store    Store
	geocoder Geocoder
	logger   *slog.Logger

	// detached context for notifications that outlive the request
	background context.Context
	notifyTTL  time.Duration
}

// New creates a Handler. notifier and geocoder may be nil.
func New(ctx context.Context, t Transit, trips Trips, notifier TripNotifier, jobs Jobs, store Store, geocoder Geocoder, logger *slog.Logger) *Handler {
	return &Handler{
		transit:    t,
		trips:      trips,
		notifier:   notifier,
		jobs:       jobs,
		store:      store,
		geocoder:   geocoder,
		logger:     logger,
		background: ctx,
		notifyTTL:  30 * time.Second,
	}
}
