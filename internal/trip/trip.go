package trip

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrActiveTripExists   = errors.New("user already has an active trip")
	ErrTripNotFound       = errors.New("trip not found")
	ErrLegIndexOutOfRange = errors.New("leg index out of range")
	ErrTripCompleted      = errors.New("trip already completed")
	ErrInvalidRoute       = errors.New("invalid route")
)

type Status string

const (
	StatusOnTrip    Status = "ON_TRIP"
	StatusCompleted Status = "COMPLETED"
)

type LegType string

const (
	LegWalk LegType = "WALK"
	LegBus  LegType = "BUS"
)

// Point is one vertex of a leg's drawn path.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Leg is one walking or bus segment of a route.
type Leg struct {
	Type             LegType `json:"type"`
	DurationMinutes  int     `json:"durationMinutes"`
	BusServiceNumber string  `json:"busServiceNumber,omitempty"`
	Instruction      string  `json:"instruction"`
	FromStopName     string  `json:"fromStopName,omitempty"`
	ToStopName       string  `json:"toStopName,omitempty"`
	RoutePoints      []Point `json:"routePoints"`
}

// Trip is a user's journey along a route. EndTime is set iff Status is
// COMPLETED.
type Trip struct {
	ID              string     `json:"id"`
	Username        string     `json:"username"`
	StartLocation   string     `json:"startLocation"`
	EndLocation     string     `json:"endLocation"`
	Legs            []Leg      `json:"legs"`
	Status          Status     `json:"status"`
	CurrentLegIndex int        `json:"currentLegIndex"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
}

// CurrentLeg returns the leg the user is on.
func (t *Trip) CurrentLeg() (Leg, bool) {
	if t.CurrentLegIndex < 0 || t.CurrentLegIndex >= len(t.Legs) {
		return Leg{}, false
	}
	return t.Legs[t.CurrentLegIndex], true
}

// ValidateRoute checks that a route has at least one leg and that only
// bus legs carry a service number.
func ValidateRoute(legs []Leg) error {
	if len(legs) == 0 {
		return fmt.Errorf("%w: no legs", ErrInvalidRoute)
	}
	for i, l := range legs {
		switch l.Type {
		case LegWalk:
			if l.BusServiceNumber != "" {
				return fmt.Errorf("%w: walk leg %d has a bus service number", ErrInvalidRoute, i)
			}
		case LegBus:
			if l.BusServiceNumber == "" {
				return fmt.Errorf("%w: bus leg %d has no service number", ErrInvalidRoute, i)
			}
		default:
			return fmt.Errorf("%w: leg %d has unknown type %q", ErrInvalidRoute, i, l.Type)
		}
		if l.DurationMinutes < 0 {
			return fmt.Errorf("%w: leg %d has negative duration", ErrInvalidRoute, i)
		}
	}
	return nil
}
