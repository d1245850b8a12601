package notify

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"gocommute/internal/transit"
	"gocommute/internal/trip"
)

// Transit is the slice of the aggregator the composer needs.
type Transit interface {
	Search(ctx context.Context, query string) []transit.Stop
	ArrivalsFor(ctx context.Context, stop transit.Stop) ([]transit.Arrival, error)
}

// Notifier delivers a notification to every device of a user.
type Notifier interface {
	Notify(ctx context.Context, username, title, body string) error
}

// Composer derives trip notifications and hands them to a Notifier.
type Composer struct {
	transit  Transit
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewComposer(t Transit, n Notifier, logger *slog.Logger) *Composer {
	return &Composer{transit: t, notifier: n, logger: logger, now: time.Now}
}

// TripStart sends the generic "trip starting" notification.
func (c *Composer) TripStart(ctx context.Context, t *trip.Trip) error {
	body := fmt.Sprintf("Trip Starting from %s to %s", t.StartLocation, t.EndLocation)
	return c.send(ctx, t.Username, "Trip Starting", body)
}

// FirstInstruction sends the instruction for the trip's first leg. A trip
// without legs produces nothing.
func (c *Composer) FirstInstruction(ctx context.Context, t *trip.Trip) error {
	if len(t.Legs) == 0 {
		return nil
	}
	return c.send(ctx, t.Username, "First Step", Instruction(t.Legs[0]))
}

// BusArrival sends the predicted arrival of the next bus the user needs to
// catch. Every lookup failure is swallowed: no match means no notification.
func (c *Composer) BusArrival(ctx context.Context, t *trip.Trip) error {
	title, body, ok := c.busArrivalMessage(ctx, t)
	if !ok {
		return nil
	}
	return c.send(ctx, t.Username, title, body)
}

// TripStartNotifications sends all three trip-start notifications
// concurrently. A failure in one does not stop the others.
func (c *Composer) TripStartNotifications(ctx context.Context, t *trip.Trip) {
	steps := []struct {
		name string
		fn   func(context.Context, *trip.Trip) error
	}{
		{"trip_start", c.TripStart},
		{"first_instruction", c.FirstInstruction},
		{"bus_arrival", c.BusArrival},
	}

	var wg sync.WaitGroup
	for _, s := range steps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.fn(ctx, t); err != nil {
				c.logger.Warn("trip notification failed", "kind", s.name, "trip", t.ID, "user", t.Username, "error", err)
			}
		}()
	}
	wg.Wait()
}

// Instruction phrases a leg for a notification.
func Instruction(l trip.Leg) string {
	to := l.ToStopName
	if to == "" {
		to = "destination"
	}
	switch l.Type {
	case trip.LegWalk:
		return "Walk to " + to
	case trip.LegBus:
		svc := l.BusServiceNumber
		if svc == "" {
			svc = "N/A"
		}
		return fmt.Sprintf("Take Bus %s to %s", svc, to)
	}
	if l.Instruction != "" {
		return l.Instruction
	}
	return "Follow the route"
}

// NextBoarding finds the stop and service of the next bus, scanning forward
// from the current leg. A walk leg directly followed by a bus leg boards at
// the walk's destination. A trip whose leg index is out of range has no next
// boarding.
func NextBoarding(t *trip.Trip) (stopName, service string, ok bool) {
	if _, onLeg := t.CurrentLeg(); !onLeg {
		return "", "", false
	}
	for i := t.CurrentLegIndex; i < len(t.Legs); i++ {
		leg := t.Legs[i]
		switch {
		case leg.Type == trip.LegBus:
			stopName, service = leg.FromStopName, leg.BusServiceNumber
		case leg.Type == trip.LegWalk && i+1 < len(t.Legs) && t.Legs[i+1].Type == trip.LegBus:
			stopName, service = leg.ToStopName, t.Legs[i+1].BusServiceNumber
		default:
			continue
		}
		if stopName != "" && service != "" {
			return stopName, service, true
		}
	}
	return "", "", false
}

func (c *Composer) busArrivalMessage(ctx context.Context, t *trip.Trip) (title, body string, ok bool) {
	stopName, service, ok := NextBoarding(t)
	if !ok {
		return "", "", false
	}

	stops := c.transit.Search(ctx, stopName)
	if len(stops) == 0 {
		c.logger.Debug("no stop for bus arrival notification", "trip", t.ID, "stop", stopName)
		return "", "", false
	}
	stop := stops[0]

	arrivals, err := c.transit.ArrivalsFor(ctx, stop)
	if err != nil {
		c.logger.Debug("arrivals lookup failed", "trip", t.ID, "stop", stop.Code, "source", stop.SourceID, "error", err)
		return "", "", false
	}

	var earliest time.Time
	for _, a := range arrivals {
		if !strings.EqualFold(strings.TrimSpace(a.ServiceName), service) {
			continue
		}
		if next, ok := a.Next(); ok && (earliest.IsZero() || next.Before(earliest)) {
			earliest = next
		}
	}
	if earliest.IsZero() {
		return "", "", false
	}

	title = fmt.Sprintf("Bus %s", service)
	body = fmt.Sprintf("Bus %s arrives at %s in %s", service, stop.Name, FormatMinutes(earliest.Sub(c.now())))
	return title, body, true
}

// FormatMinutes renders a wait as "now", "1 min" or "N min".
func FormatMinutes(d time.Duration) string {
	mins := int(math.Round(d.Minutes()))
	switch {
	case mins <= 0:
		return "now"
	case mins == 1:
		return "1 min"
	default:
		return fmt.Sprintf("%d min", mins)
	}
}

func (c *Composer) send(ctx context.Context, username, title, body string) error {
	if err := c.notifier.Notify(ctx, username, title, body); err != nil {
		return fmt.Errorf("notify %s: %w", username, err)
	}
	return nil
}
