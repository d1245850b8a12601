package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"gocommute/internal/transit"
	"gocommute/internal/trip"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeTransit struct {
	stops    []transit.Stop
	arrivals []transit.Arrival
	err      error
	queries  []string
}

func (f *fakeTransit) Search(ctx context.Context, q string) []transit.Stop {
	f.queries = append(f.queries, q)
	var out []transit.Stop
	for _, s := range f.stops {
		if strings.Contains(strings.ToLower(s.Name), strings.ToLower(q)) {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeTransit) ArrivalsFor(ctx context.Context, stop transit.Stop) ([]transit.Arrival, error) {
	return f.arrivals, f.err
}

type sent struct{ user, title, body string }

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sent
	fail map[string]bool // by title
}

func (f *fakeNotifier) Notify(ctx context.Context, username, title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[title] {
		return errors.New("gateway down")
	}
	f.sent = append(f.sent, sent{username, title, body})
	return nil
}

var now = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

func newComposer(tr Transit, n Notifier) *Composer {
	c := NewComposer(tr, n, testLogger)
	c.now = func() time.Time { return now }
	return c
}

func walkThenBus() *trip.Trip {
	return &trip.Trip{
		ID:            "t1",
		Username:      "alice",
		StartLocation: "Home",
		EndLocation:   "NUS",
		Legs: []trip.Leg{
			{Type: trip.LegWalk, ToStopName: "StopA"},
			{Type: trip.LegBus, BusServiceNumber: "96", FromStopName: "StopA", ToStopName: "Kent Ridge"},
		},
	}
}

func TestBusArrival_WalkThenBus(t *testing.T) {
	tr := &fakeTransit{
		stops: []transit.Stop{{Code: "11111", Name: "StopA", SourceID: "LTA"}},
		arrivals: []transit.Arrival{
			{ServiceName: "151", Times: []time.Time{now.Add(time.Minute)}},
			{ServiceName: "96", Times: []time.Time{now.Add(5 * time.Minute), now.Add(14 * time.Minute)}},
		},
	}
	n := &fakeNotifier{}
	c := newComposer(tr, n)

	if err := c.BusArrival(context.Background(), walkThenBus()); err != nil {
		t.Fatalf("BusArrival: %v", err)
	}
	if len(n.sent) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(n.sent))
	}
	msg := n.sent[0].title + " " + n.sent[0].body
	if !strings.Contains(msg, "96") || !strings.Contains(msg, "5 min") {
		t.Errorf("message = %q, want service 96 and 5 min", msg)
	}
	if len(tr.queries) != 1 || tr.queries[0] != "StopA" {
		t.Errorf("searched %v, want StopA", tr.queries)
	}
}

func TestBusArrival_NoNotification(t *testing.T) {
	stops := []transit.Stop{{Code: "11111", Name: "StopA", SourceID: "LTA"}}
	tests := []struct {
		name string
		tr   *fakeTransit
		trip *trip.Trip
	}{
		{"no stop match", &fakeTransit{}, walkThenBus()},
		{"arrivals error", &fakeTransit{stops: stops, err: errors.New("boom")}, walkThenBus()},
		{"other services only", &fakeTransit{stops: stops, arrivals: []transit.Arrival{{ServiceName: "151", Times: []time.Time{now}}}}, walkThenBus()},
		{"no times", &fakeTransit{stops: stops, arrivals: []transit.Arrival{{ServiceName: "96"}}}, walkThenBus()},
		{"walk only", &fakeTransit{stops: stops}, &trip.Trip{Username: "alice", Legs: []trip.Leg{{Type: trip.LegWalk, ToStopName: "StopA"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &fakeNotifier{}
			if err := newComposer(tt.tr, n).BusArrival(context.Background(), tt.trip); err != nil {
				t.Errorf("BusArrival should swallow lookup failures, got %v", err)
			}
			if len(n.sent) != 0 {
				t.Errorf("sent %v, want nothing", n.sent)
			}
		})
	}
}

func TestNextBoarding(t *testing.T) {
	legs := []trip.Leg{
		{Type: trip.LegWalk, ToStopName: "StopA"},
		{Type: trip.LegBus, BusServiceNumber: "96", FromStopName: "StopA"},
		{Type: trip.LegWalk, ToStopName: "StopB"},
		{Type: trip.LegWalk, ToStopName: "StopC"},
		{Type: trip.LegBus, BusServiceNumber: "D1", FromStopName: "StopC"},
	}
	tests := []struct {
		idx      int
		stop     string
		service  string
		wantFind bool
	}{
		{0, "StopA", "96", true},
		{1, "StopA", "96", true},
		{2, "StopC", "D1", true},
		{3, "StopC", "D1", true},
		{4, "StopC", "D1", true},
		{5, "", "", false},
		{-1, "", "", false},
	}
	for _, tt := range tests {
		stop, svc, ok := NextBoarding(&trip.Trip{Legs: legs, CurrentLegIndex: tt.idx})
		if ok != tt.wantFind || stop != tt.stop || svc != tt.service {
			t.Errorf("NextBoarding(idx=%d) = %q, %q, %v; want %q, %q, %v", tt.idx, stop, svc, ok, tt.stop, tt.service, tt.wantFind)
		}
	}

	if _, _, ok := NextBoarding(&trip.Trip{}); ok {
		t.Error("trip without legs should have no boarding")
	}
}

func TestFormatMinutes(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{-2 * time.Minute, "now"},
		{0, "now"},
		{20 * time.Second, "now"},
		{time.Minute, "1 min"},
		{5 * time.Minute, "5 min"},
		{5*time.Minute - 2*time.Second, "5 min"},
		{12 * time.Minute, "12 min"},
	}
	for _, tt := range tests {
		if got := FormatMinutes(tt.d); got != tt.want {
			t.Errorf("FormatMinutes(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestInstruction(t *testing.T) {
	tests := []struct {
		leg  trip.Leg
		want string
	}{
		{trip.Leg{Type: trip.LegWalk, ToStopName: "StopA"}, "Walk to StopA"},
		{trip.Leg{Type: trip.LegWalk}, "Walk to destination"},
		{trip.Leg{Type: trip.LegBus, BusServiceNumber: "96", ToStopName: "Clementi"}, "Take Bus 96 to Clementi"},
		{trip.Leg{Type: trip.LegBus}, "Take Bus N/A to destination"},
		{trip.Leg{Type: "FERRY", Instruction: "Board the ferry"}, "Board the ferry"},
		{trip.Leg{Type: "FERRY"}, "Follow the route"},
	}
	for _, tt := range tests {
		if got := Instruction(tt.leg); got != tt.want {
			t.Errorf("Instruction(%+v) = %q, want %q", tt.leg, got, tt.want)
		}
	}
}

func TestTripStartNotifications_FailureIsolated(t *testing.T) {
	tr := &fakeTransit{
		stops:    []transit.Stop{{Code: "11111", Name: "StopA", SourceID: "LTA"}},
		arrivals: []transit.Arrival{{ServiceName: "96", Times: []time.Time{now.Add(3 * time.Minute)}}},
	}
	n := &fakeNotifier{fail: map[string]bool{"Trip Starting": true}}
	c := newComposer(tr, n)

	c.TripStartNotifications(context.Background(), walkThenBus())

	titles := map[string]string{}
	for _, s := range n.sent {
		titles[s.title] = s.body
	}
	if len(titles) != 2 {
		t.Fatalf("sent %v, want first-instruction and bus-arrival", n.sent)
	}
	if titles["First Step"] != "Walk to StopA" {
		t.Errorf("first instruction = %q", titles["First Step"])
	}
	if !strings.Contains(titles["Bus 96"], "3 min") {
		t.Errorf("bus arrival = %q", titles["Bus 96"])
	}
}

func TestTripStart_Body(t *testing.T) {
	n := &fakeNotifier{}
	c := newComposer(&fakeTransit{}, n)
	if err := c.TripStart(context.Background(), walkThenBus()); err != nil {
		t.Fatalf("TripStart: %v", err)
	}
	if n.sent[0].body != "Trip Starting from Home to NUS" {
		t.Errorf("body = %q", n.sent[0].body)
	}
}

func TestFirstInstruction_NoLegs(t *testing.T) {
	n := &fakeNotifier{}
	c := newComposer(&fakeTransit{}, n)
	if err := c.FirstInstruction(context.Background(), &trip.Trip{Username: "alice"}); err != nil {
		t.Fatal(err)
	}
	if len(n.sent) != 0 {
		t.Error("no legs should send nothing")
	}
}
