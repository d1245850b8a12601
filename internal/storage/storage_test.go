package storage

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"gocommute/internal/schedule"
	"gocommute/internal/trip"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), "sqlite:"+filepath.Join(t.TempDir(), "test.db"), testLogger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleTrip(id, user string, start time.Time) *trip.Trip {
	return &trip.Trip{
		ID:            id,
		Username:      user,
		StartLocation: "Home",
		EndLocation:   "NUS",
		Legs: []trip.Leg{
			{Type: trip.LegWalk, DurationMinutes: 3, ToStopName: "Opp Blk 1", RoutePoints: []trip.Point{{Lat: 1.3, Lon: 103.8}}},
			{Type: trip.LegBus, DurationMinutes: 12, BusServiceNumber: "96", FromStopName: "Opp Blk 1"},
		},
		Status:    trip.StatusOnTrip,
		StartTime: start,
	}
}

func TestTrips_RoundTripAndOneActive(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

	if err := db.InsertTrip(ctx, sampleTrip("t1", "alice", start)); err != nil {
		t.Fatalf("InsertTrip: %v", err)
	}
	err := db.InsertTrip(ctx, sampleTrip("t2", "alice", start.Add(time.Minute)))
	if !errors.Is(err, trip.ErrActiveTripExists) {
		t.Fatalf("second active insert err = %v, want ErrActiveTripExists", err)
	}

	got, err := db.ActiveTrip(ctx, "alice")
	if err != nil || got == nil {
		t.Fatalf("ActiveTrip = %v, %v", got, err)
	}
	if got.ID != "t1" || len(got.Legs) != 2 || got.Legs[1].BusServiceNumber != "96" || len(got.Legs[0].RoutePoints) != 1 {
		t.Errorf("loaded trip = %+v", got)
	}
	if !got.StartTime.Equal(start) || got.EndTime != nil {
		t.Errorf("times = %v / %v", got.StartTime, got.EndTime)
	}

	end := start.Add(30 * time.Minute)
	got.Status = trip.StatusCompleted
	got.CurrentLegIndex = 1
	got.EndTime = &end
	if err := db.UpdateTrip(ctx, got); err != nil {
		t.Fatalf("UpdateTrip: %v", err)
	}
	if active, _ := db.ActiveTrip(ctx, "alice"); active != nil {
		t.Error("completed trip still active")
	}
	if err := db.InsertTrip(ctx, sampleTrip("t2", "alice", start.Add(time.Hour))); err != nil {
		t.Fatalf("insert after completion: %v", err)
	}

	history, err := db.TripsByUser(ctx, "alice")
	if err != nil {
		t.Fatalf("TripsByUser: %v", err)
	}
	if len(history) != 2 || history[0].ID != "t2" || history[1].ID != "t1" {
		t.Errorf("history = %+v", history)
	}
	if history[1].EndTime == nil || !history[1].EndTime.Equal(end) {
		t.Errorf("end time not persisted: %v", history[1].EndTime)
	}
}

func TestTrips_NotFound(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	got, err := db.TripByID(ctx, "missing")
	if err != nil || got != nil {
		t.Errorf("TripByID(missing) = %v, %v; want nil, nil", got, err)
	}
	if err := db.UpdateTrip(ctx, &trip.Trip{ID: "missing", Status: trip.StatusCompleted}); !errors.Is(err, trip.ErrTripNotFound) {
		t.Errorf("UpdateTrip(missing) err = %v", err)
	}
	history, err := db.TripsByUser(ctx, "nobody")
	if err != nil || len(history) != 0 {
		t.Errorf("TripsByUser(nobody) = %v, %v", history, err)
	}
}

func TestJobs_TransitionStatusIsCompareAndSet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	job := &schedule.NotificationJob{
		ID:            "j1",
		DeviceID:      "dev-1",
		ScheduledTime: "08:00",
		Timezone:      "Asia/Singapore",
		SelectedDays:  schedule.Days{true, false, true},
		MessageTitle:  "Leave now",
		Status:        schedule.StatusPending,
	}
	if err := db.InsertJob(ctx, job); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	ok, err := db.TransitionStatus(ctx, "j1", schedule.StatusPending, schedule.StatusOngoing)
	if err != nil || !ok {
		t.Fatalf("first transition = %v, %v", ok, err)
	}
	ok, err = db.TransitionStatus(ctx, "j1", schedule.StatusPending, schedule.StatusOngoing)
	if err != nil || ok {
		t.Errorf("second transition = %v, %v; want false", ok, err)
	}

	got, err := db.JobByID(ctx, "j1")
	if err != nil || got == nil {
		t.Fatalf("JobByID = %v, %v", got, err)
	}
	if got.Status != schedule.StatusOngoing || got.SelectedDays != job.SelectedDays {
		t.Errorf("loaded job = %+v", got)
	}

	jobs, err := db.ListJobs(ctx)
	if err != nil || len(jobs) != 1 {
		t.Errorf("ListJobs = %v, %v", jobs, err)
	}
	if missing, err := db.JobByID(ctx, "nope"); missing != nil || err != nil {
		t.Errorf("JobByID(nope) = %v, %v", missing, err)
	}
}

func TestDevices(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.RegisterDevice(ctx, "dev-1", "alice", "tok-old"); err != nil {
		t.Fatalf("RegisterDevice: %v", err)
	}
	if err := db.RegisterDevice(ctx, "dev-1", "alice", "tok-new"); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if err := db.RegisterDevice(ctx, "dev-2", "alice", "tok-2"); err != nil {
		t.Fatalf("RegisterDevice dev-2: %v", err)
	}

	tok, err := db.TokenForDevice(ctx, "dev-1")
	if err != nil || tok != "tok-new" {
		t.Errorf("TokenForDevice = %q, %v", tok, err)
	}
	if tok, err := db.TokenForDevice(ctx, "dev-9"); tok != "" || err != nil {
		t.Errorf("unknown device = %q, %v", tok, err)
	}
	tokens, err := db.TokensForUser(ctx, "alice")
	if err != nil || len(tokens) != 2 {
		t.Errorf("TokensForUser = %v, %v", tokens, err)
	}
}

func TestPlans_ResolveLocations(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, l := range []Location{{ID: "home", Name: "Home"}, {ID: "nus", Name: "NUS COM2"}} {
		if err := db.UpsertLocation(ctx, l); err != nil {
			t.Fatalf("UpsertLocation: %v", err)
		}
	}
	plan := &schedule.CommutePlan{
		ID:             "p1",
		Username:       "alice",
		NotifyTime:     "08:00",
		RecurrenceDays: schedule.Days{true, true, true, true, true},
		Legs:           []trip.Leg{{Type: trip.LegBus, BusServiceNumber: "96"}},
	}
	if err := db.InsertPlan(ctx, plan, "home", "nus"); err != nil {
		t.Fatalf("InsertPlan: %v", err)
	}
	if err := db.UpsertLocation(ctx, Location{ID: "nus", Name: "NUS School of Computing"}); err != nil {
		t.Fatalf("rename location: %v", err)
	}

	plans, err := db.ListPlans(ctx)
	if err != nil || len(plans) != 1 {
		t.Fatalf("ListPlans = %v, %v", plans, err)
	}
	got := plans[0]
	if got.StartLocation != "Home" || got.EndLocation != "NUS School of Computing" {
		t.Errorf("locations = %q -> %q", got.StartLocation, got.EndLocation)
	}
	if got.RecurrenceDays != plan.RecurrenceDays || len(got.Legs) != 1 {
		t.Errorf("plan = %+v", got)
	}

	if err := db.InsertPlan(ctx, &schedule.CommutePlan{ID: "p2", Username: "bob", NotifyTime: "09:00"}, "home", "nowhere"); err == nil {
		t.Error("plan referencing a missing location should fail")
	}
}

func TestRebind(t *testing.T) {
	pg := &DB{dialect: dialectPostgres}
	if got := pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"); got != "SELECT a FROM t WHERE x = $1 AND y = $2" {
		t.Errorf("rebind = %q", got)
	}
	lite := &DB{dialect: dialectSQLite}
	if got := lite.rebind("x = ?"); got != "x = ?" {
		t.Errorf("sqlite rebind = %q", got)
	}
}

func TestLocations_CoordinatesKeepDoublePrecision(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	rows, err := db.QueryContext(ctx, `PRAGMA table_info(locations)`)
	if err != nil {
		t.Fatalf("table_info: %v", err)
	}
	types := map[string]string{}
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, typ        string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			t.Fatalf("scan table_info: %v", err)
		}
		types[name] = typ
	}
	rows.Close()
	for _, col := range []string{"lat", "lon"} {
		if types[col] != "DOUBLE PRECISION" {
			t.Errorf("locations.%s declared as %q, want DOUBLE PRECISION", col, types[col])
		}
	}

	want := Location{ID: "com2", Name: "NUS COM2", Lat: 1.2949812345678, Lon: 103.7738712345678}
	if err := db.UpsertLocation(ctx, want); err != nil {
		t.Fatalf("UpsertLocation: %v", err)
	}
	var lat, lon float64
	if err := db.QueryRowContext(ctx, `SELECT lat, lon FROM locations WHERE id = ?`, want.ID).Scan(&lat, &lon); err != nil {
		t.Fatalf("select location: %v", err)
	}
	if lat != want.Lat || lon != want.Lon {
		t.Errorf("coordinates = %v,%v, want %v,%v", lat, lon, want.Lat, want.Lon)
	}
}
