package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gocommute/internal/config"
	"gocommute/internal/handler"
	"gocommute/internal/metrics"
	"gocommute/internal/schedule"
	"gocommute/internal/storage"
	"gocommute/internal/transit"
	"gocommute/internal/trip"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type staticProvider struct {
	id       string
	stops    []transit.Stop
	arrivals []transit.Arrival
}

func (p *staticProvider) ID() string { return p.id }
func (p *staticProvider) FetchStops(ctx context.Context) ([]transit.Stop, error) {
	return p.stops, nil
}
func (p *staticProvider) FetchArrivals(ctx context.Context, code string) ([]transit.Arrival, error) {
	return p.arrivals, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open(ctx, "sqlite:"+filepath.Join(t.TempDir(), "server.db"), testLogger)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	lta := &staticProvider{
		id: "LTA",
		stops: []transit.Stop{
			{Code: "18331", Name: "Kent Ridge Stn Exit A", Lat: 1.2935, Lon: 103.7846},
			{Code: "01012", Name: "Hotel Grand Pacific", Lat: 1.2968, Lon: 103.8525},
		},
		arrivals: []transit.Arrival{{ServiceName: "96", Operator: "SBST", Times: []time.Time{time.Now().Add(4 * time.Minute)}}},
	}
	m := metrics.NewCollector()
	agg, err := transit.NewAggregator([]transit.Provider{lta}, transit.Options{Metrics: m}, testLogger)
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}

	tracker := trip.NewTracker(db, m, testLogger)
	jobs := schedule.NewJobs(db, testLogger)
	h := handler.New(ctx, agg, tracker, nil, jobs, db, nil, testLogger)
	srv := New(&config.Config{Port: 0}, h, m, testLogger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		json.Unmarshal(raw, &out)
	}
	return resp, out
}

const tripBody = `{"username":"alice","startLocation":"Home","endLocation":"NUS","legs":[
	{"type":"WALK","durationMinutes":4,"instruction":"Walk","toStopName":"Kent Ridge Stn Exit A"},
	{"type":"BUS","durationMinutes":12,"busServiceNumber":"96","fromStopName":"Kent Ridge Stn Exit A","toStopName":"NUS"}]}`

func TestTripLifecycle(t *testing.T) {
	ts := newTestServer(t)

	resp, created := do(t, "POST", ts.URL+"/trips", tripBody)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /trips = %d (%v)", resp.StatusCode, created)
	}
	id, _ := created["id"].(string)
	if id == "" || created["status"] != "ON_TRIP" {
		t.Fatalf("created trip = %v", created)
	}

	steps := []struct {
		method, path, body string
		want               int
	}{
		{"POST", "/trips", tripBody, http.StatusConflict},
		{"POST", "/trips/" + id + "/progress", `{"legIndex":5}`, http.StatusBadRequest},
		{"POST", "/trips/" + id + "/progress", `{}`, http.StatusBadRequest},
		{"POST", "/trips/" + id + "/progress", `{"legIndex":1}`, http.StatusOK},
		{"GET", "/trips/active?user=alice", "", http.StatusOK},
		{"POST", "/trips/" + id + "/complete", "", http.StatusOK},
		{"POST", "/trips/" + id + "/complete", "", http.StatusOK},
		{"POST", "/trips/" + id + "/progress", `{"legIndex":0}`, http.StatusBadRequest},
		{"GET", "/trips/active?user=alice", "", http.StatusNotFound},
		{"GET", "/trips/active", "", http.StatusBadRequest},
		{"POST", "/trips/missing/complete", "", http.StatusNotFound},
		{"POST", "/trips", `{"username":"bob","legs":[]}`, http.StatusBadRequest},
		{"POST", "/trips", `not json`, http.StatusBadRequest},
	}
	for _, s := range steps {
		resp, body := do(t, s.method, ts.URL+s.path, s.body)
		if resp.StatusCode != s.want {
			t.Errorf("%s %s = %d, want %d (%v)", s.method, s.path, resp.StatusCode, s.want, body)
		}
	}

	_, history := do(t, "GET", ts.URL+"/trips/history?user=alice", "")
	if history["count"] != float64(1) {
		t.Errorf("history = %v", history)
	}
}

func TestStopsEndpoints(t *testing.T) {
	ts := newTestServer(t)

	_, all := do(t, "GET", ts.URL+"/stops", "")
	if all["count"] != float64(2) {
		t.Errorf("GET /stops count = %v", all["count"])
	}
	_, kent := do(t, "GET", ts.URL+"/stops?q=KENT", "")
	if kent["count"] != float64(1) {
		t.Errorf("GET /stops?q=KENT count = %v", kent["count"])
	}

	resp, near := do(t, "GET", ts.URL+"/stops/nearby?lat=1.2936&lon=103.7850&radius=300", "")
	if resp.StatusCode != http.StatusOK || len(near["stops"].([]any)) != 1 {
		t.Errorf("nearby = %d %v", resp.StatusCode, near)
	}
	if resp, _ := do(t, "GET", ts.URL+"/stops/nearby?lat=abc", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad nearby params = %d", resp.StatusCode)
	}

	resp, arr := do(t, "GET", ts.URL+"/stops/LTA/18331/arrivals", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("arrivals = %d", resp.StatusCode)
	}
	list := arr["arrivals"].([]any)
	if len(list) != 1 || list[0].(map[string]any)["serviceName"] != "96" {
		t.Errorf("arrivals = %v", arr)
	}

	if resp, _ := do(t, "GET", ts.URL+"/stops/SBS/1/arrivals", ""); resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("unknown provider = %d, want 500", resp.StatusCode)
	}

	resp, refreshed := do(t, "POST", ts.URL+"/sources/refresh", "")
	if resp.StatusCode != http.StatusOK || refreshed["stops"] != float64(2) {
		t.Errorf("POST /sources/refresh = %d %v", resp.StatusCode, refreshed)
	}
	if resp, _ := do(t, "GET", ts.URL+"/sources/refresh", ""); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /sources/refresh = %d, want 405", resp.StatusCode)
	}
}

func TestJobsAndDevices(t *testing.T) {
	ts := newTestServer(t)

	if resp, _ := do(t, "PUT", ts.URL+"/devices/dev-1", `{"username":"alice","token":"tok"}`); resp.StatusCode != http.StatusOK {
		t.Errorf("PUT /devices = %d", resp.StatusCode)
	}
	if resp, _ := do(t, "PUT", ts.URL+"/devices/dev-1", `{"username":"alice"}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("PUT /devices without token = %d", resp.StatusCode)
	}

	resp, job := do(t, "POST", ts.URL+"/jobs", `{"deviceId":"dev-1","scheduledTime":"08:00","timezone":"Asia/Singapore",
		"selectedDays":[true,false,false,false,false,false,false],"messageTitle":"Leave now"}`)
	if resp.StatusCode != http.StatusCreated || job["status"] != "PENDING" {
		t.Fatalf("POST /jobs = %d %v", resp.StatusCode, job)
	}
	id := job["id"].(string)

	steps := []struct {
		path string
		want int
	}{
		{"/jobs/" + id + "/skip", http.StatusOK},
		{"/jobs/" + id + "/reset", http.StatusOK},
		{"/jobs/" + id + "/cancel", http.StatusOK},
		{"/jobs/" + id + "/skip", http.StatusConflict},
		{"/jobs/missing/cancel", http.StatusNotFound},
	}
	for _, s := range steps {
		if resp, body := do(t, "POST", ts.URL+s.path, ""); resp.StatusCode != s.want {
			t.Errorf("POST %s = %d, want %d (%v)", s.path, resp.StatusCode, s.want, body)
		}
	}

	if resp, _ := do(t, "POST", ts.URL+"/jobs", `{"deviceId":"dev-1","scheduledTime":"8am","timezone":"UTC","selectedDays":[true],"messageTitle":"x"}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid job = %d, want 400", resp.StatusCode)
	}
}

func TestCreatePlan(t *testing.T) {
	ts := newTestServer(t)
	body := `{"username":"alice","notifyTime":"07:45","recurrenceDays":[true,true,true,true,true,false,false],
		"start":{"id":"home","name":"Home"},"end":{"id":"nus","name":"NUS"},
		"legs":[{"type":"BUS","busServiceNumber":"96","fromStopName":"Kent Ridge Stn Exit A"}]}`
	resp, plan := do(t, "POST", ts.URL+"/plans", body)
	if resp.StatusCode != http.StatusCreated || plan["startLocation"] != "Home" {
		t.Fatalf("POST /plans = %d %v", resp.StatusCode, plan)
	}
	if resp, _ := do(t, "POST", ts.URL+"/plans", `{"username":"alice","notifyTime":"7pm"}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid plan = %d", resp.StatusCode)
	}
}

func TestServiceEndpointsAndHeaders(t *testing.T) {
	ts := newTestServer(t)

	resp, health := do(t, "GET", ts.URL+"/healthz", "")
	if resp.StatusCode != http.StatusOK || health["status"] != "ok" {
		t.Errorf("healthz = %d %v", resp.StatusCode, health)
	}
	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Referrer-Policy"} {
		if resp.Header.Get(h) == "" {
			t.Errorf("missing security header %s", h)
		}
	}

	do(t, "GET", ts.URL+"/stops", "")
	mresp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer mresp.Body.Close()
	raw, _ := io.ReadAll(mresp.Body)
	if !strings.Contains(string(raw), `gocommute_http_requests_total{code="200",method="GET"}`) {
		t.Errorf("metrics missing request counter")
	}
	if !strings.Contains(string(raw), "gocommute_catalog_stops 2") {
		t.Errorf("metrics missing catalog size")
	}
}

func TestStatusWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: 200}
	sw.WriteHeader(http.StatusTeapot)
	if sw.status != http.StatusTeapot || rec.Code != http.StatusTeapot {
		t.Errorf("status = %d / %d", sw.status, rec.Code)
	}
}
