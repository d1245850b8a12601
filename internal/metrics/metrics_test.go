package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_Hooks(t *testing.T) {
	c := NewCollector()

	c.TickObserved("dispatch", 20*time.Millisecond)
	c.TickObserved("dispatch", 10*time.Millisecond)
	c.NotificationDispatched()
	c.NotificationSkipped("no_token")
	c.NotificationSkipped("no_token")
	c.PushSent()
	c.PushFailed()
	c.NATSSetConnected(true)
	c.TripStarted()
	c.ProviderError("NUS", "stops")
	c.CatalogSize(5123)
	c.HTTPRequest("GET", 200)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"dispatch ticks", testutil.ToFloat64(c.SchedulerTicks.WithLabelValues("dispatch")), 2},
		{"dispatched", testutil.ToFloat64(c.NotificationsDispatched), 1},
		{"skipped no_token", testutil.ToFloat64(c.NotificationsSkipped.WithLabelValues("no_token")), 2},
		{"push published", testutil.ToFloat64(c.PushPublished), 1},
		{"push errors", testutil.ToFloat64(c.PushPublishErrs), 1},
		{"nats connected", testutil.ToFloat64(c.NATSConnected), 1},
		{"trips started", testutil.ToFloat64(c.TripsStarted), 1},
		{"provider errors", testutil.ToFloat64(c.ProviderErrors.WithLabelValues("NUS", "stops")), 1},
		{"catalog", testutil.ToFloat64(c.CatalogStops), 5123},
		{"http", testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "200")), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	c.NATSSetConnected(false)
	if v := testutil.ToFloat64(c.NATSConnected); v != 0 {
		t.Errorf("nats connected after disconnect = %v", v)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.TripCompleted()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "gocommute_trips_completed_total 1") {
		t.Errorf("exposition missing trips completed counter:\n%s", body)
	}
}
