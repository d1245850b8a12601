package metrics

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private Prometheus registry and implements the metrics
// hooks of the transit, trip, push and schedule packages.
type Collector struct {
	reg *prometheus.Registry

	SchedulerTicks *prometheus.CounterVec // scheduler label: dispatch|recurrence
	TickDuration   *prometheus.HistogramVec

	NotificationsDispatched prometheus.Counter
	NotificationsFailed     prometheus.Counter
	NotificationsSkipped    *prometheus.CounterVec // reason label

	PushPublished   prometheus.Counter
	PushPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	TripsStarted   prometheus.Counter
	TripsCompleted prometheus.Counter

	ProviderErrors *prometheus.CounterVec // source, op labels
	CatalogStops   prometheus.Gauge

	HTTPRequests *prometheus.CounterVec // method, code labels
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		SchedulerTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gocommute_scheduler_ticks_total",
			Help: "Scheduler ticks executed.",
		}, []string{"scheduler"}),
		TickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gocommute_scheduler_tick_duration_seconds",
			Help:    "Duration of one scheduler tick.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"scheduler"}),
		NotificationsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gocommute_notifications_dispatched_total",
			Help: "Notification jobs sent.",
		}),
		NotificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gocommute_notifications_failed_total",
			Help: "Notification jobs whose send failed.",
		}),
		NotificationsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gocommute_notifications_skipped_total",
			Help: "Due notification jobs not sent, by reason.",
		}, []string{"reason"}),
		PushPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gocommute_push_published_total",
			Help: "Push messages published to NATS.",
		}),
		PushPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gocommute_push_publish_errors_total",
			Help: "Push publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gocommute_nats_connected",
			Help: "1 if the NATS connection is established, 0 otherwise.",
		}),
		TripsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gocommute_trips_started_total",
			Help: "Trips started.",
		}),
		TripsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gocommute_trips_completed_total",
			Help: "Trips completed.",
		}),
		ProviderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gocommute_provider_errors_total",
			Help: "Transit provider fetch failures.",
		}, []string{"source", "op"}),
		CatalogStops: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gocommute_catalog_stops",
			Help: "Stops in the unified catalog.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gocommute_http_requests_total",
			Help: "HTTP requests served.",
		}, []string{"method", "code"}),
	}

	reg.MustRegister(
		c.SchedulerTicks, c.TickDuration,
		c.NotificationsDispatched, c.NotificationsFailed, c.NotificationsSkipped,
		c.PushPublished, c.PushPublishErrs, c.NATSConnected,
		c.TripsStarted, c.TripsCompleted,
		c.ProviderErrors, c.CatalogStops,
		c.HTTPRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) TickObserved(scheduler string, d time.Duration) {
	c.SchedulerTicks.WithLabelValues(scheduler).Inc()
	c.TickDuration.WithLabelValues(scheduler).Observe(d.Seconds())
}

func (c *Collector) NotificationDispatched() { c.NotificationsDispatched.Inc() }
func (c *Collector) NotificationFailed()     { c.NotificationsFailed.Inc() }
func (c *Collector) NotificationSkipped(reason string) {
	c.NotificationsSkipped.WithLabelValues(reason).Inc()
}

func (c *Collector) PushSent()   { c.PushPublished.Inc() }
func (c *Collector) PushFailed() { c.PushPublishErrs.Inc() }

func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

func (c *Collector) TripStarted()   { c.TripsStarted.Inc() }
func (c *Collector) TripCompleted() { c.TripsCompleted.Inc() }

func (c *Collector) ProviderError(sourceID, op string) {
	c.ProviderErrors.WithLabelValues(sourceID, op).Inc()
}

func (c *Collector) CatalogSize(n int) { c.CatalogStops.Set(float64(n)) }

func (c *Collector) HTTPRequest(method string, code int) {
	c.HTTPRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on a dedicated address.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	logger.Info("metrics listening", "addr", addr)
	return srv
}
