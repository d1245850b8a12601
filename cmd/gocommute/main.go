package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"gocommute/internal/config"
	"gocommute/internal/geocode"
	"gocommute/internal/handler"
	"gocommute/internal/metrics"
	"gocommute/internal/notify"
	"gocommute/internal/provider"
	"gocommute/internal/push"
	"gocommute/internal/schedule"
	"gocommute/internal/server"
	"gocommute/internal/storage"
	"gocommute/internal/transit"
	"gocommute/internal/trip"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// CLI flags
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.DatabaseDSN, "db", cfg.DatabaseDSN, "Database DSN (sqlite:<path> or postgres://...)")
	flag.StringVar(&cfg.ProvidersFile, "providers", cfg.ProvidersFile, "YAML file listing transit providers")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	if err := cfg.LoadProviders(); err != nil {
		logger.Error("failed to load providers", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("bad configuration", "error", err)
		os.Exit(1)
	}

	// Cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	collector := metrics.NewCollector()

	// Transit providers and the merged stop catalog
	providers, err := provider.Build(cfg.Providers, cfg.ProviderTimeout, logger)
	if err != nil {
		logger.Error("failed to build providers", "error", err)
		os.Exit(1)
	}
	if len(providers) == 0 {
		logger.Warn("no transit providers configured, stop search will be empty")
	}
	agg, err := transit.NewAggregator(providers, transit.Options{
		CatalogTTL:  cfg.CatalogTTL,
		ArrivalsTTL: cfg.ArrivalsTTL,
		Metrics:     collector,
	}, logger)
	if err != nil {
		logger.Error("failed to create aggregator", "error", err)
		os.Exit(1)
	}
	go agg.Warm(ctx)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go refreshOnSignal(ctx, hup, agg, logger)

	// Push delivery
	var sender push.Sender = push.NewLogSender(logger)
	if cfg.NATSURL != "" {
		ns, err := push.NewNATSSender(cfg.NATSURL, cfg.PushSubject, collector, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "url", cfg.NATSURL, "error", err)
			os.Exit(1)
		}
		defer ns.Close()
		sender = ns
	} else {
		logger.Info("NATS_URL not set, push notifications are logged only")
	}

	notifier := push.NewUserNotifier(db, sender, logger)
	composer := notify.NewComposer(agg, notifier, logger)
	tracker := trip.NewTracker(db, collector, logger)

	// Background schedulers
	dispatcher := schedule.NewDispatchScheduler(db, db, sender, collector, logger)
	go dispatcher.Start(ctx)
	recurrence := schedule.NewRecurrenceScheduler(db, tracker, composer, cfg.Location, cfg.RecurrenceInterval, collector, logger)
	go recurrence.Start(ctx)

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = collector.Serve(cfg.MetricsAddr, logger)
	}

	var geocoder handler.Geocoder
	if cfg.GeocoderURL != "" {
		geocoder = geocode.New(cfg.GeocoderURL, cfg.GeocoderUserAgent, cfg.GeocoderCountry)
	}

	h := handler.New(ctx, agg, tracker, composer, schedule.NewJobs(db, logger), db, geocoder, logger)
	srv := server.New(cfg, h, collector, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "error", err)
		}
		if metricsSrv != nil {
			metricsSrv.Shutdown(shutdownCtx)
		}
	}
}

type catalogRefresher interface {
	Refresh(ctx context.Context) []transit.Stop
}

// refreshOnSignal rebuilds the stop catalog each time sig fires, until ctx
// is done.
func refreshOnSignal(ctx context.Context, sig <-chan os.Signal, r catalogRefresher, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-sig:
			stops := r.Refresh(ctx)
			logger.Info("stop catalog refreshed", "signal", s.String(), "stops", len(stops))
		}
	}
}
