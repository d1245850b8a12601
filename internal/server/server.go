package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"gocommute/internal/config"
	"gocommute/internal/handler"
)

// Server is the HTTP server for gocommute.
type Server struct {
	mux    *http.ServeMux
	srv    *http.Server
	cfg    *config.Config
	logger *slog.Logger
}

// New creates a Server with all routes registered. metrics may be nil, in
// which case /metrics is not served.
func New(cfg *config.Config, h *handler.Handler, metrics Metrics, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Stops
	mux.HandleFunc("GET /sources", h.Sources)
	mux.HandleFunc("POST /sources/refresh", h.RefreshSources)
	mux.HandleFunc("GET /stops", h.Stops)
	mux.HandleFunc("GET /stops/nearby", h.NearbyStops)
	mux.HandleFunc("GET /stops/{source}/{code}/arrivals", h.Arrivals)

	// Trips
	mux.HandleFunc("POST /trips", h.StartTrip)
	mux.HandleFunc("GET /trips/active", h.ActiveTrip)
	mux.HandleFunc("GET /trips/history", h.TripHistory)
	mux.HandleFunc("POST /trips/{id}/progress", h.TripProgress)
	mux.HandleFunc("POST /trips/{id}/complete", h.CompleteTrip)

	// Plans, devices and notification jobs
	mux.HandleFunc("POST /plans", h.CreatePlan)
	mux.HandleFunc("PUT /devices/{id}", h.RegisterDevice)
	mux.HandleFunc("POST /jobs", h.CreateJob)
	mux.HandleFunc("GET /jobs/{id}", h.GetJob)
	mux.HandleFunc("POST /jobs/{id}/cancel", h.CancelJob)
	mux.HandleFunc("POST /jobs/{id}/skip", h.SkipJob)
	mux.HandleFunc("POST /jobs/{id}/reset", h.ResetJob)

	// Service
	mux.HandleFunc("GET /healthz", h.Health)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	s := &Server{mux: mux, cfg: cfg, logger: logger}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           withMiddleware(mux, logger, metrics),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// ListenAndServe starts the HTTP server. It returns nil after Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
