package handler

import (
	"net/http"
	"strconv"
	"time"

	"gocommute/internal/transit"
)

const (
	defaultNearbyRadius = 400.0
	maxNearbyRadius     = 2000.0
)

type stopsResponse struct {
	Stops []transit.Stop `json:"stops"`
	Count int            `json:"count"`
}

// Stops handles GET /stops?q=
func (h *Handler) Stops(w http.ResponseWriter, r *http.Request) {
	stops := h.transit.Search(r.Context(), r.URL.Query().Get("q"))
	if stops == nil {
		stops = []transit.Stop{}
	}
	h.writeJSON(w, http.StatusOK, stopsResponse{Stops: stops, Count: len(stops)})
}

type nearbyResponse struct {
	Stops  []transit.NearbyStop `json:"stops"`
	Radius float64              `json:"radiusMeters"`
}

// NearbyStops handles GET /stops/nearby?lat=&lon=&radius=
func (h *Handler) NearbyStops(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		h.writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}

	radius := defaultNearbyRadius
	if s := q.Get("radius"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 {
			h.writeError(w, http.StatusBadRequest, "radius must be a positive number of meters")
			return
		}
		radius = min(v, maxNearbyRadius)
	}

	stops := h.transit.Nearby(r.Context(), lat, lon, radius)
	if stops == nil {
		stops = []transit.NearbyStop{}
	}
	h.writeJSON(w, http.StatusOK, nearbyResponse{Stops: stops, Radius: radius})
}

type arrivalView struct {
	transit.Arrival
	NextMinutes *int `json:"nextMinutes,omitempty"`
}

type arrivalsResponse struct {
	Stop     transit.Stop  `json:"stop"`
	Arrivals []arrivalView `json:"arrivals"`
}

// Arrivals handles GET /stops/{source}/{code}/arrivals. A stop missing from
// the catalog is still queried on its provider.
func (h *Handler) Arrivals(w http.ResponseWriter, r *http.Request) {
	source, code := r.PathValue("source"), r.PathValue("code")
	stop, ok := h.transit.Stop(r.Context(), source, code)
	if !ok {
		stop = transit.Stop{Code: code, SourceID: source}
	}

	arrivals, err := h.transit.ArrivalsFor(r.Context(), stop)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	now := time.Now()
	views := make([]arrivalView, 0, len(arrivals))
	for _, a := range arrivals {
		v := arrivalView{Arrival: a}
		if next, ok := a.Next(); ok {
			mins := max(int(next.Sub(now).Minutes()), 0)
			v.NextMinutes = &mins
		}
		views = append(views, v)
	}
	h.writeJSON(w, http.StatusOK, arrivalsResponse{Stop: stop, Arrivals: views})
}

// Sources handles GET /sources.
func (h *Handler) Sources(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string][]string{"sources": h.transit.Sources()})
}

// RefreshSources handles POST /sources/refresh. It rebuilds the stop catalog
// from every provider; the previous catalog stays if all of them fail.
func (h *Handler) RefreshSources(w http.ResponseWriter, r *http.Request) {
	stops := h.transit.Refresh(r.Context())
	h.logger.Info("stop catalog refreshed", "stops", len(stops))
	h.writeJSON(w, http.StatusOK, map[string]int{"stops": len(stops)})
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", "error", err)
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sources": h.transit.Sources()})
}
