package handler

import (
	"context"
	"net/http"

	"gocommute/internal/trip"
)

type startTripRequest struct {
	Username      string     `json:"username"`
	StartLocation string     `json:"startLocation"`
	EndLocation   string     `json:"endLocation"`
	Legs          []trip.Leg `json:"legs"`
}

// StartTrip handles POST /trips. Trip-start notifications are sent after
// the response, on a context that outlives the request.
func (h *Handler) StartTrip(w http.ResponseWriter, r *http.Request) {
	var req startTripRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	t, err := h.trips.Start(r.Context(), req.Username, req.StartLocation, req.EndLocation, req.Legs)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	if h.notifier != nil {
		started := *t
		go func() {
			ctx, cancel := context.WithTimeout(h.background, h.notifyTTL)
			defer cancel()
			h.notifier.TripStartNotifications(ctx, &started)
		}()
	}
	h.writeJSON(w, http.StatusCreated, t)
}

// ActiveTrip handles GET /trips/active?user=
func (h *Handler) ActiveTrip(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		h.writeError(w, http.StatusBadRequest, "user is required")
		return
	}
	t, err := h.trips.ActiveTrip(r.Context(), user)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if t == nil {
		h.writeError(w, http.StatusNotFound, "no active trip")
		return
	}
	h.writeJSON(w, http.StatusOK, t)
}

type historyResponse struct {
	Trips []trip.Trip `json:"trips"`
	Count int         `json:"count"`
}

// TripHistory handles GET /trips/history?user=
func (h *Handler) TripHistory(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		h.writeError(w, http.StatusBadRequest, "user is required")
		return
	}
	trips, err := h.trips.History(r.Context(), user)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if trips == nil {
		trips = []trip.Trip{}
	}
	h.writeJSON(w, http.StatusOK, historyResponse{Trips: trips, Count: len(trips)})
}

type progressRequest struct {
	LegIndex *int `json:"legIndex"`
}

// TripProgress handles POST /trips/{id}/progress.
func (h *Handler) TripProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := decodeJSON(w, r, &req); err != nil || req.LegIndex == nil {
		h.writeError(w, http.StatusBadRequest, "legIndex is required")
		return
	}
	t, err := h.trips.UpdateProgress(r.Context(), r.PathValue("id"), *req.LegIndex)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, t)
}

// CompleteTrip handles POST /trips/{id}/complete.
func (h *Handler) CompleteTrip(w http.ResponseWriter, r *http.Request) {
	t, err := h.trips.Complete(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, t)
}
