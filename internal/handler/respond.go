package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"gocommute/internal/schedule"
	"gocommute/internal/trip"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeDomainError maps domain errors onto HTTP status codes. Unknown
// providers and storage failures are 500s.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		h.writeError(w, status, "internal error")
		return
	}
	h.writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, trip.ErrActiveTripExists):
		return http.StatusConflict
	case errors.Is(err, trip.ErrTripNotFound), errors.Is(err, schedule.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, trip.ErrLegIndexOutOfRange),
		errors.Is(err, trip.ErrTripCompleted),
		errors.Is(err, trip.ErrInvalidRoute),
		errors.Is(err, schedule.ErrInvalidJob):
		return http.StatusBadRequest
	case errors.Is(err, schedule.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
