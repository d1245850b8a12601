package handler

import (
	"context"
	"net/http"

	"gocommute/internal/schedule"
)

// CreateJob handles POST /jobs.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req schedule.NewJob
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	j, err := h.jobs.Create(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, j)
}

// GetJob handles GET /jobs/{id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	h.jobAction(w, r, h.jobs.Get)
}

// CancelJob handles POST /jobs/{id}/cancel.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	h.jobAction(w, r, h.jobs.Cancel)
}

// SkipJob handles POST /jobs/{id}/skip.
func (h *Handler) SkipJob(w http.ResponseWriter, r *http.Request) {
	h.jobAction(w, r, h.jobs.Skip)
}

// ResetJob handles POST /jobs/{id}/reset.
func (h *Handler) ResetJob(w http.ResponseWriter, r *http.Request) {
	h.jobAction(w, r, h.jobs.Reset)
}

func (h *Handler) jobAction(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (*schedule.NotificationJob, error)) {
	j, err := fn(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, j)
}
