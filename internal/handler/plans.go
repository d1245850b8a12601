package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"gocommute/internal/schedule"
	"gocommute/internal/storage"
	"gocommute/internal/trip"
)

type createPlanRequest struct {
	Username       string           `json:"username"`
	NotifyTime     string           `json:"notifyTime"`
	RecurrenceDays []bool           `json:"recurrenceDays"`
	Start          storage.Location `json:"start"`
	End            storage.Location `json:"end"`
	Legs           []trip.Leg       `json:"legs"`
}

func (req *createPlanRequest) validate() error {
	if req.Username == "" {
		return fmt.Errorf("username is required")
	}
	if _, _, err := schedule.ParseClock(req.NotifyTime); err != nil {
		return err
	}
	if len(req.RecurrenceDays) != 7 {
		return fmt.Errorf("recurrenceDays must have 7 entries, Monday first")
	}
	for _, l := range []storage.Location{req.Start, req.End} {
		if l.ID == "" {
			return fmt.Errorf("start and end need an id")
		}
		if l.Name == "" && !hasCoords(l) {
			return fmt.Errorf("location %s needs a name or coordinates", l.ID)
		}
	}
	return trip.ValidateRoute(req.Legs)
}

// CreatePlan handles POST /plans. The plan's locations are created or
// renamed as needed.
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	for _, l := range []*storage.Location{&req.Start, &req.End} {
		if err := h.resolveLocation(ctx, l); err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.store.UpsertLocation(ctx, *l); err != nil {
			h.writeDomainError(w, r, err)
			return
		}
	}

	var days schedule.Days
	copy(days[:], req.RecurrenceDays)
	plan := &schedule.CommutePlan{
		ID:             uuid.NewString(),
		Username:       req.Username,
		NotifyTime:     req.NotifyTime,
		RecurrenceDays: days,
		StartLocation:  req.Start.Name,
		EndLocation:    req.End.Name,
		Legs:           req.Legs,
	}
	if err := h.store.InsertPlan(ctx, plan, req.Start.ID, req.End.ID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.logger.Info("commute plan created", "plan", plan.ID, "user", plan.Username, "at", plan.NotifyTime, "days", days.String())
	h.writeJSON(w, http.StatusCreated, plan)
}

func hasCoords(l storage.Location) bool {
	return l.Lat != 0 || l.Lon != 0
}

// resolveLocation fills in missing coordinates by geocoding the name, and
// a missing name by reverse geocoding the coordinates. Geocoder failures
// leave coordinates unset; a location must still end up with a name.
func (h *Handler) resolveLocation(ctx context.Context, l *storage.Location) error {
	if h.geocoder == nil {
		if l.Name == "" {
			return fmt.Errorf("location %s needs a name", l.ID)
		}
		return nil
	}

	if l.Name == "" {
		name, err := h.geocoder.Reverse(ctx, l.Lat, l.Lon)
		if err != nil {
			return fmt.Errorf("location %s: no address for %.6f,%.6f", l.ID, l.Lat, l.Lon)
		}
		l.Name = name
		return nil
	}

	if !hasCoords(*l) {
		res, err := h.geocoder.Search(ctx, l.Name)
		switch {
		case err != nil:
			h.logger.Warn("geocode failed", "location", l.ID, "name", l.Name, "error", err)
		case res != nil:
			l.Lat, l.Lon = res.Lat, res.Lon
		}
	}
	return nil
}
