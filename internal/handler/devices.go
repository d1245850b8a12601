package handler

import (
	"net/http"
	"strings"
)

type registerDeviceRequest struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// RegisterDevice handles PUT /devices/{id}, storing the device's push token.
func (h *Handler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Token = strings.TrimSpace(req.Token)
	if req.Username == "" || req.Token == "" {
		h.writeError(w, http.StatusBadRequest, "username and token are required")
		return
	}

	id := r.PathValue("id")
	if err := h.store.RegisterDevice(r.Context(), id, req.Username, req.Token); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"deviceId": id, "username": req.Username})
}
