package handler

import (
	"net/http"

	"streamroom/internal/hub"
)

// HealthHandler reports process liveness and hub introspection.
type HealthHandler struct {
	hub *hub.Hub
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(h *hub.Hub) *HealthHandler {
	return &HealthHandler{hub: h}
}

// Health returns liveness plus the number of rooms with active members.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"active_rooms": h.hub.RoomCount(),
	})
}
