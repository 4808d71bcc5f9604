package handler

import (
	"encoding/json"
	"net/http"

	"streamroom/internal/domain"
	"streamroom/internal/moderation"

	"github.com/go-chi/chi/v5"
)

// AdminHandler is the management surface: aggregated room state plus
// settings updates and moderation actions. The actor is an opaque string
// taken from the X-Actor header.
type AdminHandler struct {
	moderation *moderation.Service
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(service *moderation.Service) *AdminHandler {
	return &AdminHandler{moderation: service}
}

// RoomOverview returns stats, settings, flagged messages and the moderation
// log for one room.
func (h *AdminHandler) RoomOverview(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room_id")

	overview, err := h.moderation.RoomOverview(r.Context(), roomID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, overview)
}

// UpdateSettings merges a settings patch into the room's settings;
// unspecified fields are retained.
func (h *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room_id")

	var patch domain.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	settings, err := h.moderation.UpdateSettings(r.Context(), roomID, patch, actor(r))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// ResolveFlags clears a message's moderation flags.
func (h *AdminHandler) ResolveFlags(w http.ResponseWriter, r *http.Request) {
	message, err := h.moderation.ResolveFlags(r.Context(), chi.URLParam(r, "message_id"), actor(r))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, message)
}

// Hide hides a message from regular history reads.
func (h *AdminHandler) Hide(w http.ResponseWriter, r *http.Request) {
	h.setHidden(w, r, true)
}

// Unhide restores a hidden message.
func (h *AdminHandler) Unhide(w http.ResponseWriter, r *http.Request) {
	h.setHidden(w, r, false)
}

func (h *AdminHandler) setHidden(w http.ResponseWriter, r *http.Request, hidden bool) {
	message, err := h.moderation.SetHidden(r.Context(), chi.URLParam(r, "message_id"), hidden, actor(r))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, message)
}

func actor(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "admin"
}
