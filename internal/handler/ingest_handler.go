package handler

import (
	"encoding/json"
	"net/http"

	"streamroom/internal/hub"
)

// IngestHandler is the server-to-server ingestion endpoint: an external
// producer (typically a stream orchestrator running in another process)
// submits an event here and it is re-broadcast verbatim to the room.
type IngestHandler struct {
	hub *hub.Hub
}

// NewIngestHandler creates an ingestion handler.
func NewIngestHandler(h *hub.Hub) *IngestHandler {
	return &IngestHandler{hub: h}
}

// IngestRequest is the ingestion payload. Message is carried as raw JSON so
// the broadcast preserves it byte for byte.
type IngestRequest struct {
	RoomID  string          `json:"room_id"`
	Message json.RawMessage `json:"message"`
}

// Broadcast re-broadcasts the submitted event to every member of the room.
func (h *IngestHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.RoomID == "" || len(req.Message) == 0 {
		respondError(w, http.StatusBadRequest, "room_id and message required")
		return
	}

	h.hub.BroadcastRaw(req.RoomID, req.Message)
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
