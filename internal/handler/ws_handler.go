package handler

import (
	"context"
	"log/slog"
	"net/http"

	"streamroom/internal/domain"
	"streamroom/internal/hub"
	"streamroom/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades subscription requests and attaches them to the
// broadcast hub.
type WebSocketHandler struct {
	hub         *hub.Hub
	presence    domain.PresenceStore
	defaultRoom string
	upgrader    websocket.Upgrader
}

// NewWebSocketHandler creates a websocket subscription handler. Origins are
// checked against the configured allow list.
func NewWebSocketHandler(h *hub.Hub, presence domain.PresenceStore, defaultRoom, allowedOrigins string) *WebSocketHandler {
	origins := middleware.ParseOrigins(allowedOrigins)

	return &WebSocketHandler{
		hub:         h,
		presence:    presence,
		defaultRoom: defaultRoom,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					// Non-browser clients (server-to-server, CLI).
					return true
				}
				for _, o := range origins {
					if o == origin || o == "*" {
						return true
					}
				}
				return false
			},
		},
	}
}

// Subscribe handles the websocket upgrade for one room. The room id is a
// connection parameter and defaults to the lobby; the sender identity is an
// opaque string.
func (h *WebSocketHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room_id")
	if roomID == "" {
		roomID = r.URL.Query().Get("room")
	}
	if roomID == "" {
		roomID = h.defaultRoom
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user_id required")
		return
	}
	name := r.URL.Query().Get("name")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	// The request context dies with this handler; the subscriber outlives it.
	sub := hub.NewSubscriber(context.Background(), h.hub, conn, userID, name, roomID, h.presence)
	h.hub.Register(sub)

	go sub.WritePump()
	go sub.ReadPump()
}
