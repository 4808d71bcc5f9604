package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"streamroom/internal/domain"
	"streamroom/internal/moderation"
	"streamroom/internal/orchestrator"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// MessageHandler serves the message surface of a room: submission with a
// streamed response, history, reactions, pinning and deletion.
type MessageHandler struct {
	orchestrator *orchestrator.Orchestrator
	messages     domain.MessageStore
	presence     domain.PresenceStore
	broadcaster  domain.Broadcaster
	validate     *validator.Validate
}

// NewMessageHandler creates a message handler.
func NewMessageHandler(orch *orchestrator.Orchestrator, messages domain.MessageStore,
	presence domain.PresenceStore, broadcaster domain.Broadcaster) *MessageHandler {
	return &MessageHandler{
		orchestrator: orch,
		messages:     messages,
		presence:     presence,
		broadcaster:  broadcaster,
		validate:     validator.New(),
	}
}

// SubmitRequest is the message submission payload. The id is optional and
// lets a client retry a submission idempotently.
type SubmitRequest struct {
	ID          string              `json:"id" validate:"omitempty,max=64"`
	SenderID    string              `json:"sender_id" validate:"required,max=64"`
	Content     string              `json:"content" validate:"required,max=4000"`
	Attachments []domain.Attachment `json:"attachments,omitempty" validate:"max=10,dive"`
}

// Submit accepts a user message, runs it through the orchestrator pipeline
// and streams the generated response body fragment by fragment.
func (h *MessageHandler) Submit(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room_id")

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	flusher, _ := w.(http.Flusher)
	started := false
	sink := func(delta string) error {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := w.Write([]byte(delta)); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	_, err := h.orchestrator.Submit(r.Context(), orchestrator.SubmitRequest{
		RoomID:      roomID,
		SenderID:    req.SenderID,
		Content:     req.Content,
		MessageID:   req.ID,
		Attachments: req.Attachments,
		Flags:       moderation.DetectFlags(req.Content),
	}, sink)

	if err != nil {
		if started {
			// The stream already carried bytes; the in-band error event has
			// told the room. Nothing sane to add here.
			slog.Warn("submission failed mid-stream", slog.String("error", err.Error()))
			return
		}
		if errors.Is(err, r.Context().Err()) && r.Context().Err() != nil {
			return
		}
		respondDomainError(w, err)
		return
	}

	if !started {
		// Empty generation: still a success.
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
	}
}

// List returns the room's history, hidden messages excluded unless asked
// for.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room_id")

	messages, err := h.messages.List(r.Context(), roomID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	includeHidden := r.URL.Query().Get("include_hidden") == "true"
	if !includeHidden {
		visible := messages[:0]
		for _, m := range messages {
			if !m.Hidden {
				visible = append(visible, m)
			}
		}
		messages = visible
	}

	respondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// ToggleReactionRequest identifies one reaction toggle.
type ToggleReactionRequest struct {
	Emoji  string `json:"emoji" validate:"required,max=16"`
	UserID string `json:"user_id" validate:"required,max=64"`
}

// ToggleReaction flips a user's reaction on a message and announces the new
// message state.
func (h *MessageHandler) ToggleReaction(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "message_id")

	var req ToggleReactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	message, err := h.messages.ToggleReaction(r.Context(), messageID, req.Emoji, req.UserID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	h.broadcastUpdated(r, message)
	respondJSON(w, http.StatusOK, message)
}

// SetPinnedRequest sets a message's pinned flag.
type SetPinnedRequest struct {
	Pinned bool `json:"pinned"`
}

// SetPinned pins or unpins a message.
func (h *MessageHandler) SetPinned(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "message_id")

	var req SetPinnedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	message, err := h.messages.Update(r.Context(), messageID, domain.MessagePatch{Pinned: &req.Pinned})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	h.broadcastUpdated(r, message)
	respondJSON(w, http.StatusOK, message)
}

// Delete removes a message and announces the removal to its room.
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "message_id")

	message, err := h.messages.Get(r.Context(), messageID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	existed, err := h.messages.Delete(r.Context(), messageID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if !existed {
		respondError(w, http.StatusNotFound, "Not found")
		return
	}

	if err := h.broadcaster.Broadcast(r.Context(), message.RoomID, domain.NewMessageDeletedEvent(messageID)); err != nil {
		slog.Warn("failed to broadcast message deletion",
			slog.String("error", err.Error()),
			slog.String("message_id", messageID))
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// Presence returns the room's live presence list.
func (h *MessageHandler) Presence(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room_id")

	users, err := h.presence.ListByRoom(r.Context(), roomID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *MessageHandler) broadcastUpdated(r *http.Request, message *domain.Message) {
	if err := h.broadcaster.Broadcast(r.Context(), message.RoomID, domain.NewMessageUpdatedEvent(message)); err != nil {
		slog.Warn("failed to broadcast message update",
			slog.String("error", err.Error()),
			slog.String("message_id", message.ID))
	}
}
