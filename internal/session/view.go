package session

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"streamroom/internal/domain"
)

// view is the session's local reconstruction of room state. Events are
// push-only with no request correlation, so every handler is a pure
// reaction to one inbound event.
type view struct {
	messages  map[string]*domain.Message
	order     []string
	typing    map[string]bool
	presence  []*domain.Presence
	partial   strings.Builder
	lastError string
}

func newView() view {
	return view{
		messages: make(map[string]*domain.Message),
		typing:   make(map[string]bool),
	}
}

// handleEvent applies one inbound event to the local view.
func (s *Session) handleEvent(data []byte) {
	eventType, err := domain.EventType(data)
	if err != nil {
		slog.Warn("undecodable event", slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	switch eventType {
	case domain.EventToken:
		var e domain.TokenEvent
		if json.Unmarshal(data, &e) == nil {
			s.view.partial.WriteString(e.Delta)
		}

	case domain.EventAssistantMessage:
		var e domain.AssistantMessageEvent
		if json.Unmarshal(data, &e) == nil {
			s.upsertLocked(&domain.Message{
				ID:        e.ID,
				Role:      domain.RoleAssistant,
				Content:   e.Content,
				CreatedAt: time.Now(),
			})
			s.view.partial.Reset()
		}

	case domain.EventDone:
		s.view.partial.Reset()

	case domain.EventUserMessage:
		var e domain.UserMessageEvent
		if json.Unmarshal(data, &e) == nil {
			s.upsertLocked(&domain.Message{
				ID:          e.ID,
				Role:        domain.RoleUser,
				Content:     e.Content,
				SenderID:    e.SenderID,
				Attachments: e.Attachments,
				Flags:       e.Flags,
				CreatedAt:   time.Now(),
			})
		}

	case domain.EventMessageUpdated:
		var e domain.MessageUpdatedEvent
		if json.Unmarshal(data, &e) == nil && e.Message != nil {
			s.upsertLocked(e.Message)
		}

	case domain.EventMessageDeleted:
		var e domain.MessageDeletedEvent
		if json.Unmarshal(data, &e) == nil {
			s.deleteLocked(e.ID)
		}

	case domain.EventTyping:
		var e domain.TypingEvent
		if json.Unmarshal(data, &e) == nil {
			if e.IsTyping {
				s.view.typing[e.UserID] = true
			} else {
				delete(s.view.typing, e.UserID)
			}
		}

	case domain.EventPresence:
		var e domain.PresenceEvent
		if json.Unmarshal(data, &e) == nil {
			s.view.presence = e.Users
		}

	case domain.EventError:
		var e domain.ErrorEvent
		if json.Unmarshal(data, &e) == nil {
			s.view.lastError = e.Message
		}

	default:
		slog.Debug("ignoring unknown event type", slog.String("type", eventType))
	}
	observer := s.observer
	s.mu.Unlock()

	if observer != nil {
		observer(eventType, data)
	}
}

func (s *Session) upsertLocked(m *domain.Message) {
	if _, exists := s.view.messages[m.ID]; !exists {
		s.view.order = append(s.view.order, m.ID)
	}
	s.view.messages[m.ID] = m
}

func (s *Session) deleteLocked(id string) {
	if _, exists := s.view.messages[id]; !exists {
		return
	}
	delete(s.view.messages, id)
	for i, candidate := range s.view.order {
		if candidate == id {
			s.view.order = append(s.view.order[:i], s.view.order[i+1:]...)
			break
		}
	}
}

// Messages returns the local message list in arrival order.
func (s *Session) Messages() []*domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*domain.Message, 0, len(s.view.order))
	for _, id := range s.view.order {
		result = append(result, s.view.messages[id])
	}
	return result
}

// PartialResponse returns the text accumulated from token events since the
// last completed response. It remains usable after a disconnect: locally
// accumulated text never waits for a done event.
func (s *Session) PartialResponse() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.partial.String()
}

// TypingUsers returns the ids of users currently typing.
func (s *Session) TypingUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]string, 0, len(s.view.typing))
	for id := range s.view.typing {
		result = append(result, id)
	}
	return result
}

// Presence returns the latest presence snapshot.
func (s *Session) Presence() []*domain.Presence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.presence
}

// LastError returns the message of the most recent error event.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.lastError
}
