package domain

import (
	"context"
	"encoding/json"
)

// Event type discriminators. Every event carried to room members is a JSON
// object with a "type" field holding one of these values.
const (
	EventToken            = "token"
	EventDone             = "done"
	EventAssistantMessage = "assistant-message"
	EventUserMessage      = "user-message"
	EventTyping           = "typing"
	EventMessageUpdated   = "message-updated"
	EventMessageDeleted   = "message-deleted"
	EventPresence         = "presence"
	EventError            = "error"
)

// TokenEvent carries one incremental fragment of generated text.
type TokenEvent struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
}

// DoneEvent marks the end of a successful generation.
type DoneEvent struct {
	Type string `json:"type"`
}

// AssistantMessageEvent carries the fully assembled assistant response.
type AssistantMessageEvent struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Content string `json:"content"`
}

// UserMessageEvent announces an accepted user message to the room.
type UserMessageEvent struct {
	Type        string       `json:"type"`
	ID          string       `json:"id"`
	Content     string       `json:"content"`
	SenderID    string       `json:"senderId"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Flags       []string     `json:"flags,omitempty"`
}

// TypingEvent reports a change in a user's typing state.
type TypingEvent struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// MessageUpdatedEvent carries the new state of a mutated message.
type MessageUpdatedEvent struct {
	Type    string   `json:"type"`
	Message *Message `json:"message"`
}

// MessageDeletedEvent announces a message removal.
type MessageDeletedEvent struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// PresenceEvent replaces the viewer's presence list wholesale.
type PresenceEvent struct {
	Type  string      `json:"type"`
	Users []*Presence `json:"users"`
}

// ErrorEvent tells every room member that an in-flight attempt failed.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewTokenEvent(delta string) TokenEvent {
	return TokenEvent{Type: EventToken, Delta: delta}
}

func NewDoneEvent() DoneEvent {
	return DoneEvent{Type: EventDone}
}

func NewAssistantMessageEvent(m *Message) AssistantMessageEvent {
	return AssistantMessageEvent{Type: EventAssistantMessage, ID: m.ID, Content: m.Content}
}

func NewUserMessageEvent(m *Message) UserMessageEvent {
	return UserMessageEvent{
		Type:        EventUserMessage,
		ID:          m.ID,
		Content:     m.Content,
		SenderID:    m.SenderID,
		Attachments: m.Attachments,
		Flags:       m.Flags,
	}
}

func NewTypingEvent(userID string, isTyping bool) TypingEvent {
	return TypingEvent{Type: EventTyping, UserID: userID, IsTyping: isTyping}
}

func NewMessageUpdatedEvent(m *Message) MessageUpdatedEvent {
	return MessageUpdatedEvent{Type: EventMessageUpdated, Message: m}
}

func NewMessageDeletedEvent(id string) MessageDeletedEvent {
	return MessageDeletedEvent{Type: EventMessageDeleted, ID: id}
}

func NewPresenceEvent(users []*Presence) PresenceEvent {
	return PresenceEvent{Type: EventPresence, Users: users}
}

func NewErrorEvent(message string) ErrorEvent {
	return ErrorEvent{Type: EventError, Message: message}
}

// EventType extracts the discriminator from a raw event payload.
func EventType(data []byte) (string, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", err
	}
	return envelope.Type, nil
}

// Broadcaster fans an event out to every member of a room. Implementations
// are best-effort: a delivery failure to one member must not fail the call.
type Broadcaster interface {
	Broadcast(ctx context.Context, roomID string, event any) error
}
