// Package memory provides the transient in-process implementations of the
// store interfaces. State does not survive a restart; durable backends can be
// swapped in behind the same interfaces.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"streamroom/internal/domain"
)

// MessageStore implements domain.MessageStore in memory.
type MessageStore struct {
	mu     sync.RWMutex
	byID   map[string]*domain.Message
	byRoom map[string][]*domain.Message

	now func() time.Time
}

// NewMessageStore creates an empty in-memory message store.
func NewMessageStore() *MessageStore {
	return &MessageStore{
		byID:   make(map[string]*domain.Message),
		byRoom: make(map[string][]*domain.Message),
		now:    time.Now,
	}
}

// Save appends a new message. Saving an id that already exists fails with
// ErrDuplicateID and leaves the store untouched.
func (s *MessageStore) Save(_ context.Context, message *domain.Message) error {
	if message == nil || message.ID == "" || message.RoomID == "" {
		return domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[message.ID]; exists {
		return domain.ErrDuplicateID
	}

	stored := cloneMessage(message)
	now := s.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = stored.CreatedAt

	s.byID[stored.ID] = stored
	s.byRoom[stored.RoomID] = append(s.byRoom[stored.RoomID], stored)

	message.CreatedAt = stored.CreatedAt
	message.UpdatedAt = stored.UpdatedAt
	return nil
}

// List returns the room's history ordered by CreatedAt ascending.
func (s *MessageStore) List(_ context.Context, roomID string) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := s.byRoom[roomID]
	result := make([]*domain.Message, 0, len(messages))
	for _, m := range messages {
		result = append(result, cloneMessage(m))
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Get returns the message with the given id or ErrNotFound.
func (s *MessageStore) Get(_ context.Context, id string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneMessage(m), nil
}

// Update merges the patch into the message and stamps UpdatedAt.
func (s *MessageStore) Update(_ context.Context, id string, patch domain.MessagePatch) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	if patch.Content != nil {
		m.Content = *patch.Content
	}
	if patch.Pinned != nil {
		m.Pinned = *patch.Pinned
	}
	if patch.Hidden != nil {
		m.Hidden = *patch.Hidden
	}
	m.UpdatedAt = s.now()

	return cloneMessage(m), nil
}

// Flag adds a moderation flag to the message. Adding a flag that is already
// present is a no-op.
func (s *MessageStore) Flag(_ context.Context, id, name string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	for _, f := range m.Flags {
		if f == name {
			return cloneMessage(m), nil
		}
	}
	m.Flags = append(m.Flags, name)
	m.UpdatedAt = s.now()
	return cloneMessage(m), nil
}

// ResolveFlags clears every flag on the message.
func (s *MessageStore) ResolveFlags(_ context.Context, id string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	m.Flags = nil
	m.UpdatedAt = s.now()
	return cloneMessage(m), nil
}

// ToggleReaction adds or removes userID from the emoji's reactor set. The
// emoji key is deleted once its set becomes empty, so toggling twice restores
// the prior state exactly.
func (s *MessageStore) ToggleReaction(_ context.Context, id, emoji, userID string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}

	reactors := m.Reactions[emoji]
	removed := false
	for i, u := range reactors {
		if u == userID {
			reactors = append(reactors[:i], reactors[i+1:]...)
			removed = true
			break
		}
	}
	if removed {
		if len(reactors) == 0 {
			delete(m.Reactions, emoji)
		} else {
			m.Reactions[emoji] = reactors
		}
	} else {
		m.Reactions[emoji] = append(reactors, userID)
	}
	m.UpdatedAt = s.now()

	return cloneMessage(m), nil
}

// Delete removes the message and reports whether it existed.
func (s *MessageStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return false, nil
	}

	delete(s.byID, id)
	room := s.byRoom[m.RoomID]
	for i, candidate := range room {
		if candidate.ID == id {
			s.byRoom[m.RoomID] = append(room[:i], room[i+1:]...)
			break
		}
	}
	if len(s.byRoom[m.RoomID]) == 0 {
		delete(s.byRoom, m.RoomID)
	}
	return true, nil
}

// ListFlagged returns the room's messages that carry at least one flag,
// ordered by CreatedAt ascending.
func (s *MessageStore) ListFlagged(_ context.Context, roomID string) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Message
	for _, m := range s.byRoom[roomID] {
		if len(m.Flags) > 0 {
			result = append(result, cloneMessage(m))
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// cloneMessage deep-copies a message so callers never share mutable state
// with the store.
func cloneMessage(m *domain.Message) *domain.Message {
	c := *m
	if m.Flags != nil {
		c.Flags = append([]string(nil), m.Flags...)
	}
	if m.Attachments != nil {
		c.Attachments = append([]domain.Attachment(nil), m.Attachments...)
	}
	if m.Reactions != nil {
		c.Reactions = make(map[string][]string, len(m.Reactions))
		for emoji, users := range m.Reactions {
			c.Reactions[emoji] = append([]string(nil), users...)
		}
	}
	return &c
}
