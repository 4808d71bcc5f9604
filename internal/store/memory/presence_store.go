package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"streamroom/internal/domain"
)

// DefaultPresenceTimeout is how long a record survives without a heartbeat.
const DefaultPresenceTimeout = 30 * time.Second

// PresenceStore implements domain.PresenceStore in memory.
type PresenceStore struct {
	mu      sync.Mutex
	records map[string]*domain.Presence
	timeout time.Duration

	now func() time.Time
}

// NewPresenceStore creates an in-memory presence store. A non-positive
// timeout falls back to DefaultPresenceTimeout.
func NewPresenceStore(timeout time.Duration) *PresenceStore {
	if timeout <= 0 {
		timeout = DefaultPresenceTimeout
	}
	return &PresenceStore{
		records: make(map[string]*domain.Presence),
		timeout: timeout,
		now:     time.Now,
	}
}

// Upsert creates or refreshes a record, stamping LastSeen.
func (s *PresenceStore) Upsert(_ context.Context, record *domain.Presence) error {
	if record == nil || record.ID == "" || record.RoomID == "" {
		return domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *record
	stored.LastSeen = s.now()
	s.records[record.ID] = &stored
	return nil
}

// Get returns the record or ErrNotFound.
func (s *PresenceStore) Get(_ context.Context, id string) (*domain.Presence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *record
	return &c, nil
}

// ListByRoom purges the room's stale records, then returns the remainder
// sorted by id for deterministic snapshots.
func (s *PresenceStore) ListByRoom(_ context.Context, roomID string) ([]*domain.Presence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.timeout)
	result := make([]*domain.Presence, 0)
	for id, record := range s.records {
		if record.RoomID != roomID {
			continue
		}
		if record.LastSeen.Before(cutoff) {
			delete(s.records, id)
			continue
		}
		c := *record
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Remove deletes the record. Removing an absent record is a no-op.
func (s *PresenceStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, id)
	return nil
}

// PurgeStale removes every record older than the given timeout and returns
// how many were dropped.
func (s *PresenceStore) PurgeStale(_ context.Context, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		timeout = s.timeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-timeout)
	purged := 0
	for id, record := range s.records {
		if record.LastSeen.Before(cutoff) {
			delete(s.records, id)
			purged++
		}
	}
	return purged, nil
}
