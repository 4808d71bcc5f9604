package memory

import (
	"context"
	"sync"
	"time"

	"streamroom/internal/domain"

	"github.com/google/uuid"
)

// moderationLogCap bounds the per-room audit trail; the oldest entries are
// evicted first.
const moderationLogCap = 200

// RoomStore implements domain.RoomStore in memory.
type RoomStore struct {
	mu       sync.Mutex
	stats    map[string]*domain.RoomStats
	settings map[string]*domain.RoomSettings
	modlog   map[string][]*domain.ModerationLogEntry

	now func() time.Time
}

// NewRoomStore creates an empty in-memory room store.
func NewRoomStore() *RoomStore {
	return &RoomStore{
		stats:    make(map[string]*domain.RoomStats),
		settings: make(map[string]*domain.RoomSettings),
		modlog:   make(map[string][]*domain.ModerationLogEntry),
		now:      time.Now,
	}
}

// GetStats returns the room's stats, zero-valued for rooms never written.
func (s *RoomStore) GetStats(_ context.Context, roomID string) (*domain.RoomStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stats, ok := s.stats[roomID]; ok {
		c := *stats
		return &c, nil
	}
	return &domain.RoomStats{}, nil
}

// UpdateStats merges the patch into the room's stats. Token usage sub-fields
// merge independently so counters are never reset by an unrelated update.
func (s *RoomStore) UpdateStats(_ context.Context, roomID string, patch domain.StatsPatch) (*domain.RoomStats, error) {
	if roomID == "" {
		return nil, domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stats, ok := s.stats[roomID]
	if !ok {
		stats = &domain.RoomStats{}
		s.stats[roomID] = stats
	}

	if patch.UserMessages != nil {
		stats.UserMessages = *patch.UserMessages
	}
	if patch.AssistantMessages != nil {
		stats.AssistantMessages = *patch.AssistantMessages
	}
	if patch.TotalResponses != nil {
		stats.TotalResponses = *patch.TotalResponses
	}
	if patch.LastResponseMs != nil {
		stats.LastResponseMs = *patch.LastResponseMs
	}
	if patch.AvgResponseMs != nil {
		stats.AvgResponseMs = *patch.AvgResponseMs
	}
	if patch.TokenUsage.Prompt != nil {
		stats.TokenUsage.Prompt = *patch.TokenUsage.Prompt
	}
	if patch.TokenUsage.Completion != nil {
		stats.TokenUsage.Completion = *patch.TokenUsage.Completion
	}
	if patch.TokenUsage.Total != nil {
		stats.TokenUsage.Total = *patch.TokenUsage.Total
	}

	c := *stats
	return &c, nil
}

// GetSettings returns the room's settings, defaults for rooms never written.
func (s *RoomStore) GetSettings(_ context.Context, roomID string) (*domain.RoomSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if settings, ok := s.settings[roomID]; ok {
		c := *settings
		return &c, nil
	}
	defaults := domain.DefaultRoomSettings()
	return &defaults, nil
}

// UpdateSettings merges the patch into the room's settings; unspecified
// fields keep their current value.
func (s *RoomStore) UpdateSettings(_ context.Context, roomID string, patch domain.SettingsPatch) (*domain.RoomSettings, error) {
	if roomID == "" {
		return nil, domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	settings, ok := s.settings[roomID]
	if !ok {
		defaults := domain.DefaultRoomSettings()
		settings = &defaults
		s.settings[roomID] = settings
	}

	if patch.RateLimitMax != nil {
		settings.RateLimitMax = *patch.RateLimitMax
	}
	if patch.RateLimitWindowMs != nil {
		settings.RateLimitWindowMs = *patch.RateLimitWindowMs
	}
	if patch.SlowModeMs != nil {
		settings.SlowModeMs = *patch.SlowModeMs
	}

	c := *settings
	return &c, nil
}

// AddModerationLog prepends an entry with a generated id and timestamp, then
// truncates the trail to the newest entries.
func (s *RoomStore) AddModerationLog(_ context.Context, entry *domain.ModerationLogEntry) error {
	if entry == nil || entry.RoomID == "" || entry.Action == "" {
		return domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *entry
	stored.ID = uuid.NewString()
	stored.CreatedAt = s.now()

	log := append([]*domain.ModerationLogEntry{&stored}, s.modlog[entry.RoomID]...)
	if len(log) > moderationLogCap {
		log = log[:moderationLogCap]
	}
	s.modlog[entry.RoomID] = log

	entry.ID = stored.ID
	entry.CreatedAt = stored.CreatedAt
	return nil
}

// ModerationLog returns the room's audit trail, newest first.
func (s *RoomStore) ModerationLog(_ context.Context, roomID string) ([]*domain.ModerationLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.modlog[roomID]
	result := make([]*domain.ModerationLogEntry, 0, len(log))
	for _, entry := range log {
		c := *entry
		result = append(result, &c)
	}
	return result, nil
}
