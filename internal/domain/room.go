package domain

import (
	"context"
	"time"
)

// TokenUsage accumulates generation token counts for a room.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// RoomStats aggregates per-room analytics, updated on each completed response.
type RoomStats struct {
	UserMessages      int        `json:"user_messages"`
	AssistantMessages int        `json:"assistant_messages"`
	TotalResponses    int        `json:"total_responses"`
	LastResponseMs    int64      `json:"last_response_ms"`
	AvgResponseMs     float64    `json:"avg_response_ms"`
	TokenUsage        TokenUsage `json:"token_usage"`
}

// TokenUsagePatch merges token counters independently of the rest of a stats
// patch so counters are never reset by an unrelated update.
type TokenUsagePatch struct {
	Prompt     *int
	Completion *int
	Total      *int
}

// StatsPatch carries a partial stats update. Nil fields are left as-is.
type StatsPatch struct {
	UserMessages      *int
	AssistantMessages *int
	TotalResponses    *int
	LastResponseMs    *int64
	AvgResponseMs     *float64
	TokenUsage        TokenUsagePatch
}

// RoomSettings controls admission for a room. Zero SlowModeMs means slow mode
// is off.
type RoomSettings struct {
	RateLimitMax      int   `json:"rate_limit_max"`
	RateLimitWindowMs int64 `json:"rate_limit_window_ms"`
	SlowModeMs        int64 `json:"slow_mode_ms"`
}

// DefaultRoomSettings returns the settings applied to rooms that were never
// configured: 5 messages per 20s window, slow mode off.
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		RateLimitMax:      5,
		RateLimitWindowMs: 20000,
		SlowModeMs:        0,
	}
}

// SettingsPatch carries a partial settings update. Nil fields are left as-is.
type SettingsPatch struct {
	RateLimitMax      *int   `json:"rate_limit_max,omitempty"`
	RateLimitWindowMs *int64 `json:"rate_limit_window_ms,omitempty"`
	SlowModeMs        *int64 `json:"slow_mode_ms,omitempty"`
}

// ModerationLogEntry records one administrative action against a room.
type ModerationLogEntry struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	Action    string    `json:"action"`
	TargetID  string    `json:"target_id,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RoomStore holds per-room analytics, settings and the moderation audit trail.
// The moderation log is capped; the oldest entries are evicted first.
type RoomStore interface {
	GetStats(ctx context.Context, roomID string) (*RoomStats, error)
	UpdateStats(ctx context.Context, roomID string, patch StatsPatch) (*RoomStats, error)
	GetSettings(ctx context.Context, roomID string) (*RoomSettings, error)
	UpdateSettings(ctx context.Context, roomID string, patch SettingsPatch) (*RoomSettings, error)
	AddModerationLog(ctx context.Context, entry *ModerationLogEntry) error
	ModerationLog(ctx context.Context, roomID string) ([]*ModerationLogEntry, error)
}
