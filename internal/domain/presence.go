package domain

import (
	"context"
	"time"
)

// Presence tracks a user's liveness in a room. Records are refreshed on each
// heartbeat or typing signal and purged lazily once LastSeen is older than the
// store's timeout.
type Presence struct {
	ID       string    `json:"id"`
	RoomID   string    `json:"room_id"`
	Name     string    `json:"name,omitempty"`
	IsTyping bool      `json:"is_typing"`
	LastSeen time.Time `json:"last_seen"`
}

// PresenceStore maintains presence records per room.
type PresenceStore interface {
	Upsert(ctx context.Context, record *Presence) error
	Get(ctx context.Context, id string) (*Presence, error)
	// ListByRoom purges stale records for the room before returning the rest.
	ListByRoom(ctx context.Context, roomID string) ([]*Presence, error)
	Remove(ctx context.Context, id string) error
	PurgeStale(ctx context.Context, timeout time.Duration) (int, error)
}
