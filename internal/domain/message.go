package domain

import (
	"context"
	"time"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// AttachmentKind identifies the attachment payload category.
type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentDocument AttachmentKind = "document"
)

// Attachment is a file reference carried by a message. The payload itself
// lives outside the system; Ref points at it.
type Attachment struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Kind         AttachmentKind `json:"kind"`
	Ref          string         `json:"ref"`
	Size         int64          `json:"size"`
	Preview      string         `json:"preview,omitempty"`
	PreviewError string         `json:"preview_error,omitempty"`
}

// Message represents a chat message in a room.
type Message struct {
	ID          string              `json:"id"`
	RoomID      string              `json:"room_id"`
	Role        Role                `json:"role"`
	Content     string              `json:"content"`
	SenderID    string              `json:"sender_id,omitempty"`
	Pinned      bool                `json:"pinned"`
	Hidden      bool                `json:"hidden"`
	Flags       []string            `json:"flags,omitempty"`
	Reactions   map[string][]string `json:"reactions,omitempty"`
	Attachments []Attachment        `json:"attachments,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// MessagePatch carries a partial message update. Nil fields are left as-is.
type MessagePatch struct {
	Content *string
	Pinned  *bool
	Hidden  *bool
}

// MessageStore is the authoritative record of messages. Each operation must
// be individually atomic; List returns history ordered by CreatedAt ascending.
type MessageStore interface {
	Save(ctx context.Context, message *Message) error
	List(ctx context.Context, roomID string) ([]*Message, error)
	Get(ctx context.Context, id string) (*Message, error)
	Update(ctx context.Context, id string, patch MessagePatch) (*Message, error)
	Flag(ctx context.Context, id, name string) (*Message, error)
	ResolveFlags(ctx context.Context, id string) (*Message, error)
	ToggleReaction(ctx context.Context, id, emoji, userID string) (*Message, error)
	Delete(ctx context.Context, id string) (bool, error)
	ListFlagged(ctx context.Context, roomID string) ([]*Message, error)
}
