package moderation

import (
	"context"
	"fmt"
	"log/slog"

	"streamroom/internal/domain"
)

// Service applies administrative moderation actions: each one mutates the
// store, appends a moderation log entry and broadcasts the new message state
// to the room. Broadcast failures are logged and swallowed; the action itself
// still succeeds.
type Service struct {
	messages    domain.MessageStore
	rooms       domain.RoomStore
	broadcaster domain.Broadcaster
}

// Overview is the admin read surface for one room.
type Overview struct {
	RoomID   string                       `json:"room_id"`
	Stats    *domain.RoomStats            `json:"stats"`
	Settings *domain.RoomSettings         `json:"settings"`
	Flagged  []*domain.Message            `json:"flagged"`
	Log      []*domain.ModerationLogEntry `json:"moderation_log"`
}

// NewService creates a moderation service.
func NewService(messages domain.MessageStore, rooms domain.RoomStore, broadcaster domain.Broadcaster) *Service {
	return &Service{
		messages:    messages,
		rooms:       rooms,
		broadcaster: broadcaster,
	}
}

// ResolveFlags clears a message's flags. A message deleted concurrently
// surfaces as ErrNotFound.
func (s *Service) ResolveFlags(ctx context.Context, messageID, actor string) (*domain.Message, error) {
	message, err := s.messages.ResolveFlags(ctx, messageID)
	if err != nil {
		return nil, err
	}

	s.log(ctx, message.RoomID, "resolve-flags", messageID, actor, "")
	s.broadcastUpdated(ctx, message)
	return message, nil
}

// SetHidden hides or unhides a message.
func (s *Service) SetHidden(ctx context.Context, messageID string, hidden bool, actor string) (*domain.Message, error) {
	message, err := s.messages.Update(ctx, messageID, domain.MessagePatch{Hidden: &hidden})
	if err != nil {
		return nil, err
	}

	action := "hide"
	if !hidden {
		action = "unhide"
	}
	s.log(ctx, message.RoomID, action, messageID, actor, "")
	s.broadcastUpdated(ctx, message)
	return message, nil
}

// UpdateSettings merges a settings patch and records the change.
func (s *Service) UpdateSettings(ctx context.Context, roomID string, patch domain.SettingsPatch, actor string) (*domain.RoomSettings, error) {
	settings, err := s.rooms.UpdateSettings(ctx, roomID, patch)
	if err != nil {
		return nil, err
	}

	details := fmt.Sprintf("rate_limit_max=%d rate_limit_window_ms=%d slow_mode_ms=%d",
		settings.RateLimitMax, settings.RateLimitWindowMs, settings.SlowModeMs)
	s.log(ctx, roomID, "update-settings", "", actor, details)
	return settings, nil
}

// RoomOverview aggregates stats, settings, flagged messages and the
// moderation log for one room.
func (s *Service) RoomOverview(ctx context.Context, roomID string) (*Overview, error) {
	stats, err := s.rooms.GetStats(ctx, roomID)
	if err != nil {
		return nil, err
	}
	settings, err := s.rooms.GetSettings(ctx, roomID)
	if err != nil {
		return nil, err
	}
	flagged, err := s.messages.ListFlagged(ctx, roomID)
	if err != nil {
		return nil, err
	}
	log, err := s.rooms.ModerationLog(ctx, roomID)
	if err != nil {
		return nil, err
	}

	return &Overview{
		RoomID:   roomID,
		Stats:    stats,
		Settings: settings,
		Flagged:  flagged,
		Log:      log,
	}, nil
}

func (s *Service) log(ctx context.Context, roomID, action, targetID, actor, details string) {
	entry := &domain.ModerationLogEntry{
		RoomID:   roomID,
		Action:   action,
		TargetID: targetID,
		Actor:    actor,
		Details:  details,
	}
	if err := s.rooms.AddModerationLog(ctx, entry); err != nil {
		slog.Error("failed to append moderation log",
			slog.String("error", err.Error()),
			slog.String("room_id", roomID),
			slog.String("action", action))
	}
}

func (s *Service) broadcastUpdated(ctx context.Context, message *domain.Message) {
	if err := s.broadcaster.Broadcast(ctx, message.RoomID, domain.NewMessageUpdatedEvent(message)); err != nil {
		slog.Warn("failed to broadcast message update",
			slog.String("error", err.Error()),
			slog.String("room_id", message.RoomID),
			slog.String("message_id", message.ID))
	}
}
