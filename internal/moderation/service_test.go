package moderation

import (
	"context"
	"errors"
	"testing"

	"streamroom/internal/domain"
	"streamroom/internal/store/memory"
)

// recordingBroadcaster captures events instead of delivering them.
type recordingBroadcaster struct {
	events []broadcastCall
	err    error
}

type broadcastCall struct {
	roomID string
	event  any
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, roomID string, event any) error {
	if b.err != nil {
		return b.err
	}
	b.events = append(b.events, broadcastCall{roomID: roomID, event: event})
	return nil
}

func newTestService(t *testing.T) (*Service, *memory.MessageStore, *memory.RoomStore, *recordingBroadcaster) {
	t.Helper()
	messages := memory.NewMessageStore()
	rooms := memory.NewRoomStore()
	broadcaster := &recordingBroadcaster{}
	return NewService(messages, rooms, broadcaster), messages, rooms, broadcaster
}

func seedMessage(t *testing.T, store *memory.MessageStore, id string, flags []string) {
	t.Helper()
	err := store.Save(context.Background(), &domain.Message{
		ID:       id,
		RoomID:   "room-1",
		Role:     domain.RoleUser,
		Content:  "hello",
		SenderID: "alice",
		Flags:    flags,
	})
	if err != nil {
		t.Fatalf("seed message: %v", err)
	}
}

func TestService_ResolveFlags(t *testing.T) {
	ctx := context.Background()

	t.Run("clears_flags_logs_and_broadcasts", func(t *testing.T) {
		svc, store, rooms, broadcaster := newTestService(t)
		seedMessage(t, store, "msg-1", []string{FlagBannedKeyword})

		got, err := svc.ResolveFlags(ctx, "msg-1", "mod-1")
		if err != nil {
			t.Fatalf("ResolveFlags: %v", err)
		}
		if len(got.Flags) != 0 {
			t.Errorf("flags = %v, want none", got.Flags)
		}

		log, _ := rooms.ModerationLog(ctx, "room-1")
		if len(log) != 1 || log[0].Action != "resolve-flags" || log[0].Actor != "mod-1" {
			t.Errorf("unexpected moderation log %+v", log)
		}

		if len(broadcaster.events) != 1 {
			t.Fatalf("broadcasts = %d, want 1", len(broadcaster.events))
		}
		ev, ok := broadcaster.events[0].event.(domain.MessageUpdatedEvent)
		if !ok {
			t.Fatalf("event type = %T, want MessageUpdatedEvent", broadcaster.events[0].event)
		}
		if ev.Message.ID != "msg-1" {
			t.Errorf("event message id = %q, want msg-1", ev.Message.ID)
		}
	})

	t.Run("missing_message", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		_, err := svc.ResolveFlags(ctx, "nope", "mod-1")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("broadcast_failure_does_not_fail_the_action", func(t *testing.T) {
		messages := memory.NewMessageStore()
		rooms := memory.NewRoomStore()
		broadcaster := &recordingBroadcaster{err: errors.New("relay down")}
		svc := NewService(messages, rooms, broadcaster)
		seedMessage(t, messages, "msg-1", []string{FlagLinkOnly})

		got, err := svc.ResolveFlags(ctx, "msg-1", "mod-1")
		if err != nil {
			t.Fatalf("ResolveFlags should tolerate broadcast failure, got %v", err)
		}
		if len(got.Flags) != 0 {
			t.Errorf("flags = %v, want none", got.Flags)
		}
	})
}

func TestService_SetHidden(t *testing.T) {
	ctx := context.Background()
	svc, messages, rooms, _ := newTestService(t)
	seedMessage(t, messages, "msg-1", nil)

	hidden, err := svc.SetHidden(ctx, "msg-1", true, "mod-1")
	if err != nil {
		t.Fatalf("SetHidden(true): %v", err)
	}
	if !hidden.Hidden {
		t.Error("message should be hidden")
	}

	shown, err := svc.SetHidden(ctx, "msg-1", false, "mod-1")
	if err != nil {
		t.Fatalf("SetHidden(false): %v", err)
	}
	if shown.Hidden {
		t.Error("message should be visible again")
	}

	log, _ := rooms.ModerationLog(ctx, "room-1")
	if len(log) != 2 {
		t.Fatalf("log entries = %d, want 2", len(log))
	}
	if log[0].Action != "unhide" || log[1].Action != "hide" {
		t.Errorf("log actions = %q, %q; want unhide, hide", log[0].Action, log[1].Action)
	}

	if _, err := svc.SetHidden(ctx, "nope", true, "mod-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestService_UpdateSettings(t *testing.T) {
	ctx := context.Background()
	svc, _, rooms, _ := newTestService(t)

	slowMode := int64(3000)
	settings, err := svc.UpdateSettings(ctx, "room-1", domain.SettingsPatch{SlowModeMs: &slowMode}, "mod-1")
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if settings.SlowModeMs != 3000 {
		t.Errorf("slow mode = %d, want 3000", settings.SlowModeMs)
	}
	if settings.RateLimitMax != 5 {
		t.Errorf("rate limit max = %d, want default 5", settings.RateLimitMax)
	}

	log, _ := rooms.ModerationLog(ctx, "room-1")
	if len(log) != 1 || log[0].Action != "update-settings" {
		t.Fatalf("unexpected moderation log %+v", log)
	}
	if log[0].Details == "" {
		t.Error("settings change should record the resulting values")
	}
}

func TestService_RoomOverview(t *testing.T) {
	ctx := context.Background()
	svc, messages, rooms, _ := newTestService(t)

	seedMessage(t, messages, "msg-1", []string{FlagBannedKeyword})
	seedMessage(t, messages, "msg-2", nil)

	userMessages := 2
	if _, err := rooms.UpdateStats(ctx, "room-1", domain.StatsPatch{UserMessages: &userMessages}); err != nil {
		t.Fatalf("UpdateStats: %v", err)
	}

	overview, err := svc.RoomOverview(ctx, "room-1")
	if err != nil {
		t.Fatalf("RoomOverview: %v", err)
	}
	if overview.RoomID != "room-1" {
		t.Errorf("room id = %q, want room-1", overview.RoomID)
	}
	if overview.Stats.UserMessages != 2 {
		t.Errorf("user messages = %d, want 2", overview.Stats.UserMessages)
	}
	if overview.Settings.RateLimitMax != 5 {
		t.Errorf("rate limit max = %d, want default 5", overview.Settings.RateLimitMax)
	}
	if len(overview.Flagged) != 1 || overview.Flagged[0].ID != "msg-1" {
		t.Errorf("flagged = %+v, want only msg-1", overview.Flagged)
	}
	if len(overview.Log) != 0 {
		t.Errorf("log = %+v, want empty", overview.Log)
	}
}
