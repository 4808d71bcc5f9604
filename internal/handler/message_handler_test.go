package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"streamroom/internal/admission"
	"streamroom/internal/domain"
	"streamroom/internal/moderation"
	"streamroom/internal/orchestrator"
	"streamroom/internal/store/memory"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedGenerator struct {
	deltas []string
	err    error
}

func (g *scriptedGenerator) Generate(_ context.Context, _ []*domain.Message) (domain.GenerationStream, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &scriptedStream{deltas: g.deltas}, nil
}

type scriptedStream struct {
	deltas []string
	pos    int
}

func (s *scriptedStream) Recv() (string, error) {
	if s.pos >= len(s.deltas) {
		return "", io.EOF
	}
	delta := s.deltas[s.pos]
	s.pos++
	return delta, nil
}

func (s *scriptedStream) Usage() domain.Usage { return domain.Usage{Prompt: 5, Completion: 2, Total: 7} }
func (s *scriptedStream) Close() error        { return nil }

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []any
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, _ string, event any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBroadcaster) count(match func(any) bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, event := range b.events {
		if match(event) {
			n++
		}
	}
	return n
}

type testEnv struct {
	router      chi.Router
	messages    *memory.MessageStore
	rooms       *memory.RoomStore
	presence    *memory.PresenceStore
	broadcaster *recordingBroadcaster
	generator   *scriptedGenerator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	messages := memory.NewMessageStore()
	rooms := memory.NewRoomStore()
	presence := memory.NewPresenceStore(0)
	broadcaster := &recordingBroadcaster{}
	generator := &scriptedGenerator{deltas: []string{"generated ", "reply"}}

	orch := orchestrator.New(messages, rooms, admission.NewController(rooms), generator, broadcaster)
	messageHandler := NewMessageHandler(orch, messages, presence, broadcaster)
	adminHandler := NewAdminHandler(moderation.NewService(messages, rooms, broadcaster))

	r := chi.NewRouter()
	r.Get("/api/v1/rooms/{room_id}/messages", messageHandler.List)
	r.Post("/api/v1/rooms/{room_id}/messages", messageHandler.Submit)
	r.Get("/api/v1/rooms/{room_id}/presence", messageHandler.Presence)
	r.Post("/api/v1/messages/{message_id}/reactions", messageHandler.ToggleReaction)
	r.Post("/api/v1/messages/{message_id}/pin", messageHandler.SetPinned)
	r.Delete("/api/v1/messages/{message_id}", messageHandler.Delete)
	r.Get("/api/v1/admin/rooms/{room_id}", adminHandler.RoomOverview)
	r.Patch("/api/v1/admin/rooms/{room_id}/settings", adminHandler.UpdateSettings)
	r.Post("/api/v1/admin/messages/{message_id}/resolve", adminHandler.ResolveFlags)
	r.Post("/api/v1/admin/messages/{message_id}/hide", adminHandler.Hide)
	r.Post("/api/v1/admin/messages/{message_id}/unhide", adminHandler.Unhide)

	return &testEnv{
		router:      r,
		messages:    messages,
		rooms:       rooms,
		presence:    presence,
		broadcaster: broadcaster,
		generator:   generator,
	}
}

func (env *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestMessageHandler_Submit(t *testing.T) {
	t.Run("streams_generated_text", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(t, http.MethodPost, "/api/v1/rooms/room-1/messages", map[string]string{
			"sender_id": "alice",
			"content":   "hello",
		}, nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "generated reply", w.Body.String())
		assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")

		history, err := env.messages.List(context.Background(), "room-1")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, domain.RoleUser, history[0].Role)
		assert.Equal(t, domain.RoleAssistant, history[1].Role)
	})

	t.Run("detects_flags_on_submission", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(t, http.MethodPost, "/api/v1/rooms/room-1/messages", map[string]string{
			"sender_id": "alice",
			"content":   "this is spam",
		}, nil)
		require.Equal(t, http.StatusOK, w.Code)

		flagged, err := env.messages.ListFlagged(context.Background(), "room-1")
		require.NoError(t, err)
		require.Len(t, flagged, 1)
		assert.Equal(t, []string{"banned-keyword"}, flagged[0].Flags)
	})

	t.Run("validation_failures", func(t *testing.T) {
		env := newTestEnv(t)

		cases := []map[string]string{
			{"content": "hello"},
			{"sender_id": "alice"},
			{"sender_id": "alice", "content": strings.Repeat("x", 4001)},
		}
		for _, body := range cases {
			w := env.do(t, http.MethodPost, "/api/v1/rooms/room-1/messages", body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, "body %v", body)
		}

		req := httptest.NewRequest(http.MethodPost, "/api/v1/rooms/room-1/messages", strings.NewReader("{broken"))
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rate_limited_submission_gets_429", func(t *testing.T) {
		env := newTestEnv(t)

		for i := 0; i < 5; i++ {
			w := env.do(t, http.MethodPost, "/api/v1/rooms/room-1/messages", map[string]string{
				"sender_id": "alice",
				"content":   "hello",
			}, nil)
			require.Equal(t, http.StatusOK, w.Code, "submission %d", i+1)
		}

		w := env.do(t, http.MethodPost, "/api/v1/rooms/room-1/messages", map[string]string{
			"sender_id": "alice",
			"content":   "one too many",
		}, nil)
		require.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.NotEmpty(t, w.Header().Get("Retry-After"))

		var body struct {
			Reason       string `json:"reason"`
			RetryAfterMs int64  `json:"retry_after_ms"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "rate-limit", body.Reason)
		assert.Greater(t, body.RetryAfterMs, int64(0))
	})

	t.Run("generation_failure_before_first_byte_is_502", func(t *testing.T) {
		env := newTestEnv(t)
		env.generator.err = io.ErrUnexpectedEOF

		w := env.do(t, http.MethodPost, "/api/v1/rooms/room-1/messages", map[string]string{
			"sender_id": "alice",
			"content":   "hello",
		}, nil)
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

func TestMessageHandler_List(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.messages.Save(ctx, &domain.Message{
		ID: "msg-1", RoomID: "room-1", Role: domain.RoleUser, Content: "visible", SenderID: "alice",
	}))
	require.NoError(t, env.messages.Save(ctx, &domain.Message{
		ID: "msg-2", RoomID: "room-1", Role: domain.RoleUser, Content: "hidden", SenderID: "alice", Hidden: true,
	}))

	t.Run("hidden_messages_excluded_by_default", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/rooms/room-1/messages", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Messages []*domain.Message `json:"messages"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.Messages, 1)
		assert.Equal(t, "msg-1", body.Messages[0].ID)
	})

	t.Run("include_hidden_returns_everything", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/rooms/room-1/messages?include_hidden=true", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Messages []*domain.Message `json:"messages"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Len(t, body.Messages, 2)
	})

	t.Run("unknown_room_is_empty", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/rooms/ghost/messages", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"messages":[]}`, w.Body.String())
	})
}

func TestMessageHandler_ToggleReaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.messages.Save(ctx, &domain.Message{
		ID: "msg-1", RoomID: "room-1", Role: domain.RoleUser, Content: "hi", SenderID: "alice",
	}))

	w := env.do(t, http.MethodPost, "/api/v1/messages/msg-1/reactions", map[string]string{
		"emoji":   "👍",
		"user_id": "bob",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var message domain.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &message))
	assert.Equal(t, []string{"bob"}, message.Reactions["👍"])

	updates := env.broadcaster.count(func(event any) bool {
		_, ok := event.(domain.MessageUpdatedEvent)
		return ok
	})
	assert.Equal(t, 1, updates)

	w = env.do(t, http.MethodPost, "/api/v1/messages/ghost/reactions", map[string]string{
		"emoji":   "👍",
		"user_id": "bob",
	}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/messages/msg-1/reactions", map[string]string{"emoji": "👍"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMessageHandler_SetPinned(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.messages.Save(ctx, &domain.Message{
		ID: "msg-1", RoomID: "room-1", Role: domain.RoleUser, Content: "hi", SenderID: "alice",
	}))

	w := env.do(t, http.MethodPost, "/api/v1/messages/msg-1/pin", map[string]bool{"pinned": true}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var message domain.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &message))
	assert.True(t, message.Pinned)

	w = env.do(t, http.MethodPost, "/api/v1/messages/msg-1/pin", map[string]bool{"pinned": false}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &message))
	assert.False(t, message.Pinned)

	w = env.do(t, http.MethodPost, "/api/v1/messages/ghost/pin", map[string]bool{"pinned": true}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMessageHandler_Delete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.messages.Save(ctx, &domain.Message{
		ID: "msg-1", RoomID: "room-1", Role: domain.RoleUser, Content: "hi", SenderID: "alice",
	}))

	w := env.do(t, http.MethodDelete, "/api/v1/messages/msg-1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":true}`, w.Body.String())

	deletions := env.broadcaster.count(func(event any) bool {
		_, ok := event.(domain.MessageDeletedEvent)
		return ok
	})
	assert.Equal(t, 1, deletions)

	w = env.do(t, http.MethodDelete, "/api/v1/messages/msg-1", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMessageHandler_Presence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.presence.Upsert(ctx, &domain.Presence{ID: "alice", RoomID: "room-1", Name: "Alice"}))

	w := env.do(t, http.MethodGet, "/api/v1/rooms/room-1/presence", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Users []*domain.Presence `json:"users"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Users, 1)
	assert.Equal(t, "Alice", body.Users[0].Name)
}
