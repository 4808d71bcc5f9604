package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"streamroom/internal/domain"
	"streamroom/internal/hub"
	"streamroom/internal/store/memory"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWSServer(t *testing.T) (*httptest.Server, *hub.Hub, *memory.PresenceStore) {
	t.Helper()

	broadcastHub := hub.New()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = broadcastHub.Run(ctx) }()

	presence := memory.NewPresenceStore(0)
	handler := NewWebSocketHandler(broadcastHub, presence, "lobby", "http://localhost:3000")

	r := chi.NewRouter()
	r.Get("/ws/rooms/{room_id}", handler.Subscribe)
	r.Get("/ws", handler.Subscribe)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, broadcastHub, presence
}

func wsURL(server *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + path
}

func readEvent(t *testing.T, conn *websocket.Conn, want string) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		eventType, err := domain.EventType(data)
		require.NoError(t, err)
		if eventType == want {
			return data
		}
	}
}

func TestWebSocketHandler_Subscribe(t *testing.T) {
	t.Run("requires_user_id", func(t *testing.T) {
		server, _, _ := newWSServer(t)

		resp, err := http.Get(server.URL + "/ws/rooms/room-1")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("join_announces_presence_and_receives_broadcasts", func(t *testing.T) {
		server, broadcastHub, _ := newWSServer(t)

		conn, resp, err := websocket.DefaultDialer.Dial(
			wsURL(server, "/ws/rooms/room-1?user_id=alice&name=Alice"), nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		defer conn.Close()

		snapshot := readEvent(t, conn, domain.EventPresence)
		var presenceEvent domain.PresenceEvent
		require.NoError(t, json.Unmarshal(snapshot, &presenceEvent))
		require.Len(t, presenceEvent.Users, 1)
		assert.Equal(t, "alice", presenceEvent.Users[0].ID)
		assert.Equal(t, "Alice", presenceEvent.Users[0].Name)

		require.NoError(t, broadcastHub.Broadcast(context.Background(), "room-1", domain.NewTokenEvent("hi")))
		tokenData := readEvent(t, conn, domain.EventToken)
		var tokenEvent domain.TokenEvent
		require.NoError(t, json.Unmarshal(tokenData, &tokenEvent))
		assert.Equal(t, "hi", tokenEvent.Delta)
	})

	t.Run("typing_signal_reaches_the_room", func(t *testing.T) {
		server, _, _ := newWSServer(t)

		alice, resp1, err := websocket.DefaultDialer.Dial(
			wsURL(server, "/ws/rooms/room-1?user_id=alice"), nil)
		require.NoError(t, err)
		defer resp1.Body.Close()
		defer alice.Close()
		readEvent(t, alice, domain.EventPresence)

		bob, resp2, err := websocket.DefaultDialer.Dial(
			wsURL(server, "/ws/rooms/room-1?user_id=bob"), nil)
		require.NoError(t, err)
		defer resp2.Body.Close()
		defer bob.Close()
		readEvent(t, bob, domain.EventPresence)

		require.NoError(t, bob.WriteJSON(map[string]any{"type": "typing", "is_typing": true}))

		data := readEvent(t, alice, domain.EventTyping)
		var typingEvent domain.TypingEvent
		require.NoError(t, json.Unmarshal(data, &typingEvent))
		assert.Equal(t, "bob", typingEvent.UserID)
		assert.True(t, typingEvent.IsTyping)
	})

	t.Run("query_room_falls_back_to_default", func(t *testing.T) {
		server, broadcastHub, _ := newWSServer(t)

		conn, resp, err := websocket.DefaultDialer.Dial(
			wsURL(server, "/ws?user_id=alice"), nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		defer conn.Close()
		readEvent(t, conn, domain.EventPresence)

		// The subscriber landed in the lobby.
		require.NoError(t, broadcastHub.Broadcast(context.Background(), "lobby", domain.NewDoneEvent()))
		readEvent(t, conn, domain.EventDone)
	})

	t.Run("disconnect_removes_presence", func(t *testing.T) {
		server, _, presence := newWSServer(t)

		conn, resp, err := websocket.DefaultDialer.Dial(
			wsURL(server, "/ws/rooms/room-1?user_id=alice"), nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		readEvent(t, conn, domain.EventPresence)

		conn.Close()

		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if _, err := presence.Get(context.Background(), "alice"); err != nil {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		t.Fatal("presence record should be removed after disconnect")
	})
}
