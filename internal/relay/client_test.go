package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"streamroom/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Broadcast(t *testing.T) {
	ctx := context.Background()

	t.Run("posts_event_to_ingestion_endpoint", func(t *testing.T) {
		var received struct {
			RoomID  string          `json:"room_id"`
			Message json.RawMessage `json:"message"`
		}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/internal/broadcast", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
			w.Write([]byte(`{"status":"ok"}`))
		}))
		defer server.Close()

		client := NewClient(server.URL)
		err := client.Broadcast(ctx, "room-1", domain.NewTokenEvent("hi"))
		require.NoError(t, err)

		assert.Equal(t, "room-1", received.RoomID)

		var event domain.TokenEvent
		require.NoError(t, json.Unmarshal(received.Message, &event))
		assert.Equal(t, domain.EventToken, event.Type)
		assert.Equal(t, "hi", event.Delta)
	})

	t.Run("non_200_is_an_error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		client := NewClient(server.URL)
		err := client.Broadcast(ctx, "room-1", domain.NewDoneEvent())
		assert.Error(t, err)
	})

	t.Run("unreachable_endpoint_is_an_error", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1")
		err := client.Broadcast(ctx, "room-1", domain.NewDoneEvent())
		assert.Error(t, err)
	})
}
