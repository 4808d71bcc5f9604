// Package relay lets a stream orchestrator running outside the broadcast
// server's process fan events out through the server's ingestion endpoint.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client implements domain.Broadcaster over the server-to-server ingestion
// endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an ingestion client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type ingestPayload struct {
	RoomID  string          `json:"room_id"`
	Message json.RawMessage `json:"message"`
}

// Broadcast submits the event for re-broadcast to every member of the room.
func (c *Client) Broadcast(ctx context.Context, roomID string, event any) error {
	message, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	body, err := json.Marshal(ingestPayload{RoomID: roomID, Message: message})
	if err != nil {
		return fmt.Errorf("failed to marshal ingest payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/broadcast", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ingestion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ingestion endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
