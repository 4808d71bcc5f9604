// Package generation adapts the external inference collaborator to the
// domain.Generator interface. The collaborator streams newline-delimited JSON
// records: zero or more {"delta": "..."} fragments, then either a final
// {"usage": {...}} record or an {"error": "..."} record.
package generation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"streamroom/internal/domain"
)

// ErrInvalidResponse is returned when the collaborator's stream cannot be
// parsed.
var ErrInvalidResponse = errors.New("invalid response from generation backend")

// Client calls the generation backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a generation client. The overall request carries no
// client timeout because the response streams for the lifetime of the
// generation; only dialing and response headers are bounded.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
	}
}

type generateRequest struct {
	Messages []generateMessage `json:"messages"`
}

type generateMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamRecord struct {
	Delta string        `json:"delta,omitempty"`
	Usage *domain.Usage `json:"usage,omitempty"`
	Error string        `json:"error,omitempty"`
}

// Generate starts one generation request with the full conversation history
// and returns the lazy fragment stream.
func (c *Client) Generate(ctx context.Context, history []*domain.Message) (domain.GenerationStream, error) {
	payload := generateRequest{Messages: make([]generateMessage, 0, len(history))}
	for _, m := range history {
		if m.Hidden {
			continue
		}
		payload.Messages = append(payload.Messages, generateMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.GenerationError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &domain.GenerationError{Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}

	return &httpStream{
		body:    resp.Body,
		scanner: bufio.NewScanner(resp.Body),
	}, nil
}

// httpStream reads fragments off the response body. It is finite and
// non-restartable; usage is valid once Recv has returned io.EOF.
type httpStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	usage   domain.Usage
	done    bool
}

func (s *httpStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}

	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record streamRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return "", &domain.GenerationError{Err: fmt.Errorf("%w: %s", ErrInvalidResponse, err)}
		}

		switch {
		case record.Error != "":
			return "", &domain.GenerationError{Err: errors.New(record.Error)}
		case record.Usage != nil:
			s.usage = *record.Usage
			s.done = true
			return "", io.EOF
		default:
			return record.Delta, nil
		}
	}

	if err := s.scanner.Err(); err != nil {
		return "", &domain.GenerationError{Err: err}
	}
	// Stream ended without a usage record.
	return "", &domain.GenerationError{Err: ErrInvalidResponse}
}

func (s *httpStream) Usage() domain.Usage {
	return s.usage
}

func (s *httpStream) Close() error {
	return s.body.Close()
}
