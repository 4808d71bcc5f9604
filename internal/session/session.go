// Package session implements the reconnecting room subscriber: an explicit
// connection state machine with exponential-backoff retries, rebuilding its
// local view of the room purely from pushed events.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// State is the session's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	initialRetryDelay = 1 * time.Second
	maxRetryDelay     = 30 * time.Second
)

// Conn is the subset of *websocket.Conn the session needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	Close() error
}

// Dialer opens one connection attempt.
type Dialer func(ctx context.Context) (Conn, error)

// WebsocketDialer dials the given ws:// or wss:// URL with gorilla/websocket.
func WebsocketDialer(url string) Dialer {
	return func(ctx context.Context) (Conn, error) {
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// EventObserver is called for every inbound event after the session has
// applied it to its local state.
type EventObserver func(eventType string, data []byte)

// Session is a reconnecting subscriber. Retries start at one second, double
// per failed attempt, cap at thirty seconds and reset on any successful
// connection. An intentional Close suppresses reconnection entirely.
type Session struct {
	dial     Dialer
	observer EventObserver

	mu         sync.Mutex
	state      State
	conn       Conn
	retryTimer *time.Timer
	lastDelay  time.Duration
	retry      *backoff.ExponentialBackOff

	view view
}

// Option configures a Session.
type Option func(*Session)

// WithEventObserver registers a callback invoked for each applied event.
func WithEventObserver(observer EventObserver) Option {
	return func(s *Session) { s.observer = observer }
}

// New creates a session in the Disconnected state.
func New(dial Dialer, opts ...Option) *Session {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = initialRetryDelay
	retry.MaxInterval = maxRetryDelay
	retry.Multiplier = 2
	retry.RandomizationFactor = 0
	retry.MaxElapsedTime = 0 // retry forever
	retry.Reset()

	s := &Session{
		dial:  dial,
		state: StateDisconnected,
		retry: retry,
		view:  newView(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the first connection attempt.
func (s *Session) Start() {
	go s.attempt()
}

// Close tears the session down for good: it cancels any pending retry timer
// so no late reconnection fires, closes the connection and logs nothing.
func (s *Session) Close() {
	s.mu.Lock()
	s.state = StateClosed
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastRetryDelay returns the delay of the most recently scheduled retry.
func (s *Session) LastRetryDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDelay
}

// SendTyping reports the local user's typing state to the server.
func (s *Session) SendTyping(isTyping bool) error {
	return s.writeSignal(map[string]any{"type": "typing", "is_typing": isTyping})
}

// Heartbeat refreshes the local user's presence record.
func (s *Session) Heartbeat() error {
	return s.writeSignal(map[string]any{"type": "heartbeat"})
}

func (s *Session) writeSignal(v any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return websocket.ErrCloseSent
	}
	return conn.WriteJSON(v)
}

func (s *Session) attempt() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateConnecting
	dial := s.dial
	s.mu.Unlock()

	conn, err := dial(context.Background())
	if err != nil {
		slog.Warn("connection attempt failed", slog.String("error", err.Error()))
		s.scheduleReconnect()
		return
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.state = StateConnected
	s.retry.Reset()
	s.mu.Unlock()

	go s.readLoop(conn)
}

func (s *Session) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		s.handleEvent(data)
	}
	conn.Close()

	s.mu.Lock()
	if s.state == StateClosed {
		// Intentional teardown: no reconnect, no error logging.
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	slog.Warn("connection lost, scheduling reconnect")
	s.scheduleReconnect()
}

// scheduleReconnect arms the retry timer with the next backoff delay.
func (s *Session) scheduleReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}
	s.state = StateReconnecting

	delay := s.retry.NextBackOff()
	if delay == backoff.Stop {
		delay = maxRetryDelay
	}
	s.lastDelay = delay
	s.retryTimer = time.AfterFunc(delay, s.attempt)
}
