package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"streamroom/internal/domain"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // must be less than pongWait
	maxMessageSize = 4096
)

// Subscriber is one websocket connection viewing a room. Inbound traffic is
// limited to presence signals (typing, heartbeat); message submission goes
// through the HTTP surface.
type Subscriber struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	userID   string
	name     string
	roomID   string
	presence domain.PresenceStore

	writeMu    sync.Mutex
	closed     atomic.Bool
	sendClosed atomic.Bool
	ctx        context.Context
	ctxCancel  context.CancelFunc
}

// signal is the inbound client frame: a typing indicator or heartbeat.
type signal struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"is_typing"`
}

// NewSubscriber wraps an upgraded websocket connection.
func NewSubscriber(ctx context.Context, h *Hub, conn *websocket.Conn, userID, name, roomID string, presence domain.PresenceStore) *Subscriber {
	subCtx, cancel := context.WithCancel(ctx)

	return &Subscriber{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, 256),
		userID:    userID,
		name:      name,
		roomID:    roomID,
		presence:  presence,
		ctx:       subCtx,
		ctxCancel: cancel,
	}
}

// ReadPump consumes inbound frames until the connection drops. It maintains
// the subscriber's presence record and announces joins and leaves through
// fresh presence snapshots.
func (s *Subscriber) ReadPump() {
	defer func() {
		s.ctxCancel()
		s.hub.Unregister(s)
		s.closeConnection()

		if err := s.presence.Remove(context.Background(), s.userID); err != nil {
			slog.Warn("failed to remove presence record",
				slog.String("error", err.Error()),
				slog.String("user", s.userID))
		}
		s.broadcastPresence(context.Background())
	}()

	s.conn.SetReadLimit(maxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn("failed to set read deadline",
			slog.String("error", err.Error()),
			slog.String("user", s.userID))
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.touchPresence(s.ctx, false)
	s.broadcastPresence(s.ctx)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket error",
					slog.String("error", err.Error()),
					slog.String("user", s.userID))
			}
			break
		}

		var sig signal
		if err := json.Unmarshal(data, &sig); err != nil {
			slog.Warn("invalid signal format",
				slog.String("error", err.Error()),
				slog.String("user", s.userID))
			continue
		}

		switch sig.Type {
		case "typing":
			s.touchPresence(s.ctx, sig.IsTyping)
			if err := s.hub.Broadcast(s.ctx, s.roomID, domain.NewTypingEvent(s.userID, sig.IsTyping)); err != nil {
				slog.Warn("failed to broadcast typing event",
					slog.String("error", err.Error()),
					slog.String("user", s.userID))
			}
		case "heartbeat":
			s.touchPresence(s.ctx, false)
		default:
			slog.Warn("unknown signal type",
				slog.String("type", sig.Type),
				slog.String("user", s.userID))
		}
	}
}

// WritePump pumps hub frames to the websocket connection.
func (s *Subscriber) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.closeConnection()
	}()

	for {
		select {
		case payload, ok := <-s.send:
			if !ok {
				// Hub closed the channel.
				_ = s.writeMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := s.writeMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			if err := s.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Subscriber) touchPresence(ctx context.Context, isTyping bool) {
	record := &domain.Presence{
		ID:       s.userID,
		RoomID:   s.roomID,
		Name:     s.name,
		IsTyping: isTyping,
	}
	if err := s.presence.Upsert(ctx, record); err != nil {
		slog.Warn("failed to upsert presence record",
			slog.String("error", err.Error()),
			slog.String("user", s.userID))
	}
}

func (s *Subscriber) broadcastPresence(ctx context.Context) {
	users, err := s.presence.ListByRoom(ctx, s.roomID)
	if err != nil {
		slog.Warn("failed to list presence",
			slog.String("error", err.Error()),
			slog.String("room_id", s.roomID))
		return
	}
	if err := s.hub.Broadcast(ctx, s.roomID, domain.NewPresenceEvent(users)); err != nil {
		slog.Warn("failed to broadcast presence snapshot",
			slog.String("error", err.Error()),
			slog.String("room_id", s.roomID))
	}
}

func (s *Subscriber) writeMessage(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return websocket.ErrCloseSent
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

func (s *Subscriber) closeConnection() {
	if s.closed.CompareAndSwap(false, true) {
		s.writeMu.Lock()
		s.conn.Close()
		s.writeMu.Unlock()
	}
}
