// Package hub implements the room broadcast server: per-room member sets,
// in-order fan-out, eviction of unreachable members and idle-room cleanup.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"streamroom/internal/observability"
)

type frame struct {
	roomID  string
	payload []byte
}

// Hub maintains active subscribers per room and fans events out to them.
// A single loop owns all membership state, so events for one room are
// delivered in the order Broadcast was invoked.
type Hub struct {
	rooms map[string]map[*Subscriber]bool

	broadcast  chan *frame
	register   chan *Subscriber
	unregister chan *Subscriber
	done       chan struct{}

	roomCount atomic.Int64
}

// New creates a hub. Run must be called before any broadcast is delivered.
func New() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Subscriber]bool),
		broadcast:  make(chan *frame, 256),
		register:   make(chan *Subscriber),
		unregister: make(chan *Subscriber),
		done:       make(chan struct{}),
	}
}

// Run drives the hub's loop until the context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			slog.Info("hub shutting down gracefully")
			return ctx.Err()

		case sub := <-h.register:
			// Joining is idempotent per subscriber.
			if h.rooms[sub.roomID] == nil {
				h.rooms[sub.roomID] = make(map[*Subscriber]bool)
				h.roomCount.Store(int64(len(h.rooms)))
			}
			h.rooms[sub.roomID][sub] = true
			observability.SubscribersActive.WithLabelValues(sub.roomID).Inc()
			slog.Info("subscriber joined",
				slog.String("user", sub.userID),
				slog.String("room_id", sub.roomID))

		case sub := <-h.unregister:
			h.removeSubscriber(sub)

		case f := <-h.broadcast:
			members, ok := h.rooms[f.roomID]
			if !ok {
				continue
			}
			for sub := range members {
				select {
				case sub.send <- f.payload:
					observability.EventsDelivered.WithLabelValues(f.roomID).Inc()
				default:
					// Send buffer full: the member is unreachable. Evict it
					// rather than blocking the room.
					h.closeSend(sub)
					delete(members, sub)
					observability.SubscribersActive.WithLabelValues(f.roomID).Dec()
				}
			}
			if len(members) == 0 {
				delete(h.rooms, f.roomID)
				h.roomCount.Store(int64(len(h.rooms)))
			}
		}
	}
}

// removeSubscriber drops a subscriber from its room; the room itself is
// removed once its last member leaves.
func (h *Hub) removeSubscriber(sub *Subscriber) {
	members, ok := h.rooms[sub.roomID]
	if !ok {
		return
	}
	if _, ok := members[sub]; !ok {
		return
	}

	delete(members, sub)
	h.closeSend(sub)
	observability.SubscribersActive.WithLabelValues(sub.roomID).Dec()
	slog.Info("subscriber left",
		slog.String("user", sub.userID),
		slog.String("room_id", sub.roomID))

	if len(members) == 0 {
		delete(h.rooms, sub.roomID)
		h.roomCount.Store(int64(len(h.rooms)))
	}
}

// closeSend closes a subscriber's send channel exactly once.
func (h *Hub) closeSend(sub *Subscriber) {
	if sub.sendClosed.CompareAndSwap(false, true) {
		close(sub.send)
	}
}

func (h *Hub) shutdown() {
	close(h.done)

	for roomID, members := range h.rooms {
		for sub := range members {
			h.closeSend(sub)
			slog.Info("closed subscriber connection",
				slog.String("user", sub.userID),
				slog.String("room_id", roomID))
		}
	}

	slog.Info("hub shutdown complete")
}

// Broadcast serializes the event once and queues it for every member of the
// room. It implements domain.Broadcaster.
func (h *Hub) Broadcast(_ context.Context, roomID string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	h.BroadcastRaw(roomID, payload)
	return nil
}

// BroadcastRaw queues an already-serialized event verbatim. Used by the
// ingestion endpoint, which re-broadcasts externally submitted payloads.
func (h *Hub) BroadcastRaw(roomID string, payload []byte) {
	select {
	case h.broadcast <- &frame{roomID: roomID, payload: payload}:
	case <-h.done:
	}
}

// RoomCount reports how many rooms currently have at least one member.
func (h *Hub) RoomCount() int {
	return int(h.roomCount.Load())
}

// Register adds a subscriber to its room's member set.
func (h *Hub) Register(sub *Subscriber) {
	h.register <- sub
}

// Unregister removes a subscriber from its room's member set.
func (h *Hub) Unregister(sub *Subscriber) {
	h.unregister <- sub
}
