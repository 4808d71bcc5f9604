// Package admission gates message submission per room and sender: a
// fixed-window rate limit plus an optional slow-mode delay, both driven by
// the room's current settings.
package admission

import (
	"context"
	"sync"
	"time"

	"streamroom/internal/domain"
	"streamroom/internal/observability"
)

// SettingsSource yields the room settings that apply to one admission check.
// Settings are read fresh on every check so updates take effect immediately.
type SettingsSource interface {
	GetSettings(ctx context.Context, roomID string) (*domain.RoomSettings, error)
}

type window struct {
	count   int
	resetAt time.Time
}

// Controller decides whether a sender may post to a room right now. It never
// fails for valid input; a denial is reported as *domain.RateLimitError
// carrying the wait time.
type Controller struct {
	settings SettingsSource

	mu           sync.Mutex
	windows      map[string]*window
	lastAccepted map[string]time.Time

	now func() time.Time
}

// NewController creates an admission controller backed by the given settings
// source.
func NewController(settings SettingsSource) *Controller {
	return &Controller{
		settings:     settings,
		windows:      make(map[string]*window),
		lastAccepted: make(map[string]time.Time),
		now:          time.Now,
	}
}

// Check admits or denies one submission attempt for roomID/senderID. On
// acceptance it records the attempt against the sender's window and, when
// slow mode is on, the acceptance time. A denial mutates nothing beyond the
// window counter the attempt consumed.
func (c *Controller) Check(ctx context.Context, roomID, senderID string) error {
	if roomID == "" || senderID == "" {
		return domain.ErrInvalidInput
	}

	settings, err := c.settings.GetSettings(ctx, roomID)
	if err != nil {
		return err
	}

	key := roomID + ":" + senderID

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if settings.RateLimitMax > 0 {
		w, ok := c.windows[key]
		if !ok || now.After(w.resetAt) {
			c.windows[key] = &window{
				count:   1,
				resetAt: now.Add(time.Duration(settings.RateLimitWindowMs) * time.Millisecond),
			}
		} else if w.count < settings.RateLimitMax {
			w.count++
		} else {
			observability.AdmissionDenials.WithLabelValues("rate-limit").Inc()
			return &domain.RateLimitError{
				Reason:     "rate-limit",
				RetryAfter: w.resetAt.Sub(now),
			}
		}
	}

	if settings.SlowModeMs > 0 {
		if last, ok := c.lastAccepted[key]; ok {
			elapsed := now.Sub(last)
			required := time.Duration(settings.SlowModeMs) * time.Millisecond
			if elapsed < required {
				observability.AdmissionDenials.WithLabelValues("slow-mode").Inc()
				return &domain.RateLimitError{
					Reason:     "slow-mode",
					RetryAfter: required - elapsed,
				}
			}
		}
		c.lastAccepted[key] = now
	}

	return nil
}
