// Package orchestrator drives one message submission end to end: admission,
// persistence, generation and the dual fan-out of fragments to the caller
// and to every room member.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"streamroom/internal/admission"
	"streamroom/internal/domain"
	"streamroom/internal/observability"

	"github.com/google/uuid"
)

// FragmentSink receives fragments as the direct streaming response to the
// original caller. A sink error means the caller is gone; relay to the room
// stops but nothing already broadcast is invalidated.
type FragmentSink func(delta string) error

// SubmitRequest is one user message submission.
type SubmitRequest struct {
	RoomID      string
	SenderID    string
	Content     string
	MessageID   string // optional externally supplied id, for idempotent retry
	Attachments []domain.Attachment
	Flags       []string // precomputed by the flag detector
}

// Result reports what one successful submission produced.
type Result struct {
	UserMessage      *domain.Message
	AssistantMessage *domain.Message
	Usage            domain.Usage
	ElapsedMs        int64
}

// Orchestrator owns the submission pipeline. Broadcast-side failures are
// logged and swallowed; they never abort the primary response stream.
type Orchestrator struct {
	messages    domain.MessageStore
	rooms       domain.RoomStore
	admission   *admission.Controller
	generator   domain.Generator
	broadcaster domain.Broadcaster

	now func() time.Time
}

// New creates a stream orchestrator.
func New(messages domain.MessageStore, rooms domain.RoomStore, ctrl *admission.Controller,
	generator domain.Generator, broadcaster domain.Broadcaster) *Orchestrator {
	return &Orchestrator{
		messages:    messages,
		rooms:       rooms,
		admission:   ctrl,
		generator:   generator,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

// Submit runs the full pipeline. The sink may be nil when the caller does
// not want the direct stream. Admission and validation failures return
// before any mutation; a generation failure mid-stream broadcasts an error
// event and leaves the persisted user message and already-sent tokens valid.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest, sink FragmentSink) (*Result, error) {
	if req.RoomID == "" || req.SenderID == "" || strings.TrimSpace(req.Content) == "" {
		return nil, domain.ErrInvalidInput
	}

	if err := o.admission.Check(ctx, req.RoomID, req.SenderID); err != nil {
		return nil, err
	}

	userMsg, err := o.persistUserMessage(ctx, req)
	if err != nil {
		return nil, err
	}

	history, err := o.messages.List(ctx, req.RoomID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	start := o.now()
	stream, err := o.generator.Generate(ctx, history)
	if err != nil {
		o.broadcastError(ctx, req.RoomID, err)
		return nil, wrapGeneration(err)
	}
	defer stream.Close()

	text, err := o.relayFragments(ctx, req.RoomID, stream, sink)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// The caller aborted: stop relaying, corrupt nothing. Tokens
			// already broadcast remain valid.
			slog.Info("submission cancelled mid-stream",
				slog.String("room_id", req.RoomID),
				slog.String("sender_id", req.SenderID))
			return nil, err
		}
		o.broadcastError(ctx, req.RoomID, err)
		return nil, wrapGeneration(err)
	}

	elapsed := o.now().Sub(start)
	observability.GenerationDuration.Observe(elapsed.Seconds())

	assistantMsg, err := o.finalize(ctx, req.RoomID, text, stream.Usage(), elapsed)
	if err != nil {
		return nil, err
	}

	return &Result{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Usage:            stream.Usage(),
		ElapsedMs:        elapsed.Milliseconds(),
	}, nil
}

// persistUserMessage saves the user message unless its id already exists, so
// resubmitting the same externally supplied id yields exactly one persisted
// message and one user-message broadcast.
func (o *Orchestrator) persistUserMessage(ctx context.Context, req SubmitRequest) (*domain.Message, error) {
	id := req.MessageID
	if id == "" {
		id = uuid.NewString()
	}

	if existing, err := o.messages.Get(ctx, id); err == nil {
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	message := &domain.Message{
		ID:          id,
		RoomID:      req.RoomID,
		Role:        domain.RoleUser,
		Content:     req.Content,
		SenderID:    req.SenderID,
		Flags:       req.Flags,
		Attachments: req.Attachments,
	}
	if err := o.messages.Save(ctx, message); err != nil {
		if errors.Is(err, domain.ErrDuplicateID) {
			// Raced with a concurrent retry of the same id.
			return o.messages.Get(ctx, id)
		}
		return nil, err
	}

	stats, err := o.rooms.GetStats(ctx, req.RoomID)
	if err == nil {
		count := stats.UserMessages + 1
		_, err = o.rooms.UpdateStats(ctx, req.RoomID, domain.StatsPatch{UserMessages: &count})
	}
	if err != nil {
		slog.Error("failed to update user message count",
			slog.String("error", err.Error()),
			slog.String("room_id", req.RoomID))
	}

	o.broadcastSwallow(ctx, req.RoomID, domain.NewUserMessageEvent(message))
	return message, nil
}

// relayFragments consumes the stream and feeds both sinks: the direct caller
// and the room broadcast. Fragment order is preserved on both paths.
func (o *Orchestrator) relayFragments(ctx context.Context, roomID string, stream domain.GenerationStream, sink FragmentSink) (string, error) {
	var assembled strings.Builder
	callerGone := false

	for {
		if err := ctx.Err(); err != nil {
			return assembled.String(), err
		}

		delta, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return assembled.String(), nil
			}
			return assembled.String(), err
		}
		if delta == "" {
			continue
		}

		assembled.WriteString(delta)

		if sink != nil && !callerGone {
			if err := sink(delta); err != nil {
				// The direct response is gone; the room still gets tokens.
				slog.Warn("caller sink failed, continuing room relay",
					slog.String("error", err.Error()),
					slog.String("room_id", roomID))
				callerGone = true
			}
		}

		o.broadcastSwallow(ctx, roomID, domain.NewTokenEvent(delta))
	}
}

// finalize persists the assistant message, folds the attempt into the room's
// stats and announces completion.
func (o *Orchestrator) finalize(ctx context.Context, roomID, text string, usage domain.Usage, elapsed time.Duration) (*domain.Message, error) {
	message := &domain.Message{
		ID:      uuid.NewString(),
		RoomID:  roomID,
		Role:    domain.RoleAssistant,
		Content: text,
	}
	if err := o.messages.Save(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to persist assistant message: %w", err)
	}

	stats, err := o.rooms.GetStats(ctx, roomID)
	if err != nil {
		return nil, err
	}

	elapsedMs := elapsed.Milliseconds()
	assistantCount := stats.AssistantMessages + 1
	totalResponses := stats.TotalResponses + 1
	avg := (stats.AvgResponseMs*float64(stats.TotalResponses) + float64(elapsedMs)) / float64(totalResponses)
	prompt := stats.TokenUsage.Prompt + usage.Prompt
	completion := stats.TokenUsage.Completion + usage.Completion
	total := stats.TokenUsage.Total + usage.Total

	_, err = o.rooms.UpdateStats(ctx, roomID, domain.StatsPatch{
		AssistantMessages: &assistantCount,
		TotalResponses:    &totalResponses,
		LastResponseMs:    &elapsedMs,
		AvgResponseMs:     &avg,
		TokenUsage: domain.TokenUsagePatch{
			Prompt:     &prompt,
			Completion: &completion,
			Total:      &total,
		},
	})
	if err != nil {
		slog.Error("failed to update room stats",
			slog.String("error", err.Error()),
			slog.String("room_id", roomID))
	}

	o.broadcastSwallow(ctx, roomID, domain.NewAssistantMessageEvent(message))
	o.broadcastSwallow(ctx, roomID, domain.NewDoneEvent())
	return message, nil
}

func (o *Orchestrator) broadcastError(ctx context.Context, roomID string, err error) {
	observability.GenerationFailures.Inc()
	o.broadcastSwallow(ctx, roomID, domain.NewErrorEvent(err.Error()))
}

// broadcastSwallow delivers an event best-effort. Delivery failures are
// expected under normal churn and never fail the triggering operation.
func (o *Orchestrator) broadcastSwallow(ctx context.Context, roomID string, event any) {
	if err := o.broadcaster.Broadcast(ctx, roomID, event); err != nil {
		slog.Warn("broadcast delivery failed",
			slog.String("error", err.Error()),
			slog.String("room_id", roomID))
	}
}

func wrapGeneration(err error) error {
	var genErr *domain.GenerationError
	if errors.As(err, &genErr) {
		return err
	}
	return &domain.GenerationError{Err: err}
}
