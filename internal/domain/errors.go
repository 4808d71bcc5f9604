package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDuplicateID is returned when saving a message whose id already exists.
	ErrDuplicateID = errors.New("message id already exists")

	// ErrNotFound is returned when the target message, record or room is absent.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned for malformed or missing fields, before any
	// mutation takes place.
	ErrInvalidInput = errors.New("invalid input")
)

// RateLimitError signals that admission was denied. No mutation has occurred;
// RetryAfter tells the sender how long to wait.
type RateLimitError struct {
	Reason     string // "rate-limit" or "slow-mode"
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("admission denied (%s), retry after %s", e.Reason, e.RetryAfter)
}

// GenerationError signals that the generation collaborator failed mid-stream.
// Tokens already broadcast remain valid; no assistant message is persisted.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return "generation failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
