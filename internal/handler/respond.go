package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"streamroom/internal/domain"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already out; nothing left to do.
		return
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError maps the error taxonomy onto HTTP statuses. Rate-limit
// denials carry a Retry-After hint.
func respondDomainError(w http.ResponseWriter, err error) {
	var rateErr *domain.RateLimitError
	switch {
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.FormatInt(int64(rateErr.RetryAfter.Seconds())+1, 10))
		respondJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":          "Too many messages",
			"reason":         rateErr.Reason,
			"retry_after_ms": rateErr.RetryAfter.Milliseconds(),
		})
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, domain.ErrDuplicateID):
		respondError(w, http.StatusConflict, "Duplicate id")
	case errors.Is(err, domain.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "Invalid input")
	default:
		var genErr *domain.GenerationError
		if errors.As(err, &genErr) {
			respondError(w, http.StatusBadGateway, "Generation failed")
			return
		}
		respondError(w, http.StatusInternalServerError, "Internal error")
	}
}
