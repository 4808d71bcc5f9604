package domain

import "context"

// Usage is the generation collaborator's final token count report.
type Usage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// GenerationStream is a lazy, finite, non-restartable sequence of text
// fragments. Recv returns io.EOF after the last fragment, at which point
// Usage holds the collaborator's token counts. Any other error means the
// generation failed mid-stream.
type GenerationStream interface {
	Recv() (string, error)
	Usage() Usage
	Close() error
}

// Generator drives one generation request against the inference collaborator.
type Generator interface {
	Generate(ctx context.Context, history []*Message) (GenerationStream, error)
}
