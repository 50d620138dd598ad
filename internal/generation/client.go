package generation

import (
	"context"
	"time"

	"shoe-concept-studio/internal/imaging"
	"shoe-concept-studio/internal/request"
)

// Client sends one built request to an image generation backend. Implementations
// make exactly one network call per Send and never retry.
type Client interface {
	Send(ctx context.Context, req *request.GenerationRequest) (*Result, error)
}

// Result is created only by a successful Send and never mutated.
type Result struct {
	Images     []imaging.Image
	PromptUsed string
	CreatedAt  time.Time
	ID         string
}
