package review

import (
	"context"

	"gazette-ingest/pkg/domain"
)

// Request is one chat exchange with the AI service.
type Request struct {
	System string
	Prompt string
}

// Completion is the service's answer to a Request.
type Completion struct {
	Content string
	Usage   domain.TokenUsage
}

// Completer sends a single request to an AI chat service.
// Implementations do not retry.
type Completer interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}
