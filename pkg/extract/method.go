package extract

import (
	"context"

	"gazette-ingest/pkg/domain"
)

// Method is one way of turning PDF bytes into text.
type Method interface {
	Name() domain.Method
	Attempt(ctx context.Context, pdf []byte) (string, error)
}

// MethodFunc adapts a function to the Method interface.
type MethodFunc struct {
	ID domain.Method
	Fn func(ctx context.Context, pdf []byte) (string, error)
}

// Name returns the method identifier.
func (m MethodFunc) Name() domain.Method { return m.ID }

// Attempt runs the wrapped function.
func (m MethodFunc) Attempt(ctx context.Context, pdf []byte) (string, error) {
	return m.Fn(ctx, pdf)
}
