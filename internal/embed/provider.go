// Package embed defines the embedding provider interface and its
// implementations.
//
// The provider is an external collaborator: synchronous request/response,
// fallible, rate-limited. Provider failures never block a relational
// commit; callers classify them via ErrProvider and record sync debt.
package embed

import (
	"context"
	"errors"
)

// ErrProvider indicates an embedding provider failure. Treated as a
// transient outage: retried with backoff, surfaced if retries exhaust.
var ErrProvider = errors.New("embedding provider error")

// Provider computes a fixed-length embedding vector for a text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ProviderFunc adapts a function to the Provider interface, used in tests
// and for inline fakes.
type ProviderFunc func(ctx context.Context, text string) ([]float32, error)

// Embed implements Provider.
func (f ProviderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}
