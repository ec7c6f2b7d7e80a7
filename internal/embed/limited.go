// limited.go wraps a Provider with proactive rate limiting and bounded
// retries.
//
// Embedding is the most expensive call in the mutation pipeline and the
// upstream server throttles aggressively, so every production provider is
// wrapped: a token bucket paces requests, and transient failures are
// retried a bounded number of times with exponential backoff before the
// error propagates for debt recording.

package embed

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limited decorates a Provider with a token bucket and retry policy.
type Limited struct {
	inner       Provider
	bucket      *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration
}

var _ Provider = (*Limited)(nil)

// NewLimited wraps inner. perSecond is the sustained request rate, burst
// the bucket size; maxAttempts bounds retries (minimum 1); baseBackoff is
// doubled after each failed attempt.
func NewLimited(inner Provider, perSecond float64, burst, maxAttempts int, baseBackoff time.Duration) *Limited {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseBackoff <= 0 {
		baseBackoff = 250 * time.Millisecond
	}
	return &Limited{
		inner:       inner,
		bucket:      rate.NewLimiter(rate.Limit(perSecond), burst),
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
	}
}

// Embed waits for bucket capacity, then calls the inner provider, retrying
// transient failures with exponential backoff.
func (l *Limited) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	backoff := l.baseBackoff

	for attempt := 0; attempt < l.maxAttempts; attempt++ {
		if err := l.bucket.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProvider, err)
		}

		vec, err := l.inner.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err

		if attempt < l.maxAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrProvider, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("embed after %d attempts: %w", l.maxAttempts, lastErr)
}
