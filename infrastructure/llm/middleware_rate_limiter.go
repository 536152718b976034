package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-whoami/internal/domain"
)

// rateLimitedLLM paces requests with a token bucket shared by every client
// built from the same middleware value.
type rateLimitedLLM struct {
	next    CoreLLM
	limiter *rate.Limiter
}

// RateLimitMiddleware creates middleware that allows limit requests per
// second with bursts of up to burst requests. Callers block until a token is
// available or their context ends.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, max(burst, 1))

	return func(next CoreLLM) CoreLLM {
		return &rateLimitedLLM{
			next:    next,
			limiter: limiter,
		}
	}
}

// DoRequest waits for a token and forwards the request. A context that ends
// while waiting is returned wrapped so it still classifies as canceled or
// timed out.
func (r *rateLimitedLLM) DoRequest(ctx context.Context, conv domain.Conversation, opts map[string]any) (string, int, int, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", 0, 0, fmt.Errorf("rate limit wait: %w", ctxErr)
		}
		// Wait fails early when the deadline cannot fit the reservation.
		return "", 0, 0, fmt.Errorf("rate limit wait: %w", context.DeadlineExceeded)
	}
	return r.next.DoRequest(ctx, conv, opts)
}

// GetModel returns the model name from the wrapped implementation.
func (r *rateLimitedLLM) GetModel() string { return r.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (r *rateLimitedLLM) SetModel(m string) { r.next.SetModel(m) }
