package llm

import (
	"context"
	"time"

	"github.com/ahrav/go-whoami/internal/domain"
)

// timeoutLLM bounds each provider call.
type timeoutLLM struct {
	next    CoreLLM
	timeout time.Duration
}

// TimeoutMiddleware creates middleware that gives every request at most
// timeout to finish. A non-positive timeout disables the middleware. The
// bound applies per attempt, so a retried test case gets a fresh budget on
// each call.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		if timeout <= 0 {
			return next
		}
		return &timeoutLLM{
			next:    next,
			timeout: timeout,
		}
	}
}

// DoRequest runs the request under a derived deadline. An earlier deadline
// on ctx still wins.
func (t *timeoutLLM) DoRequest(ctx context.Context, conv domain.Conversation, opts map[string]any) (string, int, int, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.DoRequest(ctx, conv, opts)
}

// GetModel returns the model name from the wrapped implementation.
func (t *timeoutLLM) GetModel() string { return t.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (t *timeoutLLM) SetModel(m string) { t.next.SetModel(m) }
