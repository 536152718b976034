package application

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/ahrav/go-whoami/internal/domain"
	"github.com/ahrav/go-whoami/internal/ports"
)

// Default retry configuration constants.
const (
	// DefaultMaxAttempts is the default number of Generate calls per test
	// case, including the first.
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is the default initial delay before the first retry.
	DefaultBaseDelay = 1 * time.Second
	// DefaultMaxDelay is the default maximum delay between retry attempts.
	DefaultMaxDelay = 30 * time.Second
	// DefaultJitterPercent is the default jitter percentage.
	DefaultJitterPercent = 0.1
)

// RetryPolicy defines the bounded retry loop run for each test case.
type RetryPolicy struct {
	// MaxAttempts is the total number of Generate calls allowed for one
	// test case. Values below one are treated as one.
	MaxAttempts int

	// BaseDelay sets the initial delay for the first retry attempt.
	// Subsequent delays are calculated using exponential backoff.
	BaseDelay time.Duration

	// MaxDelay caps the delay between attempts, including delays
	// requested by the backend through RetryAfter.
	MaxDelay time.Duration

	// JitterPercent adds a random percentage of the current delay to prevent
	// a "thundering herd" scenario. It should be between 0.0 and 1.0.
	JitterPercent float64
}

// DefaultRetryPolicy returns a RetryPolicy with sensible default values.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   DefaultMaxAttempts,
		BaseDelay:     DefaultBaseDelay,
		MaxDelay:      DefaultMaxDelay,
		JitterPercent: DefaultJitterPercent,
	}
}

// generateResult is the outcome of the retry loop for one test case.
type generateResult struct {
	response domain.Response
	attempts int
	err      *ports.BackendError
}

// generate calls backend.Generate until it succeeds, fails with a fatal
// error, or the attempt budget is spent. The conversation is resent
// unchanged on every attempt. onRetry is invoked before each wait.
func (p RetryPolicy) generate(
	ctx context.Context,
	backend ports.Backend,
	conv domain.Conversation,
	onRetry func(attempt int, err *ports.BackendError, delay time.Duration),
) generateResult {
	maxAttempts := max(p.MaxAttempts, 1)

	var lastErr *ports.BackendError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := backend.Generate(ctx, conv)
		if err == nil {
			return generateResult{response: resp, attempts: attempt}
		}

		lastErr = ports.AsBackendError(backend.Name(), backend.ModelID(), err)
		if attempt == maxAttempts || !lastErr.IsRetryable() {
			return generateResult{attempts: attempt, err: lastErr}
		}

		delay := p.retryDelay(attempt-1, lastErr)
		if onRetry != nil {
			onRetry(attempt, lastErr, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return generateResult{
				attempts: attempt,
				err:      ports.AsBackendError(backend.Name(), backend.ModelID(), ctx.Err()),
			}
		case <-timer.C:
		}
	}

	return generateResult{attempts: maxAttempts, err: lastErr}
}

// retryDelay calculates the appropriate delay for an exponential backoff
// strategy, including jitter to prevent request storms. A RetryAfter hint
// longer than the computed delay wins, capped at MaxDelay.
func (p RetryPolicy) retryDelay(retry int, err *ports.BackendError) time.Duration {
	retry = min(retry, 30)
	delay := p.BaseDelay * time.Duration(1<<retry)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}

	jitter := int64(float64(delay) * p.JitterPercent)
	if jitter > 0 {
		//nolint:gosec // G404: math/rand is acceptable for retry jitter timing.
		delay += time.Duration(rand.Int64N(2*jitter) - jitter)
	}

	if delay < p.BaseDelay {
		delay = p.BaseDelay
	}

	if err != nil && err.RetryAfter != nil && *err.RetryAfter > delay {
		delay = min(*err.RetryAfter, p.MaxDelay)
	}

	return delay
}
