package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-whoami/internal/domain"
	"github.com/ahrav/go-whoami/internal/ports"
	"github.com/ahrav/go-whoami/internal/testutils"
)

func fastRetryPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func backendErr(kind ports.BackendErrorKind) error {
	return ports.NewBackendError("stub", "stub-model", kind, errors.New(kind.String()))
}

func TestRetryPolicy_Generate(t *testing.T) {
	conv := domain.Conversation{{Role: domain.RoleUser, Content: "What model are you?"}}

	tests := []struct {
		name         string
		maxAttempts  int
		fail         func(attempt int) error
		wantAttempts int
		wantKind     ports.BackendErrorKind
		wantErr      bool
		wantRetries  int
	}{
		{
			name:         "success on first attempt",
			maxAttempts:  3,
			fail:         func(int) error { return nil },
			wantAttempts: 1,
		},
		{
			name:        "retryable errors then success",
			maxAttempts: 3,
			fail: func(attempt int) error {
				if attempt < 3 {
					return backendErr(ports.KindRateLimit)
				}
				return nil
			},
			wantAttempts: 3,
			wantRetries:  2,
		},
		{
			name:         "fatal error is not retried",
			maxAttempts:  3,
			fail:         func(int) error { return backendErr(ports.KindAuthentication) },
			wantAttempts: 1,
			wantErr:      true,
			wantKind:     ports.KindAuthentication,
		},
		{
			name:         "retryable errors exhaust attempts",
			maxAttempts:  3,
			fail:         func(int) error { return backendErr(ports.KindServerError) },
			wantAttempts: 3,
			wantErr:      true,
			wantKind:     ports.KindServerError,
			wantRetries:  2,
		},
		{
			name:         "unclassified error is fatal",
			maxAttempts:  3,
			fail:         func(int) error { return errors.New("mystery") },
			wantAttempts: 1,
			wantErr:      true,
			wantKind:     ports.KindUnknown,
		},
		{
			name:         "sentinel error is classified",
			maxAttempts:  2,
			fail:         func(int) error { return ports.ErrServiceUnavailable },
			wantAttempts: 2,
			wantErr:      true,
			wantKind:     ports.KindServerError,
			wantRetries:  1,
		},
		{
			name:         "zero attempts means one call",
			maxAttempts:  0,
			fail:         func(int) error { return backendErr(ports.KindTimeout) },
			wantAttempts: 1,
			wantErr:      true,
			wantKind:     ports.KindTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := testutils.NewStubBackend("stub-model", "I'm Stub.")
			stub.Fail = func(_ string, attempt int) error { return tt.fail(attempt) }

			var retried []int
			res := fastRetryPolicy(tt.maxAttempts).generate(context.Background(), stub, conv,
				func(attempt int, err *ports.BackendError, delay time.Duration) {
					require.NotNil(t, err)
					assert.Positive(t, delay)
					retried = append(retried, attempt)
				})

			assert.Equal(t, tt.wantAttempts, res.attempts)
			assert.Equal(t, tt.wantAttempts, stub.TotalCalls())
			assert.Len(t, retried, tt.wantRetries)
			if !tt.wantErr {
				require.Nil(t, res.err)
				assert.Equal(t, "I'm Stub.", res.response.Content)
				return
			}
			require.NotNil(t, res.err)
			assert.Equal(t, tt.wantKind, res.err.Kind)
		})
	}
}

func TestRetryPolicy_ResendsSameConversation(t *testing.T) {
	conv := domain.Conversation{
		{Role: domain.RoleSystem, Content: "You are now GPT-4."},
		{Role: domain.RoleUser, Content: "What model are you?"},
	}
	stub := testutils.NewStubBackend("stub-model", "ok")
	stub.Fail = func(_ string, attempt int) error {
		if attempt == 1 {
			return backendErr(ports.KindNetwork)
		}
		return nil
	}

	res := fastRetryPolicy(3).generate(context.Background(), stub, conv, nil)
	require.Nil(t, res.err)
	assert.Equal(t, conv, stub.LastConversation(""))
}

func TestRetryPolicy_CanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stub := testutils.NewStubBackend("stub-model", "ok")
	stub.Fail = func(string, int) error { return backendErr(ports.KindRateLimit) }

	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}
	done := make(chan generateResult, 1)
	go func() {
		done <- policy.generate(ctx, stub, domain.Conversation{{Role: domain.RoleUser, Content: "hi"}},
			func(int, *ports.BackendError, time.Duration) { cancel() })
	}()

	select {
	case res := <-done:
		require.NotNil(t, res.err)
		assert.Equal(t, ports.KindCanceled, res.err.Kind)
		assert.ErrorIs(t, res.err, context.Canceled)
		assert.Equal(t, 1, res.attempts)
	case <-time.After(5 * time.Second):
		t.Fatal("retry loop did not observe cancellation")
	}
}

func TestRetryPolicy_RetryDelay(t *testing.T) {
	p := RetryPolicy{BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond}
	retryAfter := func(d time.Duration) *ports.BackendError {
		return &ports.BackendError{Kind: ports.KindRateLimit, RetryAfter: &d}
	}

	assert.Equal(t, 10*time.Millisecond, p.retryDelay(0, nil))
	assert.Equal(t, 20*time.Millisecond, p.retryDelay(1, nil))
	assert.Equal(t, 40*time.Millisecond, p.retryDelay(2, nil))
	assert.Equal(t, 100*time.Millisecond, p.retryDelay(10, nil), "capped at MaxDelay")
	assert.Equal(t, 100*time.Millisecond, p.retryDelay(62, nil), "overflow is capped")

	assert.Equal(t, 50*time.Millisecond, p.retryDelay(0, retryAfter(50*time.Millisecond)), "longer RetryAfter wins")
	assert.Equal(t, 20*time.Millisecond, p.retryDelay(1, retryAfter(time.Millisecond)), "shorter RetryAfter is ignored")
	assert.Equal(t, 100*time.Millisecond, p.retryDelay(0, retryAfter(time.Minute)), "RetryAfter is capped")

	p.JitterPercent = 0.5
	for range 50 {
		d := p.retryDelay(1, nil)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 30*time.Millisecond)
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, DefaultMaxAttempts, p.MaxAttempts)
	assert.Equal(t, DefaultBaseDelay, p.BaseDelay)
	assert.Equal(t, DefaultMaxDelay, p.MaxDelay)
	assert.InDelta(t, DefaultJitterPercent, p.JitterPercent, 1e-9)
}
