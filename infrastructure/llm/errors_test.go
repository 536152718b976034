package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ahrav/go-whoami/internal/ports"
)

func TestErrorClassifier_ClassifyHTTPError(t *testing.T) {
	ec := &ErrorClassifier{Provider: "openai"}

	tests := []struct {
		status      int
		wantType    ErrorType
		wantKind    ports.BackendErrorKind
		retryable   bool
		wantMessage string
	}{
		{401, ErrorTypeAuthentication, ports.KindAuthentication, false, "openai authentication failed"},
		{403, ErrorTypeAuthentication, ports.KindAuthentication, false, "openai authentication failed"},
		{429, ErrorTypeRateLimit, ports.KindRateLimit, true, "openai rate limit exceeded"},
		{400, ErrorTypeBadRequest, ports.KindBadRequest, false, "upstream message"},
		{404, ErrorTypeNotFound, ports.KindNotFound, false, "upstream message"},
		{408, ErrorTypeTimeout, ports.KindTimeout, true, "upstream message"},
		{500, ErrorTypeServerError, ports.KindServerError, true, "upstream message"},
		{529, ErrorTypeServerError, ports.KindServerError, true, "upstream message"},
		{418, ErrorTypeBadRequest, ports.KindBadRequest, false, "upstream message"},
		{599, ErrorTypeServerError, ports.KindServerError, true, "upstream message"},
		{302, ErrorTypeUnknown, ports.KindUnknown, false, "upstream message"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			cause := errors.New("cause")
			perr := ec.ClassifyHTTPError(tt.status, "upstream message", cause)

			assert.Equal(t, tt.wantType, perr.Type)
			assert.Equal(t, tt.wantKind, perr.Kind())
			assert.Equal(t, tt.retryable, perr.IsRetryable())
			assert.Equal(t, tt.status, perr.StatusCode)
			assert.Equal(t, tt.wantMessage, perr.Message)
			assert.ErrorIs(t, perr, cause)
		})
	}
}

func TestErrorClassifier_ClassifyContextError(t *testing.T) {
	ec := &ErrorClassifier{Provider: "anthropic"}

	timeout := ec.ClassifyContextError(fmt.Errorf("wrapped: %w", context.DeadlineExceeded))
	assert.Equal(t, ErrorTypeTimeout, timeout.Type)
	assert.True(t, timeout.IsRetryable())

	canceled := ec.ClassifyContextError(context.Canceled)
	assert.Equal(t, ErrorTypeCanceled, canceled.Type)
	assert.Equal(t, ports.KindCanceled, canceled.Kind())
	assert.False(t, canceled.IsRetryable())

	other := ec.ClassifyContextError(errors.New("other"))
	assert.Equal(t, ErrorTypeUnknown, other.Type)
}

func TestProviderError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ProviderError
		want string
	}{
		{
			name: "full",
			err:  NewProviderError("openai", ErrorTypeRateLimit, 429, "slow down", errors.New("upstream")),
			want: "openai error (HTTP 429) [rate_limit]: slow down: upstream",
		},
		{
			name: "unknown type without status",
			err:  NewProviderError("google", ErrorTypeUnknown, 0, "odd", nil),
			want: "google error: odd",
		},
		{
			name: "network",
			err:  NewProviderError("anthropic", ErrorTypeNetwork, 0, "request failed", errors.New("dial tcp")),
			want: "anthropic error [network]: request failed: dial tcp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestRetryAfterFrom(t *testing.T) {
	assert.Nil(t, retryAfterFrom(nil))

	resp := &http.Response{Header: http.Header{}}
	assert.Nil(t, retryAfterFrom(resp))

	resp.Header.Set("Retry-After", "7")
	got := retryAfterFrom(resp)
	if assert.NotNil(t, got) {
		assert.Equal(t, 7*time.Second, *got)
	}

	resp.Header.Set("Retry-After", "Wed, 21 Oct 2015 07:28:00 GMT")
	assert.Nil(t, retryAfterFrom(resp))

	resp.Header.Set("Retry-After", "-1")
	assert.Nil(t, retryAfterFrom(resp))
}

func TestToBackendError(t *testing.T) {
	assert.Nil(t, toBackendError("openai", "gpt-4", nil))

	be := toBackendError("openai", "gpt-4", errors.New("mystery"))
	assert.Equal(t, ports.KindUnknown, be.Kind)
	assert.False(t, be.IsRetryable())

	be = toBackendError("openai", "gpt-4", fmt.Errorf("breaker: %w", ErrCircuitOpen))
	assert.Equal(t, ports.KindCircuitOpen, be.Kind)
	assert.True(t, be.IsRetryable())
}
