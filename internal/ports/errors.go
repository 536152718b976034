package ports

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Common infrastructure errors that can occur during backend interactions.
var (
	// ErrRateLimited indicates that the service has rate limited the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable indicates that the external service is unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidResponse indicates that the service returned an invalid
	// response.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrAuthenticationFailed indicates that authentication with the
	// service failed.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrUnknownBackend indicates that the suite has no expected identity
	// for the backend being evaluated.
	ErrUnknownBackend = errors.New("unknown backend")
)

// BackendErrorKind classifies a backend failure.
// The kind alone decides whether the orchestrator retries.
type BackendErrorKind int

const (
	// KindUnknown is any failure that could not be classified. It is fatal.
	KindUnknown BackendErrorKind = iota
	// KindNetwork covers connection resets and DNS failures.
	KindNetwork
	// KindTimeout covers deadline expiry inside the backend.
	KindTimeout
	// KindRateLimit covers throttling (HTTP 429).
	KindRateLimit
	// KindServerError covers 5xx responses and overloaded services.
	KindServerError
	// KindCircuitOpen means a local circuit breaker refused the call.
	KindCircuitOpen
	// KindAuthentication covers invalid or missing credentials.
	KindAuthentication
	// KindBadRequest covers malformed requests the service rejected.
	KindBadRequest
	// KindNotFound covers unknown models or endpoints.
	KindNotFound
	// KindContentPolicy covers responses blocked by provider safety filters.
	KindContentPolicy
	// KindCanceled means the caller's context was canceled.
	KindCanceled
)

var kindNames = map[BackendErrorKind]string{
	KindUnknown:        "unknown",
	KindNetwork:        "network",
	KindTimeout:        "timeout",
	KindRateLimit:      "rate_limit",
	KindServerError:    "server_error",
	KindCircuitOpen:    "circuit_open",
	KindAuthentication: "authentication",
	KindBadRequest:     "bad_request",
	KindNotFound:       "not_found",
	KindContentPolicy:  "content_policy",
	KindCanceled:       "canceled",
}

// String returns the snake_case name used in result details and metrics.
func (k BackendErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Retryable reports whether failures of this kind are transient.
func (k BackendErrorKind) Retryable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindRateLimit, KindServerError, KindCircuitOpen:
		return true
	default:
		return false
	}
}

// BackendError represents a failed Generate call.
// It includes the backend, the model, the classification and any rate limit
// information the service returned.
type BackendError struct {
	// Backend is the name of the backend that failed.
	Backend string

	// Model is the identifier of the model that was being queried.
	Model string

	// Kind classifies the failure.
	Kind BackendErrorKind

	// StatusCode is the HTTP status returned by the service, or zero.
	StatusCode int

	// RetryAfter indicates how long to wait before retrying, if applicable.
	RetryAfter *time.Duration

	// Err is the underlying error that occurred.
	Err error
}

// Error implements the error interface for BackendError.
func (e *BackendError) Error() string {
	msg := fmt.Sprintf("backend error: backend=%s, model=%s, kind=%s, err=%v", e.Backend, e.Model, e.Kind, e.Err)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(", status=%d", e.StatusCode)
	}
	if e.RetryAfter != nil {
		msg += fmt.Sprintf(", retry_after=%v", *e.RetryAfter)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error { return e.Err }

// IsRetryable returns true if the error is temporary and the call
// can be retried.
func (e *BackendError) IsRetryable() bool { return e.Kind.Retryable() }

// NewBackendError creates a new BackendError with the given details.
func NewBackendError(backend, model string, kind BackendErrorKind, err error) *BackendError {
	return &BackendError{
		Backend: backend,
		Model:   model,
		Kind:    kind,
		Err:     err,
	}
}

// AsBackendError returns err as a *BackendError.
// Errors that are not already classified are wrapped: context errors become
// KindCanceled or KindTimeout, known sentinels map to their kind, and
// everything else becomes KindUnknown.
func AsBackendError(backend, model string, err error) *BackendError {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be
	}

	kind := KindUnknown
	switch {
	case errors.Is(err, context.Canceled):
		kind = KindCanceled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimeout):
		kind = KindTimeout
	case errors.Is(err, ErrRateLimited):
		kind = KindRateLimit
	case errors.Is(err, ErrServiceUnavailable):
		kind = KindServerError
	case errors.Is(err, ErrAuthenticationFailed):
		kind = KindAuthentication
	case errors.Is(err, ErrInvalidResponse):
		kind = KindBadRequest
	}
	return NewBackendError(backend, model, kind, err)
}

// MetricsError reports a metrics operation that failed, such as exporting
// the collected series to a file.
type MetricsError struct {
	// Metric names the metric, or the metric namespace when the operation
	// spans all of them.
	Metric string
	// Operation is what was being done, e.g. "write_textfile".
	Operation string
	Err       error
}

func (e *MetricsError) Error() string {
	return fmt.Sprintf("metrics error: operation=%s, metric=%s, err=%v", e.Operation, e.Metric, e.Err)
}

func (e *MetricsError) Unwrap() error { return e.Err }

// NewMetricsError returns a MetricsError for metric and operation.
func NewMetricsError(metric, operation string, err error) *MetricsError {
	return &MetricsError{Metric: metric, Operation: operation, Err: err}
}

// ConfigError represents an error from configuration operations.
// A ConfigError always aborts a run before any backend call.
type ConfigError struct {
	// ConfigKey is the configuration key that was involved in the failed
	// operation.
	ConfigKey string

	// Err is the underlying error that caused the configuration operation
	// to fail.
	Err error
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: key=%s, err=%v", e.ConfigKey, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError creates a new ConfigError with the given details.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{
		ConfigKey: key,
		Err:       err,
	}
}
