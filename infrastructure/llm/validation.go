package llm

import (
	"cmp"
	"fmt"
	"net/url"
	"time"
)

// Sampling and timeout bounds shared by the providers. Anthropic narrows
// temperature to [0, 1] on its own.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
	MinTopP        = 0.0
	MaxTopP        = 1.0
	MinPenalty     = -2.0
	MaxPenalty     = 2.0
	MinTimeout     = time.Second
	MaxTimeout     = 10 * time.Minute
)

// option returns opts[key] when it holds a T that valid accepts, and def
// otherwise. A nil valid accepts any T.
func option[T any](opts map[string]any, key string, def T, valid func(T) bool) T {
	v, ok := opts[key].(T)
	if !ok || (valid != nil && !valid(v)) {
		return def
	}
	return v
}

// within returns a predicate for the closed interval [lo, hi].
func within[T cmp.Ordered](lo, hi T) func(T) bool {
	return func(v T) bool { return v >= lo && v <= hi }
}

func clamp[T cmp.Ordered](v, lo, hi T) T {
	return max(lo, min(v, hi))
}

// asFloat64 reads a numeric option that may have been decoded as any of the
// common number types.
func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// clampTimeout bounds a configured request timeout to [MinTimeout,
// MaxTimeout]. Zero means the provider default and stays zero.
func clampTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return clamp(d, MinTimeout, MaxTimeout)
}

// ValidateBaseURL checks that a base URL override is an absolute http(s)
// URL and returns it normalized. An empty override is left empty.
func ValidateBaseURL(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}

	u, err := url.Parse(raw)
	switch {
	case err != nil:
		return "", fmt.Errorf("invalid URL format: %w", err)
	case u.Scheme == "":
		return "", fmt.Errorf("base URL %q has no scheme", raw)
	case u.Scheme != "http" && u.Scheme != "https":
		return "", fmt.Errorf("base URL scheme must be http or https, got %q", u.Scheme)
	case u.Host == "":
		return "", fmt.Errorf("base URL %q has no host", raw)
	}
	return u.String(), nil
}
