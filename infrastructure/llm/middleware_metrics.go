package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ahrav/go-whoami/internal/domain"
	"github.com/ahrav/go-whoami/internal/ports"
)

// Provider request metric names.
const (
	MetricLLMLatency  = "llm_latency_seconds"
	MetricLLMRequests = "llm_requests_total"
	MetricLLMTokens   = "llm_tokens_total"
)

// metricsLLM records latency, outcome and token usage of provider calls.
type metricsLLM struct {
	next      CoreLLM
	collector ports.MetricsCollector
}

// MetricsMiddleware creates middleware that reports every provider call to
// collector. A nil collector makes the middleware a pass-through.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next CoreLLM) CoreLLM {
		if collector == nil {
			return next
		}
		return &metricsLLM{
			next:      next,
			collector: collector,
		}
	}
}

// DoRequest forwards the request and records one latency observation, one
// request count labeled with the outcome, and the token counts of
// successful calls.
func (m *metricsLLM) DoRequest(ctx context.Context, conv domain.Conversation, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	response, tokensIn, tokensOut, err := m.next.DoRequest(ctx, conv, opts)

	labels := map[string]string{
		"provider": providerForModel(m.next.GetModel()),
		"model":    m.next.GetModel(),
		"status":   requestStatus(err),
	}

	m.collector.RecordHistogram(MetricLLMLatency, time.Since(start).Seconds(), labels)
	m.collector.RecordCounter(MetricLLMRequests, 1, labels)

	if err == nil {
		m.collector.RecordCounter(MetricLLMTokens, float64(tokensIn), withLabel(labels, "token_type", "input"))
		m.collector.RecordCounter(MetricLLMTokens, float64(tokensOut), withLabel(labels, "token_type", "output"))
	}

	return response, tokensIn, tokensOut, err
}

// requestStatus maps a provider call result onto the status label.
func requestStatus(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, ErrCircuitOpen) {
		return ports.KindCircuitOpen.String()
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Kind().String()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ports.KindTimeout.String()
	}
	if errors.Is(err, context.Canceled) {
		return ports.KindCanceled.String()
	}
	return "error"
}

// providerForModel guesses the provider from a model name.
func providerForModel(model string) string {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "gpt"), strings.HasPrefix(lower, "o1"), strings.HasPrefix(lower, "o3"):
		return "openai"
	case strings.Contains(lower, "claude"):
		return "anthropic"
	case strings.Contains(lower, "gemini"):
		return "google"
	default:
		return "unknown"
	}
}

func withLabel(labels map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	out[key] = value
	return out
}

// GetModel returns the model name from the wrapped implementation.
func (m *metricsLLM) GetModel() string { return m.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (m *metricsLLM) SetModel(model string) { m.next.SetModel(model) }
