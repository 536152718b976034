// Package middleware provides cross-cutting concerns for the evaluation engine.
package middleware

import (
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-whoami/infrastructure/llm"
	"github.com/ahrav/go-whoami/internal/ports"
)

const namespace = "whoami"

// PrometheusMetrics implements the MetricsCollector interface using Prometheus.
// It exports test outcomes, retries, scores and backend latency emitted by
// the evaluator, and the request metrics of the llm middleware chain.
type PrometheusMetrics struct {
	testOutcomes    *prometheus.CounterVec
	generateRetries *prometheus.CounterVec
	generateLatency *prometheus.HistogramVec
	overallScore    *prometheus.GaugeVec
	testScore       *prometheus.HistogramVec

	llmLatency  *prometheus.HistogramVec
	llmRequests *prometheus.CounterVec
	llmTokens   *prometheus.CounterVec

	breakerState  *prometheus.GaugeVec
	breakerEvents *prometheus.CounterVec

	operationLatency *prometheus.HistogramVec
	operationCounter *prometheus.CounterVec
	systemGauges     *prometheus.GaugeVec
}

var (
	caseLabels    = []string{ports.LabelSuite, ports.LabelBackend, ports.LabelTestType}
	outcomeLabels = slices.Concat(caseLabels, []string{ports.LabelStatus})
	retryLabels   = slices.Concat(caseLabels, []string{ports.LabelErrorKind})
	requestLabels = []string{"provider", "model", "status"}
)

// NewPrometheusMetrics creates the collectors and registers them with reg.
// A nil reg creates unregistered collectors, which is useful in tests.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		testOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      ports.MetricTestOutcomes,
				Help:      "Test cases by terminal status.",
			},
			outcomeLabels,
		),
		generateRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      ports.MetricGenerateRetries,
				Help:      "Retried backend calls by error kind.",
			},
			retryLabels,
		),
		generateLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generate_duration_seconds",
				Help:      "Time spent obtaining a reply for one test case, retries included.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			caseLabels,
		),
		overallScore: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      ports.MetricOverallScore,
				Help:      "Weighted overall score of the latest run.",
			},
			[]string{ports.LabelSuite, ports.LabelBackend},
		),
		testScore: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      ports.MetricTestScore,
				Help:      "Distribution of per-case scores.",
				Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
			},
			caseLabels,
		),

		llmLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    llm.MetricLLMLatency,
				Help:    "Latency of individual provider requests.",
				Buckets: prometheus.DefBuckets,
			},
			requestLabels,
		),
		llmRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: llm.MetricLLMRequests,
				Help: "Provider requests by outcome.",
			},
			requestLabels,
		),
		llmTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: llm.MetricLLMTokens,
				Help: "Tokens consumed by provider requests.",
			},
			[]string{"provider", "model", "token_type"},
		),

		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "llm_circuit_breaker_state",
				Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
			},
			[]string{"provider"},
		),
		breakerEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_circuit_breaker_events_total",
				Help: "Circuit breaker outcomes: success, failure and rejected.",
			},
			[]string{"provider", "event"},
		),

		operationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations without a dedicated metric.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Counters without a dedicated metric.",
			},
			[]string{"metric"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "system_state",
				Help:      "Gauges without a dedicated metric.",
			},
			[]string{"metric"},
		),
	}
}

// RecordLatency records backend call latency per test case. Other
// operations go to the general operation histogram.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	if operation == ports.OperationGenerate {
		pm.generateLatency.With(pick(labels, caseLabels...)).Observe(duration.Seconds())
		return
	}
	pm.operationLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCounter increments the counter named by metric.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case ports.MetricTestOutcomes:
		pm.testOutcomes.With(pick(labels, outcomeLabels...)).Add(value)
	case ports.MetricGenerateRetries:
		pm.generateRetries.With(pick(labels, retryLabels...)).Add(value)
	case llm.MetricLLMRequests:
		pm.llmRequests.With(pick(labels, requestLabels...)).Add(value)
	case llm.MetricLLMTokens:
		pm.llmTokens.With(pick(labels, "provider", "model", "token_type")).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge sets the gauge named by metric.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	switch metric {
	case ports.MetricOverallScore:
		pm.overallScore.With(pick(labels, ports.LabelSuite, ports.LabelBackend)).Set(value)
	default:
		pm.systemGauges.WithLabelValues(metric).Set(value)
	}
}

// RecordHistogram observes value in the histogram named by metric.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	switch metric {
	case ports.MetricTestScore:
		pm.testScore.With(pick(labels, caseLabels...)).Observe(value)
	case llm.MetricLLMLatency:
		pm.llmLatency.With(pick(labels, requestLabels...)).Observe(value)
	default:
		pm.operationLatency.WithLabelValues(metric).Observe(value)
	}
}

// CircuitBreakerMetrics returns an llm.CircuitBreakerMetrics reporting for
// provider.
func (pm *PrometheusMetrics) CircuitBreakerMetrics(provider string) llm.CircuitBreakerMetrics {
	return &breakerMetrics{pm: pm, provider: provider}
}

type breakerMetrics struct {
	pm       *PrometheusMetrics
	provider string
}

func (b *breakerMetrics) RecordState(state llm.CircuitBreakerState) {
	b.pm.breakerState.WithLabelValues(b.provider).Set(float64(state))
}

func (b *breakerMetrics) RecordTrip() {
	b.pm.breakerEvents.WithLabelValues(b.provider, "rejected").Inc()
}

func (b *breakerMetrics) RecordSuccess() {
	b.pm.breakerEvents.WithLabelValues(b.provider, "success").Inc()
}

func (b *breakerMetrics) RecordFailure() {
	b.pm.breakerEvents.WithLabelValues(b.provider, "failure").Inc()
}

// pick returns the named labels, using "unknown" for missing or empty ones
// so With never panics on a short label set.
func pick(labels map[string]string, names ...string) prometheus.Labels {
	out := make(prometheus.Labels, len(names))
	for _, name := range names {
		v := labels[name]
		if v == "" {
			v = "unknown"
		}
		out[name] = v
	}
	return out
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
