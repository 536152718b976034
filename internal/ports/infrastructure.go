package ports

import "time"

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus, OpenTelemetry, or custom monitoring solutions.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// This is useful for tracking events like outcomes per status, retries,
	// errors, etc.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	// This is useful for tracking values like the latest overall score.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	// This is useful for tracking distributions like response sizes,
	// scores, etc.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// Metric names and label keys emitted by the evaluator. Collectors route
// on these names.
const (
	// MetricTestOutcomes counts terminal test case states.
	MetricTestOutcomes = "test_outcomes_total"
	// MetricGenerateRetries counts retried Generate calls.
	MetricGenerateRetries = "generate_retries_total"
	// MetricOverallScore is the weighted score of the latest run.
	MetricOverallScore = "overall_score"
	// MetricTestScore is the distribution of per-case scores.
	MetricTestScore = "test_score"
	// OperationGenerate is the latency operation for backend calls.
	OperationGenerate = "generate"

	LabelSuite     = "suite"
	LabelBackend   = "backend"
	LabelTestType  = "test_type"
	LabelStatus    = "status"
	LabelErrorKind = "error_kind"
)
