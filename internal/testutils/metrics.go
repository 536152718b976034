package testutils

import (
	"sync"
	"time"

	"github.com/ahrav/go-whoami/internal/ports"
)

var _ ports.MetricsCollector = (*RecordingMetrics)(nil)

// MetricCall is one recorded metrics call.
type MetricCall struct {
	Name   string
	Value  float64
	Labels map[string]string
}

// RecordingMetrics is a ports.MetricsCollector that keeps every call in
// memory for assertions.
type RecordingMetrics struct {
	mu         sync.Mutex
	Latencies  []MetricCall
	Counters   []MetricCall
	Gauges     []MetricCall
	Histograms []MetricCall
}

func (m *RecordingMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Latencies = append(m.Latencies, MetricCall{Name: operation, Value: duration.Seconds(), Labels: labels})
}

func (m *RecordingMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Counters = append(m.Counters, MetricCall{Name: metric, Value: value, Labels: labels})
}

func (m *RecordingMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gauges = append(m.Gauges, MetricCall{Name: metric, Value: value, Labels: labels})
}

func (m *RecordingMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Histograms = append(m.Histograms, MetricCall{Name: metric, Value: value, Labels: labels})
}

// CounterTotal sums the counter values recorded for metric whose labels
// include every key/value in match.
func (m *RecordingMetrics) CounterTotal(metric string, match map[string]string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, c := range m.Counters {
		if c.Name == metric && labelsMatch(c.Labels, match) {
			total += c.Value
		}
	}
	return total
}

func labelsMatch(labels, match map[string]string) bool {
	for k, v := range match {
		if labels[k] != v {
			return false
		}
	}
	return true
}
