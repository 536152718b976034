package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-whoami/internal/domain"
)

// Test that our interfaces can be implemented correctly

// echoBackend implements Backend by echoing the final turn.
type echoBackend struct{ model string }

func (b *echoBackend) Generate(ctx context.Context, conv domain.Conversation) (domain.Response, error) {
	last, ok := conv.Last()
	if !ok {
		return domain.Response{}, NewBackendError(b.Name(), b.model, KindBadRequest, ErrInvalidResponse)
	}
	id, _ := TestIDFromContext(ctx)
	return domain.Response{
		Content:  last.Content,
		Metadata: map[string]any{"test_id": id},
	}, nil
}

func (b *echoBackend) Name() string    { return "echo" }
func (b *echoBackend) ModelID() string { return b.model }

// constScorer implements Scorer with a fixed verdict.
type constScorer struct{ passed bool }

func (s constScorer) Method() domain.ScoringMethod { return domain.ScoringCustom }

func (s constScorer) Score(ctx context.Context, in domain.ScoreInput) (domain.Verdict, error) {
	score := 0.0
	if s.passed {
		score = 1
	}
	return domain.Verdict{Passed: s.passed, Score: score, Details: map[string]any{}}, nil
}

// mockMetricsCollector implements MetricsCollector interface
type mockMetricsCollector struct {
	latencies  []time.Duration
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
}

// newMockMetricsCollector creates a new mock metrics collector for testing.
func newMockMetricsCollector() *mockMetricsCollector {
	return &mockMetricsCollector{
		latencies:  []time.Duration{},
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

func (m *mockMetricsCollector) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	m.latencies = append(m.latencies, duration)
}

func (m *mockMetricsCollector) RecordCounter(metric string, value float64, labels map[string]string) {
	m.counters[metric] += value
}

func (m *mockMetricsCollector) RecordGauge(metric string, value float64, labels map[string]string) {
	m.gauges[metric] = value
}

func (m *mockMetricsCollector) RecordHistogram(metric string, value float64, labels map[string]string) {
	m.histograms[metric] = append(m.histograms[metric], value)
}

// Test that interfaces are properly defined and can be implemented
func TestInterfaces_Implementation(t *testing.T) {
	var _ Backend = (*echoBackend)(nil)
	var _ Scorer = constScorer{}
	var _ MetricsCollector = (*mockMetricsCollector)(nil)

	b := &echoBackend{model: "echo-1"}
	assert.Equal(t, "echo-1", b.ModelID(), "ModelID() mismatch")

	ctx := WithTestID(context.Background(), "direct_basic")
	conv := domain.Conversation{{Role: domain.RoleUser, Content: "Who are you?"}}
	resp, err := b.Generate(ctx, conv)
	require.NoError(t, err, "Generate() should not return error")
	assert.Equal(t, "Who are you?", resp.Content, "Generate() response mismatch")
	assert.Equal(t, "direct_basic", resp.Metadata["test_id"], "test id should travel on the context")

	_, err = b.Generate(ctx, nil)
	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.False(t, be.IsRetryable())

	v, err := constScorer{passed: true}.Score(ctx, domain.ScoreInput{Response: resp.Content})
	require.NoError(t, err)
	assert.True(t, v.Passed)
}

func TestTestIDFromContext_Missing(t *testing.T) {
	id, ok := TestIDFromContext(context.Background())
	assert.False(t, ok)
	assert.Empty(t, id)
}

func TestMetricsCollector_Recording(t *testing.T) {
	metrics := newMockMetricsCollector()
	labels := map[string]string{"backend": "test"}

	metrics.RecordLatency("generate", 100*time.Millisecond, labels)
	assert.Len(t, metrics.latencies, 1, "RecordLatency() should record one duration")
	assert.Equal(t, 100*time.Millisecond, metrics.latencies[0], "RecordLatency() duration mismatch")

	metrics.RecordCounter("outcomes", 1, labels)
	metrics.RecordCounter("outcomes", 2, labels)
	assert.Equal(t, float64(3), metrics.counters["outcomes"], "RecordCounter() sum mismatch")

	metrics.RecordGauge("overall_score", 1, labels)
	metrics.RecordGauge("overall_score", 0.5, labels)
	assert.Equal(t, 0.5, metrics.gauges["overall_score"], "RecordGauge() value mismatch")

	metrics.RecordHistogram("response_size", 1024, labels)
	metrics.RecordHistogram("response_size", 2048, labels)
	assert.Len(t, metrics.histograms["response_size"], 2, "RecordHistogram() should record two values")
}
