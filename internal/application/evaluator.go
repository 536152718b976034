// Package application provides the core orchestration for the evaluation
// engine: loading suites, running them against backends and persisting
// results.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agnivade/levenshtein"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ahrav/go-whoami/infrastructure/scoring"
	"github.com/ahrav/go-whoami/internal/domain"
	"github.com/ahrav/go-whoami/internal/ports"
)

// Keys added to the details of errored outcomes.
const (
	DetailError     = "error"
	DetailErrorKind = "error_kind"
	DetailRetryable = "retryable"
	DetailAttempts  = "attempts"
)

// DefaultConcurrency evaluates test cases one at a time, in suite order.
const DefaultConcurrency = 1

// Evaluator runs one immutable suite against any number of backends.
// It holds no state across runs, so a single Evaluator can evaluate
// several backends sequentially or concurrently without cross-contamination.
type Evaluator struct {
	suite       *domain.EvalSuite
	scorer      ports.Scorer
	retry       RetryPolicy
	concurrency int
	logger      *slog.Logger
	metrics     ports.MetricsCollector
	tracer      trace.Tracer
}

type evaluatorOptions struct {
	concurrency int
	retry       RetryPolicy
	logger      *slog.Logger
	metrics     ports.MetricsCollector
	registry    *ScorerRegistry
	customFunc  scoring.CustomFunc
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*evaluatorOptions)

// WithConcurrency sets how many test cases may be in flight at once.
// Values below one mean sequential evaluation.
func WithConcurrency(n int) EvaluatorOption {
	return func(o *evaluatorOptions) { o.concurrency = n }
}

// WithMaxAttempts sets the number of Generate calls allowed per test case.
func WithMaxAttempts(n int) EvaluatorOption {
	return func(o *evaluatorOptions) { o.retry.MaxAttempts = n }
}

// WithRetryBackoff sets the exponential backoff bounds between attempts.
func WithRetryBackoff(base, maxDelay time.Duration) EvaluatorOption {
	return func(o *evaluatorOptions) {
		o.retry.BaseDelay = base
		o.retry.MaxDelay = maxDelay
	}
}

// WithRetryPolicy replaces the whole retry policy.
func WithRetryPolicy(p RetryPolicy) EvaluatorOption {
	return func(o *evaluatorOptions) { o.retry = p }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) EvaluatorOption {
	return func(o *evaluatorOptions) { o.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m ports.MetricsCollector) EvaluatorOption {
	return func(o *evaluatorOptions) { o.metrics = m }
}

// WithScorerRegistry sets the registry the scorer is resolved from.
func WithScorerRegistry(r *ScorerRegistry) EvaluatorOption {
	return func(o *evaluatorOptions) { o.registry = r }
}

// WithCustomScorer supplies the function used by the custom scoring method.
func WithCustomScorer(fn scoring.CustomFunc) EvaluatorOption {
	return func(o *evaluatorOptions) { o.customFunc = fn }
}

// NewEvaluator validates suite and resolves its scorer.
// Every failure is a *ports.ConfigError; an empty suite wraps
// domain.ErrEmptySuite. No backend is touched.
func NewEvaluator(suite *domain.EvalSuite, opts ...EvaluatorOption) (*Evaluator, error) {
	if suite == nil {
		return nil, ports.NewConfigError("suite", fmt.Errorf("%w: suite is nil", domain.ErrInvalidConfiguration))
	}
	if err := suite.Validate(); err != nil {
		if errors.Is(err, domain.ErrEmptySuite) {
			return nil, ports.NewConfigError("test_cases", err)
		}
		return nil, ports.NewConfigError("suite", err)
	}

	o := evaluatorOptions{
		concurrency: DefaultConcurrency,
		retry:       DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.registry == nil {
		o.registry = NewScorerRegistry()
	}
	if o.customFunc != nil {
		if err := o.registry.SetCustomFunc(o.customFunc); err != nil {
			return nil, ports.NewConfigError("scoring.method", err)
		}
	}

	scorer, err := o.registry.CreateScorer(suite.Scoring.Method)
	if err != nil {
		return nil, ports.NewConfigError("scoring.method", err)
	}

	return &Evaluator{
		suite:       suite,
		scorer:      scorer,
		retry:       o.retry,
		concurrency: max(o.concurrency, 1),
		logger:      o.logger,
		metrics:     o.metrics,
		tracer:      otel.Tracer("evaluator"),
	}, nil
}

// Suite returns the suite this evaluator runs. It must not be modified.
func (e *Evaluator) Suite() *domain.EvalSuite { return e.suite }

// Run evaluates every test case against backend and aggregates the outcomes.
//
// Per-case failures never abort the run: backend errors that survive the
// retry policy and scoring errors mark the case errored with a score of
// zero. A backend whose model id has no expected identity in the suite
// fails with a *ports.ConfigError before any dispatch.
//
// When ctx is canceled, no further test cases are dispatched. Run then
// returns the result over the dispatched cases together with an error
// wrapping ctx.Err().
func (e *Evaluator) Run(ctx context.Context, backend ports.Backend, verbose bool) (*domain.SuiteResult, error) {
	if backend == nil {
		return nil, ports.NewConfigError("backend", fmt.Errorf("%w: backend is nil", domain.ErrInvalidConfiguration))
	}

	backendID := backend.ModelID()
	expected, ok := e.suite.BackendConfigs[backendID]
	if !ok {
		return nil, ports.NewConfigError("model_configs",
			fmt.Errorf("%w: %q%s", ports.ErrUnknownBackend, backendID, e.suggestBackend(backendID)))
	}
	competitors := e.suite.Competitors(backendID)

	ctx, span := e.tracer.Start(ctx, "Evaluator.Run",
		trace.WithAttributes(
			attribute.String("suite.name", e.suite.Name),
			attribute.String("backend.name", backend.Name()),
			attribute.String("backend.model_id", backendID),
			attribute.Int("suite.test_cases", len(e.suite.TestCases)),
			attribute.Int("run.concurrency", e.concurrency),
		),
	)
	defer span.End()

	logger := e.logger.With("suite", e.suite.Name, "backend", backend.Name(), "model_id", backendID)
	logger.Info("starting evaluation", "test_cases", len(e.suite.TestCases), "concurrency", e.concurrency)
	start := time.Now()

	cases := e.suite.TestCases
	outcomes := make([]domain.TestOutcome, len(cases))
	dispatched := 0

	// A case is dispatched only once it holds a slot and ctx is still live,
	// so a cancel that lands while waiting for a slot dispatches nothing.
	sem := semaphore.NewWeighted(int64(e.concurrency))
	var g errgroup.Group
	for i := range cases {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		if ctx.Err() != nil {
			sem.Release(1)
			break
		}
		dispatched++
		g.Go(func() error {
			defer sem.Release(1)
			outcomes[i] = e.evaluateCase(ctx, logger, backend, cases[i], expected, competitors, verbose)
			return nil
		})
	}
	// Per-case failures are recorded as outcomes, so Wait never fails.
	_ = g.Wait()

	result := domain.NewSuiteResult(backendID, e.suite.Name, outcomes[:dispatched], e.suite.Scoring)
	e.recordRun(result)

	span.SetAttributes(
		attribute.Int("result.total_tests", result.TotalTests),
		attribute.Int("result.passed_tests", result.PassedTests),
		attribute.Float64("result.overall_score", result.OverallScore),
	)
	counts := result.StatusCounts()
	logger.Info("evaluation finished",
		"total", result.TotalTests,
		"passed", counts[domain.StatusPassed],
		"failed", counts[domain.StatusFailed],
		"errored", counts[domain.StatusErrored],
		"overall_score", result.OverallScore,
		"duration", time.Since(start),
	)

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "evaluation interrupted")
		return result, fmt.Errorf("evaluation interrupted after %d of %d test cases: %w", dispatched, len(cases), err)
	}
	return result, nil
}

// evaluateCase drives one test case through build, invoke and score.
func (e *Evaluator) evaluateCase(
	ctx context.Context,
	logger *slog.Logger,
	backend ports.Backend,
	tc domain.TestCase,
	expected domain.ExpectedIdentity,
	competitors []domain.ExpectedIdentity,
	verbose bool,
) domain.TestOutcome {
	ctx, span := e.tracer.Start(ctx, "Evaluator.evaluateCase",
		trace.WithAttributes(
			attribute.String("test.id", tc.ID),
			attribute.String("test.type", string(tc.Type)),
		),
	)
	defer span.End()

	ctx = ports.WithTestID(ctx, tc.ID)
	logger = logger.With("test_id", tc.ID, "test_type", string(tc.Type))

	labels := map[string]string{
		ports.LabelSuite:    e.suite.Name,
		ports.LabelBackend:  backend.ModelID(),
		ports.LabelTestType: string(tc.Type),
	}

	start := time.Now()
	res := e.retry.generate(ctx, backend, tc.Conversation(), func(attempt int, err *ports.BackendError, delay time.Duration) {
		logger.Warn("retrying backend call", "attempt", attempt, "error_kind", err.Kind.String(), "delay", delay, "error", err)
		if e.metrics != nil {
			e.metrics.RecordCounter(ports.MetricGenerateRetries, 1, withLabel(labels, ports.LabelErrorKind, err.Kind.String()))
		}
	})
	if e.metrics != nil {
		e.metrics.RecordLatency(ports.OperationGenerate, time.Since(start), labels)
	}

	var outcome domain.TestOutcome
	switch {
	case res.err != nil:
		span.RecordError(res.err)
		span.SetStatus(codes.Error, "backend error")
		outcome = domain.NewErroredOutcome(tc, "", map[string]any{
			DetailError:     res.err.Error(),
			DetailErrorKind: res.err.Kind.String(),
			DetailRetryable: res.err.IsRetryable(),
			DetailAttempts:  res.attempts,
		})
	default:
		verdict, err := e.scorer.Score(ctx, domain.ScoreInput{
			Response:    res.response.Content,
			Expected:    expected,
			Competitors: competitors,
			TestCase:    tc,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "scoring error")
			outcome = domain.NewErroredOutcome(tc, res.response.Content, map[string]any{
				DetailError:          err.Error(),
				scoring.DetailMethod: string(e.scorer.Method()),
				DetailAttempts:       res.attempts,
			})
		} else {
			outcome = domain.NewVerdictOutcome(tc, res.response.Content, verdict)
		}
	}

	span.SetAttributes(
		attribute.String("test.status", string(outcome.Status)),
		attribute.Float64("test.score", outcome.Score),
	)
	if e.metrics != nil {
		e.metrics.RecordCounter(ports.MetricTestOutcomes, 1, withLabel(labels, ports.LabelStatus, string(outcome.Status)))
		e.metrics.RecordHistogram(ports.MetricTestScore, outcome.Score, labels)
	}

	level := slog.LevelDebug
	if verbose {
		level = slog.LevelInfo
	}
	logger.Log(ctx, level, "test case evaluated",
		"status", string(outcome.Status),
		"score", outcome.Score,
		"attempts", res.attempts,
	)
	if outcome.Status == domain.StatusErrored {
		logger.Warn("test case errored", "error", outcome.Details[DetailError])
	}

	return outcome
}

func (e *Evaluator) recordRun(result *domain.SuiteResult) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordGauge(ports.MetricOverallScore, result.OverallScore, map[string]string{
		ports.LabelSuite:   result.SuiteName,
		ports.LabelBackend: result.BackendID,
	})
}

// suggestBackend returns a "did you mean" hint for the configured backend
// id closest to id, or an empty string when nothing is close.
func (e *Evaluator) suggestBackend(id string) string {
	best, bestDist := "", -1
	for _, candidate := range e.suite.BackendIDs() {
		d := levenshtein.ComputeDistance(id, candidate)
		if bestDist < 0 || d < bestDist {
			best, bestDist = candidate, d
		}
	}
	if best == "" || bestDist > max(2, len(best)/3) {
		return ""
	}
	return fmt.Sprintf(" (did you mean %q?)", best)
}

func withLabel(labels map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	out[key] = value
	return out
}
