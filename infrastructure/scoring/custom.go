package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-whoami/internal/domain"
	"github.com/ahrav/go-whoami/internal/ports"
)

var _ ports.Scorer = (*CustomScorer)(nil)

// ErrNilCustomFunc is returned when a custom scorer is built without a function.
var ErrNilCustomFunc = errors.New("custom scoring function is required")

// CustomFunc is a caller-supplied scoring function.
// The returned score must lie in [0,1].
type CustomFunc func(response string, expected domain.ExpectedIdentity, tc domain.TestCase) (passed bool, score float64, details map[string]any)

// CustomScorer delegates the verdict to a CustomFunc. The function's
// internals are opaque; the scorer only validates the score range and fills
// the standard diagnostic keys the function left unset.
//
// Concurrency: CustomScorer is safe for concurrent use when fn is.
type CustomScorer struct {
	fn     CustomFunc
	tracer trace.Tracer
}

// NewCustomScorer creates a CustomScorer around fn.
func NewCustomScorer(fn CustomFunc) (*CustomScorer, error) {
	if fn == nil {
		return nil, ErrNilCustomFunc
	}
	return &CustomScorer{fn: fn, tracer: otel.Tracer("custom-scorer")}, nil
}

// Method returns domain.ScoringCustom.
func (s *CustomScorer) Method() domain.ScoringMethod { return domain.ScoringCustom }

// Score runs the custom function. A NaN score or one outside [0,1] yields a
// *domain.ScoringError wrapping domain.ErrScoreOutOfRange.
func (s *CustomScorer) Score(ctx context.Context, in domain.ScoreInput) (domain.Verdict, error) {
	_, span := s.tracer.Start(ctx, "CustomScorer.Score",
		trace.WithAttributes(
			attribute.String("scorer.method", string(domain.ScoringCustom)),
			attribute.String("test.id", in.TestCase.ID),
			attribute.String("test.type", string(in.TestCase.Type)),
		),
	)
	defer span.End()

	passed, score, custom := s.fn(in.Response, in.Expected, in.TestCase)
	if math.IsNaN(score) || score < 0 || score > 1 {
		err := domain.NewScoringError(in.TestCase.ID, domain.ScoringCustom,
			fmt.Errorf("%w: %v", domain.ErrScoreOutOfRange, score))
		span.RecordError(err)
		span.SetStatus(codes.Error, "score out of range")
		return domain.Verdict{}, err
	}

	details := keywordAnalysis(in).details(domain.ScoringCustom, false, in.Response)
	for k, v := range custom {
		details[k] = v
	}

	span.SetAttributes(
		attribute.Bool("eval.passed", passed),
		attribute.Float64("eval.score", score),
	)
	return domain.Verdict{Passed: passed, Score: score, Details: details}, nil
}
