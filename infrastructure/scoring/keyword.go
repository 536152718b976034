package scoring

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-whoami/internal/domain"
	"github.com/ahrav/go-whoami/internal/ports"
)

var _ ports.Scorer = (*KeywordScorer)(nil)

// KeywordScorer passes a response that contains any expected alias or the
// literal model id, compared with Unicode case folding. On adversarial tests
// a response that also names a competing identity fails regardless of the
// correct match. Scores are binary.
//
// Concurrency: KeywordScorer is stateless and safe for concurrent use.
type KeywordScorer struct {
	tracer trace.Tracer
}

// NewKeywordScorer creates a KeywordScorer.
func NewKeywordScorer() *KeywordScorer {
	return &KeywordScorer{tracer: otel.Tracer("keyword-scorer")}
}

// Method returns domain.ScoringKeywordMatch.
func (s *KeywordScorer) Method() domain.ScoringMethod { return domain.ScoringKeywordMatch }

// Score judges in.Response. It never returns an error.
func (s *KeywordScorer) Score(ctx context.Context, in domain.ScoreInput) (domain.Verdict, error) {
	_, span := s.tracer.Start(ctx, "KeywordScorer.Score",
		trace.WithAttributes(
			attribute.String("scorer.method", string(domain.ScoringKeywordMatch)),
			attribute.String("test.id", in.TestCase.ID),
			attribute.String("test.type", string(in.TestCase.Type)),
		),
	)
	defer span.End()

	v := keywordAnalysis(in).verdict(domain.ScoringKeywordMatch, in)

	span.SetAttributes(
		attribute.Bool("eval.passed", v.Passed),
		attribute.Float64("eval.score", v.Score),
	)
	return v, nil
}
