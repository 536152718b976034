package ports

import (
	"context"

	"github.com/ahrav/go-whoami/internal/domain"
)

// Scorer judges a single backend response against an expected identity.
// Scorers are stateless and thread-safe so one instance can serve every
// concurrent test case of a run.
type Scorer interface {
	// Method returns the scoring method this scorer implements.
	Method() domain.ScoringMethod

	// Score produces a verdict for in.
	// A verdict that cannot be produced, such as an invalid pattern or a
	// score outside [0,1], is reported as *domain.ScoringError.
	Score(ctx context.Context, in domain.ScoreInput) (domain.Verdict, error)
}
