package scoring

import (
	"context"
	"fmt"
	"regexp"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-whoami/internal/domain"
	"github.com/ahrav/go-whoami/internal/ports"
)

var _ ports.Scorer = (*RegexScorer)(nil)

// RegexScorer applies the keyword pass rule with regular expressions.
// Every identity, expected or competing, that carries Patterns is matched
// with them verbatim; otherwise each of its aliases becomes a
// case-insensitive, word-bounded pattern.
//
// Concurrency: RegexScorer is stateless and safe for concurrent use.
type RegexScorer struct {
	tracer trace.Tracer
}

// NewRegexScorer creates a RegexScorer.
func NewRegexScorer() *RegexScorer {
	return &RegexScorer{tracer: otel.Tracer("regex-scorer")}
}

// Method returns domain.ScoringRegex.
func (s *RegexScorer) Method() domain.ScoringMethod { return domain.ScoringRegex }

// namedPattern pairs a compiled pattern with the label recorded on a match.
// An empty label records the matched text instead.
type namedPattern struct {
	label string
	re    *regexp.Regexp
}

// DerivePattern returns the pattern used for an alias without a
// caller-supplied expression.
func DerivePattern(name string) string {
	return `(?i)\b` + regexp.QuoteMeta(name) + `\b`
}

// Score judges in.Response. A caller-supplied pattern that fails to compile
// yields a *domain.ScoringError wrapping domain.ErrInvalidPattern.
func (s *RegexScorer) Score(ctx context.Context, in domain.ScoreInput) (domain.Verdict, error) {
	_, span := s.tracer.Start(ctx, "RegexScorer.Score",
		trace.WithAttributes(
			attribute.String("scorer.method", string(domain.ScoringRegex)),
			attribute.String("test.id", in.TestCase.ID),
			attribute.String("test.type", string(in.TestCase.Type)),
			attribute.Int("patterns.count", len(in.Expected.Patterns)),
		),
	)
	defer span.End()

	own, err := s.ownPatterns(in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid pattern")
		return domain.Verdict{}, err
	}

	others, err := s.competitorPatterns(in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid pattern")
		return domain.Verdict{}, err
	}

	var a analysis
	for _, p := range own {
		if m := p.re.FindString(in.Response); m != "" {
			a.matched = append(a.matched, p.labelFor(m))
		}
	}
	for _, p := range others {
		if m := p.re.FindString(in.Response); m != "" {
			a.claimed = append(a.claimed, p.labelFor(m))
		}
	}
	a.matched = dedupeFolded(a.matched)
	a.claimed = dedupeFolded(a.claimed)

	v := a.verdict(domain.ScoringRegex, in)
	span.SetAttributes(
		attribute.Bool("eval.passed", v.Passed),
		attribute.Float64("eval.score", v.Score),
	)
	return v, nil
}

func (s *RegexScorer) ownPatterns(in domain.ScoreInput) ([]namedPattern, error) {
	if len(in.Expected.Patterns) > 0 {
		out := make([]namedPattern, 0, len(in.Expected.Patterns))
		for _, expr := range in.Expected.Patterns {
			re, err := compilePattern(in.TestCase.ID, expr)
			if err != nil {
				return nil, err
			}
			out = append(out, namedPattern{re: re})
		}
		return out, nil
	}

	names := ownNames(in.Expected)
	out := make([]namedPattern, 0, len(names))
	for _, name := range names {
		out = append(out, namedPattern{label: name, re: regexp.MustCompile(DerivePattern(name))})
	}
	return out, nil
}

// competitorPatterns builds the patterns that reveal a competing identity.
// A match records the competitor's primary name when it declares Patterns,
// and the matching alias otherwise.
func (s *RegexScorer) competitorPatterns(in domain.ScoreInput) ([]namedPattern, error) {
	var out []namedPattern
	var derived []domain.ExpectedIdentity
	for _, c := range in.Competitors {
		if len(c.Patterns) == 0 {
			derived = append(derived, c)
			continue
		}
		for _, expr := range c.Patterns {
			re, err := compilePattern(in.TestCase.ID, expr)
			if err != nil {
				return nil, err
			}
			out = append(out, namedPattern{label: c.PrimaryName(), re: re})
		}
	}
	for _, name := range competitorNames(in.Expected, derived) {
		// Quoted names always compile.
		out = append(out, namedPattern{label: name, re: regexp.MustCompile(DerivePattern(name))})
	}
	return out, nil
}

func compilePattern(testID, expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, domain.NewScoringError(testID, domain.ScoringRegex,
			fmt.Errorf("%w: %q: %v", domain.ErrInvalidPattern, expr, err))
	}
	return re, nil
}

func (p namedPattern) labelFor(match string) string {
	if p.label != "" {
		return p.label
	}
	return match
}
