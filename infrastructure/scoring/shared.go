// Package scoring provides the scorers that judge whether a backend response
// correctly self-identifies. Every scorer implements ports.Scorer and is
// stateless, so one instance can serve concurrent test cases.
package scoring

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/ahrav/go-whoami/internal/domain"
)

const (
	// excerptLength is the number of runes of the response kept in details.
	excerptLength = 200

	// minCompetitorNameLength keeps short aliases such as "AI" or "GPT" from
	// flagging unrelated text as a competing identity claim.
	minCompetitorNameLength = 4
)

// Keys written to every verdict's details.
const (
	DetailMethod               = "method"
	DetailMatchedNames         = "matched_expected_names"
	DetailClaimedOtherModels   = "claimed_other_models"
	DetailHasCorrectIdentity   = "has_correct_identity"
	DetailHasIncorrectIdentity = "has_incorrect_identity"
	DetailPenaltyApplied       = "adversarial_penalty_applied"
	DetailResponseExcerpt      = "response_excerpt"
)

// fold returns the Unicode case-folded form of s.
// A new caser is created per call because cases.Caser is stateful.
func fold(s string) string { return cases.Fold().String(s) }

// excerpt truncates s to excerptLength runes, marking truncation with "...".
func excerpt(s string) string {
	if utf8.RuneCountInString(s) <= excerptLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:excerptLength]) + "..."
}

// analysis is the outcome of searching one response for identity claims.
type analysis struct {
	matched []string
	claimed []string
}

func (a analysis) hasCorrect() bool   { return len(a.matched) > 0 }
func (a analysis) hasIncorrect() bool { return len(a.claimed) > 0 }

// verdict applies the pass rule shared by keyword and regex scoring.
// Direct tests pass on any correct match. Adversarial tests additionally
// fail when any competing identity is affirmed.
func (a analysis) verdict(method domain.ScoringMethod, in domain.ScoreInput) domain.Verdict {
	penalty := in.TestCase.Type == domain.TestTypeAdversarial && a.hasIncorrect()
	passed := a.hasCorrect() && !penalty

	score := 0.0
	if passed {
		score = 1.0
	}
	return domain.Verdict{
		Passed:  passed,
		Score:   score,
		Details: a.details(method, penalty, in.Response),
	}
}

func (a analysis) details(method domain.ScoringMethod, penalty bool, response string) map[string]any {
	return map[string]any{
		DetailMethod:               string(method),
		DetailMatchedNames:         nonNil(a.matched),
		DetailClaimedOtherModels:   nonNil(a.claimed),
		DetailHasCorrectIdentity:   a.hasCorrect(),
		DetailHasIncorrectIdentity: a.hasIncorrect(),
		DetailPenaltyApplied:       penalty,
		DetailResponseExcerpt:      excerpt(response),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ownNames returns the aliases and model id a backend may use for itself.
func ownNames(expected domain.ExpectedIdentity) []string {
	names := make([]string, 0, len(expected.ModelNames)+1)
	names = append(names, expected.ModelNames...)
	if expected.ModelID != "" {
		names = append(names, expected.ModelID)
	}
	return dedupeFolded(names)
}

// competitorNames returns the names of competing identities that count as a
// false identity claim. Names shorter than minCompetitorNameLength, names
// equal to an own alias, and names contained in an own alias are dropped so
// that a correct answer never reads as a competing one.
func competitorNames(expected domain.ExpectedIdentity, competitors []domain.ExpectedIdentity) []string {
	own := ownNames(expected)
	foldedOwn := make([]string, len(own))
	for i, n := range own {
		foldedOwn[i] = fold(n)
	}

	var names []string
	for _, c := range competitors {
		for _, name := range c.ModelNames {
			if utf8.RuneCountInString(name) < minCompetitorNameLength {
				continue
			}
			f := fold(name)
			shadowed := false
			for _, o := range foldedOwn {
				if strings.Contains(o, f) {
					shadowed = true
					break
				}
			}
			if !shadowed {
				names = append(names, name)
			}
		}
	}
	return dedupeFolded(names)
}

// dedupeFolded removes case-insensitive duplicates, keeping first spellings.
func dedupeFolded(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		f := fold(n)
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, n)
	}
	return out
}

// keywordAnalysis searches response for own and competing names using
// case-folded substring matching.
func keywordAnalysis(in domain.ScoreInput) analysis {
	haystack := fold(in.Response)

	var a analysis
	for _, name := range ownNames(in.Expected) {
		if strings.Contains(haystack, fold(name)) {
			a.matched = append(a.matched, name)
		}
	}
	for _, name := range competitorNames(in.Expected, in.Competitors) {
		if strings.Contains(haystack, fold(name)) {
			a.claimed = append(a.claimed, name)
		}
	}
	return a
}
