package domain

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
)

// TestType distinguishes neutral probes from probes that apply identity
// pressure through their setup conversation.
type TestType string

const (
	// TestTypeDirect asks the model about its identity with no setup pressure.
	TestTypeDirect TestType = "direct"
	// TestTypeAdversarial carries setup turns that try to induce a false
	// identity (fake switch, false correction, forged system message).
	TestTypeAdversarial TestType = "adversarial"
)

// Valid reports whether t is a supported test type.
func (t TestType) Valid() bool { return t == TestTypeDirect || t == TestTypeAdversarial }

// TestCase defines a single identity probe.
// All adversarial behavior lives in SetupMessages; the orchestrator never
// branches on Type when building the conversation.
type TestCase struct {
	ID            string
	Type          TestType
	Prompt        string
	SetupMessages []Message
	Description   string
}

// Conversation builds the conversation sent to a backend: the setup turns
// followed by a final user turn carrying the prompt.
// The returned slice never aliases SetupMessages.
func (tc TestCase) Conversation() Conversation {
	return Conversation(tc.SetupMessages).With(Message{Role: RoleUser, Content: tc.Prompt})
}

// ExpectedIdentity describes how a particular backend should identify itself.
// The same identity applies to every test case run against that backend.
type ExpectedIdentity struct {
	// ModelNames are case-insensitive aliases the model may use for itself.
	ModelNames []string

	// ModelID is the literal model identifier, also accepted as a match.
	ModelID string

	// ProviderName is the organization serving the model.
	ProviderName string

	// Patterns are optional regular expressions used by the regex scoring
	// method instead of patterns derived from ModelNames.
	Patterns []string
}

// PrimaryName returns the first alias, falling back to the model id.
func (e ExpectedIdentity) PrimaryName() string {
	if len(e.ModelNames) > 0 {
		return e.ModelNames[0]
	}
	return e.ModelID
}

// HasAlias reports whether name equals one of the aliases, ignoring case.
func (e ExpectedIdentity) HasAlias(name string) bool {
	return slices.ContainsFunc(e.ModelNames, func(alias string) bool {
		return strings.EqualFold(alias, name)
	})
}

// ScoringMethod selects how verdicts are computed.
type ScoringMethod string

const (
	// ScoringKeywordMatch uses case-insensitive substring search.
	ScoringKeywordMatch ScoringMethod = "keyword_match"
	// ScoringRegex uses regular expressions.
	ScoringRegex ScoringMethod = "regex"
	// ScoringCustom delegates to a caller-supplied function.
	ScoringCustom ScoringMethod = "custom"
)

// WeightPolicy decides how outcomes whose test type has no configured weight
// take part in aggregation.
type WeightPolicy string

const (
	// WeightPolicyDefault applies ScoringConfig.DefaultWeight.
	WeightPolicyDefault WeightPolicy = "default"
	// WeightPolicyExclude leaves such outcomes out of the weighted mean.
	WeightPolicyExclude WeightPolicy = "exclude"
)

// FallbackWeight is used when neither Weights nor DefaultWeight supply one.
const FallbackWeight = 1.0

// ScoringConfig governs verdict computation and suite aggregation.
type ScoringConfig struct {
	Method          ScoringMethod
	Weights         map[TestType]float64
	UnweightedTypes WeightPolicy
	DefaultWeight   float64
}

// WeightFor returns the weight applied to outcomes of type t and whether
// such outcomes are included in the weighted mean at all.
func (s ScoringConfig) WeightFor(t TestType) (float64, bool) {
	if w, ok := s.Weights[t]; ok {
		return w, true
	}
	if s.UnweightedTypes == WeightPolicyExclude {
		return 0, false
	}
	if s.DefaultWeight > 0 {
		return s.DefaultWeight, true
	}
	return FallbackWeight, true
}

// EvalSuite is the immutable definition of one evaluation run.
// It is built once, validated, and shared read-only by every run.
type EvalSuite struct {
	Name           string
	TestCases      []TestCase
	Scoring        ScoringConfig
	BackendConfigs map[string]ExpectedIdentity
}

// Validate checks the structural invariants of the suite.
// It returns ErrEmptySuite for a suite without test cases and a
// *ValidationError listing every other problem found.
func (s *EvalSuite) Validate() error {
	if len(s.TestCases) == 0 {
		return ErrEmptySuite
	}

	verr := NewValidationError("eval suite " + s.Name)
	if strings.TrimSpace(s.Name) == "" {
		verr.AddError("name is required")
	}

	seen := make(map[string]struct{}, len(s.TestCases))
	for i, tc := range s.TestCases {
		if tc.ID == "" {
			verr.AddError(fmt.Sprintf("test case %d: id is required", i))
		} else if _, dup := seen[tc.ID]; dup {
			verr.AddError(fmt.Sprintf("duplicate test case id %q", tc.ID))
		}
		seen[tc.ID] = struct{}{}

		if !tc.Type.Valid() {
			verr.AddError(fmt.Sprintf("test case %q: unknown type %q", tc.ID, tc.Type))
		}
		if strings.TrimSpace(tc.Prompt) == "" {
			verr.AddError(fmt.Sprintf("test case %q: prompt is required", tc.ID))
		}
		for j, m := range tc.SetupMessages {
			if !m.Role.Valid() {
				verr.AddError(fmt.Sprintf("test case %q: setup message %d has unknown role %q", tc.ID, j, m.Role))
			}
		}
	}

	switch s.Scoring.Method {
	case "", ScoringKeywordMatch, ScoringRegex, ScoringCustom:
	default:
		verr.AddError(fmt.Sprintf("unknown scoring method %q", s.Scoring.Method))
	}
	switch s.Scoring.UnweightedTypes {
	case "", WeightPolicyDefault, WeightPolicyExclude:
	default:
		verr.AddError(fmt.Sprintf("unknown weight policy %q", s.Scoring.UnweightedTypes))
	}
	for t, w := range s.Scoring.Weights {
		if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			verr.AddError(fmt.Sprintf("weight for %q must be a positive number, got %v", t, w))
		}
	}
	if dw := s.Scoring.DefaultWeight; dw < 0 || math.IsNaN(dw) || math.IsInf(dw, 0) {
		verr.AddError(fmt.Sprintf("default weight must be a finite non-negative number, got %v", dw))
	}

	if len(s.BackendConfigs) == 0 {
		verr.AddError("at least one backend identity is required")
	}
	for _, id := range s.BackendIDs() {
		ident := s.BackendConfigs[id]
		if len(ident.ModelNames) == 0 && ident.ModelID == "" {
			verr.AddError(fmt.Sprintf("backend %q: expected identity needs model names or a model id", id))
		}
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

// BackendIDs returns the configured backend ids in sorted order.
func (s *EvalSuite) BackendIDs() []string {
	ids := make([]string, 0, len(s.BackendConfigs))
	for id := range s.BackendConfigs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Competitors returns the identities of every configured backend other than
// backendID, in backend-id order. These are the names an adversarial
// response must not affirm.
func (s *EvalSuite) Competitors(backendID string) []ExpectedIdentity {
	var out []ExpectedIdentity
	for _, id := range s.BackendIDs() {
		if id == backendID {
			continue
		}
		out = append(out, s.BackendConfigs[id])
	}
	return out
}
