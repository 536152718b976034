package application

import (
	"fmt"

	"github.com/ahrav/go-whoami/internal/domain"
)

// SuiteConfig is the external suite document and the primary configuration
// entry point for an evaluation run. It decodes from YAML or JSON and is
// converted into an immutable domain.EvalSuite by the SuiteLoader.
type SuiteConfig struct {
	// EvalName is the human-readable name of the suite, reported as
	// eval_name in the result document.
	EvalName string `yaml:"eval_name" json:"eval_name" validate:"required,min=1,max=255"`
	// Description documents the intent of the suite.
	Description string `yaml:"description,omitempty" json:"description,omitempty" validate:"max=1000"`
	// TestCases are the identity questions, evaluated in order.
	TestCases []TestCaseConfig `yaml:"test_cases" json:"test_cases" validate:"dive"`
	// ModelConfigs maps backend ids to the identity each backend must claim.
	ModelConfigs map[string]ModelConfig `yaml:"model_configs" json:"model_configs" validate:"required,min=1,dive,keys,backendid,endkeys"`
	// Scoring selects the scoring method and the per-type weights used for
	// aggregation.
	Scoring ScoringSection `yaml:"scoring" json:"scoring"`
}

// TestCaseConfig defines a single probe. Adversarial pressure is expressed
// entirely through SetupMessages.
type TestCaseConfig struct {
	// ID uniquely identifies the test case within the suite.
	ID string `yaml:"id" json:"id" validate:"required,testid,max=100"`
	// Prompt is sent as the final user turn.
	Prompt string `yaml:"prompt" json:"prompt" validate:"required"`
	// Type is either direct or adversarial.
	Type string `yaml:"type" json:"type" validate:"required,oneof=direct adversarial"`
	// SetupMessages precede the prompt, verbatim and in order.
	SetupMessages []MessageConfig `yaml:"setup_messages,omitempty" json:"setup_messages,omitempty" validate:"dive"`
	// Description documents what the probe tests.
	Description string `yaml:"description,omitempty" json:"description,omitempty" validate:"max=1000"`
}

// MessageConfig is one scripted conversation turn.
type MessageConfig struct {
	Role    string `yaml:"role" json:"role" validate:"required,oneof=system user assistant"`
	Content string `yaml:"content" json:"content" validate:"required"`
}

// ModelConfig describes one backend the suite knows about.
type ModelConfig struct {
	// Provider names the serving provider, e.g. anthropic or openai.
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty" validate:"max=100"`
	// Model optionally binds the backend id to a real model in the form
	// provider/model, e.g. anthropic/claude-3-opus-20240229.
	Model string `yaml:"model,omitempty" json:"model,omitempty" validate:"omitempty,modelformat"`
	// ExpectedAnswers is the identity the backend must claim.
	ExpectedAnswers ExpectedAnswersConfig `yaml:"expected_answers" json:"expected_answers"`
}

// ExpectedAnswersConfig lists the accepted self-identifications of a backend.
// At least one of ModelNames and ModelID must be set.
type ExpectedAnswersConfig struct {
	ModelNames   []string `yaml:"model_names" json:"model_names" validate:"dive,required"`
	ModelID      string   `yaml:"model_id,omitempty" json:"model_id,omitempty"`
	ProviderName string   `yaml:"provider_name,omitempty" json:"provider_name,omitempty"`
	// Patterns are regular expressions used by the regex scoring method.
	Patterns []string `yaml:"patterns,omitempty" json:"patterns,omitempty" validate:"dive,regexpattern"`
}

// ScoringSection configures verdicts and aggregation.
type ScoringSection struct {
	// Method is keyword_match (default), regex or custom.
	Method string `yaml:"method,omitempty" json:"method,omitempty" validate:"omitempty,oneof=keyword_match regex custom"`
	// Weights maps test types to positive aggregation weights.
	Weights map[string]float64 `yaml:"weights,omitempty" json:"weights,omitempty" validate:"dive,keys,oneof=direct adversarial,endkeys,gt=0"`
	// UnweightedTypes decides how test types missing from Weights are
	// aggregated: default applies DefaultWeight, exclude drops them.
	UnweightedTypes string `yaml:"unweighted_types,omitempty" json:"unweighted_types,omitempty" validate:"omitempty,oneof=default exclude"`
	// DefaultWeight is the weight applied under the default policy.
	// Zero means domain.FallbackWeight.
	DefaultWeight float64 `yaml:"default_weight,omitempty" json:"default_weight,omitempty" validate:"gte=0"`
}

// ToSuite converts the document into a domain.EvalSuite.
// The returned suite shares no slices or maps with c. A setup message with
// an unknown role fails with an error wrapping
// domain.ErrInvalidConfiguration.
func (c *SuiteConfig) ToSuite() (*domain.EvalSuite, error) {
	cases := make([]domain.TestCase, 0, len(c.TestCases))
	for _, tc := range c.TestCases {
		setup := make([]domain.Message, 0, len(tc.SetupMessages))
		for i, m := range tc.SetupMessages {
			msg, err := domain.NewMessage(domain.Role(m.Role), m.Content)
			if err != nil {
				return nil, fmt.Errorf("test case %q setup message %d: %w", tc.ID, i, err)
			}
			setup = append(setup, msg)
		}
		cases = append(cases, domain.TestCase{
			ID:            tc.ID,
			Type:          domain.TestType(tc.Type),
			Prompt:        tc.Prompt,
			SetupMessages: setup,
			Description:   tc.Description,
		})
	}

	backends := make(map[string]domain.ExpectedIdentity, len(c.ModelConfigs))
	for id, mc := range c.ModelConfigs {
		ea := mc.ExpectedAnswers
		backends[id] = domain.ExpectedIdentity{
			ModelNames:   append([]string(nil), ea.ModelNames...),
			ModelID:      ea.ModelID,
			ProviderName: ea.ProviderName,
			Patterns:     append([]string(nil), ea.Patterns...),
		}
	}

	var weights map[domain.TestType]float64
	if len(c.Scoring.Weights) > 0 {
		weights = make(map[domain.TestType]float64, len(c.Scoring.Weights))
		for t, w := range c.Scoring.Weights {
			weights[domain.TestType(t)] = w
		}
	}

	method := domain.ScoringMethod(c.Scoring.Method)
	if method == "" {
		method = domain.ScoringKeywordMatch
	}
	policy := domain.WeightPolicy(c.Scoring.UnweightedTypes)
	if policy == "" {
		policy = domain.WeightPolicyDefault
	}

	return &domain.EvalSuite{
		Name:      c.EvalName,
		TestCases: cases,
		Scoring: domain.ScoringConfig{
			Method:          method,
			Weights:         weights,
			UnweightedTypes: policy,
			DefaultWeight:   c.Scoring.DefaultWeight,
		},
		BackendConfigs: backends,
	}, nil
}
