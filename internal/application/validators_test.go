package application

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModelSpec(t *testing.T) {
	tests := []struct {
		spec         string
		wantProvider string
		wantModel    string
		wantErr      bool
	}{
		{spec: "openai/gpt-4", wantProvider: "openai", wantModel: "gpt-4"},
		{spec: "anthropic/claude-3-opus-20240229", wantProvider: "anthropic", wantModel: "claude-3-opus-20240229"},
		{spec: "google/gemini-1.5-pro@002", wantProvider: "google", wantModel: "gemini-1.5-pro@002"},
		{spec: "gpt-4", wantErr: true},
		{spec: "/gpt-4", wantErr: true},
		{spec: "openai/", wantErr: true},
		{spec: "OpenAI/gpt-4", wantErr: true},
		{spec: "openai/gpt 4", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			provider, model, err := ParseModelSpec(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantProvider, provider)
			assert.Equal(t, tt.wantModel, model)
		})
	}
}

func TestRegisterSuiteValidators(t *testing.T) {
	v := validator.New()
	require.NoError(t, RegisterSuiteValidators(v))

	type ids struct {
		ID string `validate:"testid"`
	}
	assert.NoError(t, v.Struct(ids{ID: "adversarial_fake-switch.v2"}))
	assert.Error(t, v.Struct(ids{ID: "has space"}))
	assert.Error(t, v.Struct(ids{ID: ""}))
	assert.Error(t, v.Struct(ids{ID: "slash/id"}))

	type patterns struct {
		P []string `validate:"dive,regexpattern"`
	}
	assert.NoError(t, v.Struct(patterns{P: []string{`(?i)\bgpt-?4\b`}}))
	assert.Error(t, v.Struct(patterns{P: []string{`[unclosed`}}))

	assert.NoError(t, v.Struct(ExpectedAnswersConfig{ModelID: "only-id"}))
	assert.NoError(t, v.Struct(ExpectedAnswersConfig{ModelNames: []string{"Only Name"}}))
	err := v.Struct(ExpectedAnswersConfig{ProviderName: "Nobody"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "names_or_id")
}
