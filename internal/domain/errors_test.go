package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoringError(t *testing.T) {
	tests := []struct {
		name    string
		testID  string
		method  ScoringMethod
		err     error
		wantMsg string
	}{
		{
			name:    "out of range score",
			testID:  "direct_basic",
			method:  ScoringCustom,
			err:     ErrScoreOutOfRange,
			wantMsg: "scoring error: method=custom, test=direct_basic, err=score out of range",
		},
		{
			name:    "bad pattern",
			testID:  "adversarial_switch",
			method:  ScoringRegex,
			err:     ErrInvalidPattern,
			wantMsg: "scoring error: method=regex, test=adversarial_switch, err=invalid pattern",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewScoringError(tt.testID, tt.method, tt.err)

			assert.Equal(t, tt.wantMsg, err.Error(), "Error message mismatch")
			assert.Equal(t, tt.testID, err.TestID, "TestID mismatch")
			assert.Equal(t, tt.method, err.Method, "Method mismatch")
			assert.True(t, errors.Is(err, tt.err), "Should unwrap to underlying error")
		})
	}
}

func TestValidationError(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		err := NewValidationError("Suite")
		err.AddError("name is required")

		assert.Equal(t, "validation error for Suite: name is required", err.Error())
		assert.True(t, err.HasErrors(), "Should have errors")
		assert.Len(t, err.Errors, 1, "Should have one error")
	})

	t.Run("multiple errors", func(t *testing.T) {
		err := NewValidationError("Suite")
		err.AddError("duplicate test case id")
		err.AddError("unknown role")

		assert.Contains(t, err.Error(), "validation errors for Suite")
		assert.Len(t, err.Errors, 2, "Should have two errors")
	})

	t.Run("matches invalid configuration", func(t *testing.T) {
		err := NewValidationError("Suite")
		err.AddError("bad")

		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	})

	t.Run("no errors", func(t *testing.T) {
		err := NewValidationError("Config")

		assert.False(t, err.HasErrors(), "Should not have errors")
		assert.Empty(t, err.Errors, "Errors slice should be empty")
	})
}

func TestCommonDomainErrors(t *testing.T) {
	tests := []struct {
		err     error
		message string
	}{
		{ErrEmptySuite, "eval suite has no test cases"},
		{ErrInvalidConfiguration, "invalid configuration"},
		{ErrScoreOutOfRange, "score out of range"},
		{ErrInvalidPattern, "invalid pattern"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.message, tt.err.Error(), "Error message mismatch")
		})
	}
}
