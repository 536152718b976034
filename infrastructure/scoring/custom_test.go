package scoring

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-whoami/internal/domain"
)

func TestNewCustomScorer_NilFunc(t *testing.T) {
	s, err := NewCustomScorer(nil)

	assert.ErrorIs(t, err, ErrNilCustomFunc)
	assert.Nil(t, s)
}

func TestCustomScorer_Score(t *testing.T) {
	mentionsProvider := func(response string, expected domain.ExpectedIdentity, tc domain.TestCase) (bool, float64, map[string]any) {
		ok := strings.Contains(response, expected.ProviderName)
		score := 0.25
		if ok {
			score = 0.75
		}
		return ok, score, map[string]any{"provider_mentioned": ok}
	}

	s, err := NewCustomScorer(mentionsProvider)
	require.NoError(t, err)

	v, err := s.Score(context.Background(), input("I'm Mock Model v1 from MockProvider.", domain.TestTypeDirect))
	require.NoError(t, err)

	assert.True(t, v.Passed)
	assert.Equal(t, 0.75, v.Score)
	assert.Equal(t, true, v.Details["provider_mentioned"])
	assert.Equal(t, "custom", v.Details[DetailMethod])
	assert.Equal(t, []string{"Mock Model v1"}, v.Details[DetailMatchedNames],
		"standard diagnostics are filled in")
}

func TestCustomScorer_FunctionDetailsWin(t *testing.T) {
	s, err := NewCustomScorer(func(string, domain.ExpectedIdentity, domain.TestCase) (bool, float64, map[string]any) {
		return false, 0, map[string]any{DetailMatchedNames: []string{"override"}}
	})
	require.NoError(t, err)

	v, err := s.Score(context.Background(), input("I'm Mock Model v1", domain.TestTypeDirect))
	require.NoError(t, err)

	assert.Equal(t, []string{"override"}, v.Details[DetailMatchedNames])
}

func TestCustomScorer_OutOfRange(t *testing.T) {
	for _, score := range []float64{-0.1, 1.5, math.NaN(), math.Inf(1)} {
		s, err := NewCustomScorer(func(string, domain.ExpectedIdentity, domain.TestCase) (bool, float64, map[string]any) {
			return true, score, nil
		})
		require.NoError(t, err)

		_, err = s.Score(context.Background(), input("x", domain.TestTypeDirect))

		var serr *domain.ScoringError
		require.ErrorAs(t, err, &serr, "score %v should be rejected", score)
		assert.ErrorIs(t, err, domain.ErrScoreOutOfRange)
		assert.Equal(t, domain.ScoringCustom, serr.Method)
	}
}
