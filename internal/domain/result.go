package domain

import "fmt"

// ScoreInput carries everything a scorer needs to judge one response.
type ScoreInput struct {
	// Response is the raw text returned by the backend.
	Response string

	// Expected is the identity the backend under test should claim.
	Expected ExpectedIdentity

	// Competitors are the identities of the other configured backends.
	Competitors []ExpectedIdentity

	// TestCase is the probe that produced the response.
	TestCase TestCase
}

// Verdict is the outcome of scoring a single response.
type Verdict struct {
	Passed  bool
	Score   float64
	Details map[string]any
}

// OutcomeStatus is the terminal state of a test case.
type OutcomeStatus string

const (
	// StatusPassed means the scorer accepted the response.
	StatusPassed OutcomeStatus = "passed"
	// StatusFailed means the scorer rejected the response.
	StatusFailed OutcomeStatus = "failed"
	// StatusErrored means no verdict could be produced, either because the
	// backend failed or the scorer returned an invalid verdict.
	StatusErrored OutcomeStatus = "errored"
)

// TestOutcome records what happened to one test case in one run.
// Outcomes are created once and never modified.
type TestOutcome struct {
	TestID   string         `json:"test_id"`
	TestType TestType       `json:"test_type"`
	Status   OutcomeStatus  `json:"status"`
	Passed   bool           `json:"passed"`
	Score    float64        `json:"score"`
	Response string         `json:"response"`
	Details  map[string]any `json:"details"`
}

// NewVerdictOutcome converts a scorer verdict into an outcome.
func NewVerdictOutcome(tc TestCase, response string, v Verdict) TestOutcome {
	status := StatusFailed
	if v.Passed {
		status = StatusPassed
	}
	return TestOutcome{
		TestID:   tc.ID,
		TestType: tc.Type,
		Status:   status,
		Passed:   v.Passed,
		Score:    v.Score,
		Response: response,
		Details:  v.Details,
	}
}

// NewErroredOutcome records a test case that could not be scored.
// It always contributes a score of zero.
func NewErroredOutcome(tc TestCase, response string, details map[string]any) TestOutcome {
	if details == nil {
		details = make(map[string]any)
	}
	return TestOutcome{
		TestID:   tc.ID,
		TestType: tc.Type,
		Status:   StatusErrored,
		Response: response,
		Details:  details,
	}
}

// SuiteResult is the read-only aggregate of one run of a suite against one
// backend. Its JSON form is the external result document.
type SuiteResult struct {
	BackendID    string        `json:"model_id"`
	SuiteName    string        `json:"eval_name"`
	TotalTests   int           `json:"total_tests"`
	PassedTests  int           `json:"passed_tests"`
	OverallScore float64       `json:"overall_score"`
	PassRate     string        `json:"pass_rate"`
	Outcomes     []TestOutcome `json:"test_results"`
}

// NewSuiteResult derives every aggregate field from outcomes.
func NewSuiteResult(backendID, suiteName string, outcomes []TestOutcome, scoring ScoringConfig) *SuiteResult {
	overall, passed := Aggregate(outcomes, scoring)
	if outcomes == nil {
		outcomes = []TestOutcome{}
	}
	return &SuiteResult{
		BackendID:    backendID,
		SuiteName:    suiteName,
		TotalTests:   len(outcomes),
		PassedTests:  passed,
		OverallScore: overall,
		PassRate:     FormatPassRate(passed, len(outcomes), overall),
		Outcomes:     outcomes,
	}
}

// Aggregate computes the weighted mean of outcome scores and the number of
// passing outcomes. Each outcome is weighted by its test type; the sum is
// normalized by the sum of the applied weights, never by the raw count.
// Outcomes excluded by the weight policy still count towards passed.
// A zero applied weight sum yields an overall score of zero.
func Aggregate(outcomes []TestOutcome, scoring ScoringConfig) (overall float64, passed int) {
	var weighted, weightSum float64
	for _, o := range outcomes {
		if o.Passed {
			passed++
		}
		w, ok := scoring.WeightFor(o.TestType)
		if !ok {
			continue
		}
		weighted += o.Score * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0, passed
	}
	return weighted / weightSum, passed
}

// FormatPassRate renders the human-readable pass rate used in reports.
func FormatPassRate(passed, total int, overall float64) string {
	return fmt.Sprintf("%d/%d (%.1f%%)", passed, total, overall*100)
}

// StatusCounts returns the number of outcomes in each terminal state.
func (r *SuiteResult) StatusCounts() map[OutcomeStatus]int {
	counts := map[OutcomeStatus]int{
		StatusPassed:  0,
		StatusFailed:  0,
		StatusErrored: 0,
	}
	for _, o := range r.Outcomes {
		counts[o.Status]++
	}
	return counts
}

// Failed returns the outcomes that did not pass, in suite order.
func (r *SuiteResult) Failed() []TestOutcome {
	var out []TestOutcome
	for _, o := range r.Outcomes {
		if !o.Passed {
			out = append(out, o)
		}
	}
	return out
}
