package domain

import (
	"errors"
	"fmt"
)

// Common domain errors that can occur while defining or scoring a suite.
var (
	// ErrEmptySuite indicates that a suite has no test cases.
	// An empty suite is a configuration error, not a zero/zero average.
	ErrEmptySuite = errors.New("eval suite has no test cases")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrScoreOutOfRange indicates that a scorer produced a score outside [0,1].
	ErrScoreOutOfRange = errors.New("score out of range")

	// ErrInvalidPattern indicates that a scoring pattern failed to compile.
	ErrInvalidPattern = errors.New("invalid pattern")
)

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// Unwrap lets callers match validation failures with ErrInvalidConfiguration.
func (e *ValidationError) Unwrap() error { return ErrInvalidConfiguration }

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}

// ScoringError reports a scorer that could not produce a valid verdict for a
// test case. The test case is marked errored; the suite keeps running.
type ScoringError struct {
	// TestID identifies the test case being scored.
	TestID string

	// Method is the scoring method that failed.
	Method ScoringMethod

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface for ScoringError.
func (e *ScoringError) Error() string {
	return fmt.Sprintf("scoring error: method=%s, test=%s, err=%v", e.Method, e.TestID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ScoringError) Unwrap() error { return e.Err }

// NewScoringError creates a new ScoringError with the given details.
func NewScoringError(testID string, method ScoringMethod, err error) *ScoringError {
	return &ScoringError{
		TestID: testID,
		Method: method,
		Err:    err,
	}
}
