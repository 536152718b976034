package application

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ahrav/go-whoami/internal/domain"
)

// MarshalResult renders result as the indented JSON result document.
// The output is deterministic: map keys are sorted and outcomes keep suite
// order, so equal results always produce byte-identical documents.
func MarshalResult(result *domain.SuiteResult) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("result cannot be nil")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(result); err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteResult writes the result document to path, creating parent
// directories as needed.
func WriteResult(path string, result *domain.SuiteResult) error {
	data, err := MarshalResult(result)
	if err != nil {
		return err
	}

	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return fmt.Errorf("failed to create result directory: %w", err)
	}
	if err := os.WriteFile(cleanPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}

// ReadResult reads a result document written by WriteResult.
func ReadResult(path string) (*domain.SuiteResult, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read result: %w", err)
	}

	var result domain.SuiteResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &result, nil
}
