package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-whoami/internal/application"
	"github.com/ahrav/go-whoami/internal/ports"
	"github.com/ahrav/go-whoami/internal/testutils"
)

func writeSuite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "identity.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testutils.IdentitySuiteYAML), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(append([]string{"run"}, args...))
	cmd.SetOut(&stderr)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestRun_MockCorrect(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "results", "mock.json")
	metricsFile := filepath.Join(dir, "metrics.prom")

	stdout, err := execute(t, "--suite", writeSuite(t), "--out", out, "--metrics-file", metricsFile)
	require.NoError(t, err)

	assert.Contains(t, stdout, "Model: mock-model-v1")
	assert.Contains(t, stdout, "Tests Passed: 5/5")
	assert.Contains(t, stdout, "Overall Score: 100.0%")
	assert.NotContains(t, stdout, "Failed tests:")

	result, err := application.ReadResult(out)
	require.NoError(t, err)
	assert.Equal(t, testutils.MockBackendID, result.BackendID)
	assert.Equal(t, "model_self_identification", result.SuiteName)
	assert.Equal(t, 5, result.TotalTests)
	assert.Equal(t, 5, result.PassedTests)

	metrics, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "whoami_test_outcomes_total")
	assert.Contains(t, string(metrics), "whoami_overall_score")
}

func TestRun_MetricsFileUnwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	out := filepath.Join(dir, "result.json")

	stdout, err := execute(t, "--suite", writeSuite(t), "--out", out,
		"--metrics-file", filepath.Join(blocker, "metrics.prom"))
	require.Error(t, err)

	var metricsErr *ports.MetricsError
	require.ErrorAs(t, err, &metricsErr)
	assert.Equal(t, "write_textfile", metricsErr.Operation)
	assert.Equal(t, serviceName, metricsErr.Metric)

	assert.Contains(t, stdout, "Tests Passed: 5/5", "the report is printed before metrics are written")
	_, statErr := os.Stat(out)
	assert.NoError(t, statErr, "the result document is written before metrics")
}

func TestRun_MockSusceptible(t *testing.T) {
	stdout, err := execute(t, "--suite", writeSuite(t), "--mode", "susceptible", "--concurrency", "3")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Tests Passed: 2/5")
	assert.Contains(t, stdout, "Overall Score: 25.0%")
	assert.Contains(t, stdout, "Failed tests:")
	assert.Contains(t, stdout, "adversarial_fake_switch (adversarial)")
	assert.Contains(t, stdout, "GPT-4")
}

func TestRun_ScriptedResponse(t *testing.T) {
	out := filepath.Join(t.TempDir(), "scripted.json")

	stdout, err := execute(t,
		"--suite", writeSuite(t),
		"--mode", "scripted",
		"--response", "I'm not sure what model I am. Maybe GPT-4?",
		"--out", out,
	)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Tests Passed: 0/5")

	result, err := application.ReadResult(out)
	require.NoError(t, err)
	for _, o := range result.Outcomes {
		assert.False(t, o.Passed, o.TestID)
		assert.Equal(t, "I'm not sure what model I am. Maybe GPT-4?", o.Response)
	}
}

func TestRun_ScriptFile(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "script.yaml")
	require.NoError(t, os.WriteFile(script, []byte("direct_basic: I am Mock Model v1.\n"), 0o600))
	out := filepath.Join(dir, "scripted.json")

	_, err := execute(t, "--suite", writeSuite(t), "--mode", "scripted", "--script", script, "--out", out)
	require.NoError(t, err)

	result, err := application.ReadResult(out)
	require.NoError(t, err)
	assert.Equal(t, 1, result.PassedTests)
	assert.True(t, result.Outcomes[0].Passed)
	assert.Equal(t, "I am Mock Model v1.", result.Outcomes[0].Response)
}

func TestRun_ScriptFileInvalid(t *testing.T) {
	script := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(script, []byte("- not\n- a map\n"), 0o600))

	_, err := execute(t, "--suite", writeSuite(t), "--mode", "scripted", "--script", script)
	var cfgErr *ports.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "script", cfgErr.ConfigKey)
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    func(suite string) []string
		wantErr error
		wantMsg string
	}{
		{
			name:    "missing suite flag",
			args:    func(string) []string { return nil },
			wantMsg: `required flag(s) "suite" not set`,
		},
		{
			name:    "unknown mock identity",
			args:    func(s string) []string { return []string{"--suite", s, "--model-id", "gpt-5"} },
			wantErr: ports.ErrUnknownBackend,
		},
		{
			name:    "unknown backend",
			args:    func(s string) []string { return []string{"--suite", s, "--backend", "nope"} },
			wantErr: ports.ErrUnknownBackend,
		},
		{
			name:    "invalid mock mode",
			args:    func(s string) []string { return []string{"--suite", s, "--mode", "chaotic"} },
			wantMsg: "mock backend configuration validation failed",
		},
		{
			name:    "missing suite file",
			args:    func(string) []string { return []string{"--suite", filepath.Join(t.TempDir(), "missing.yaml")} },
			wantMsg: "missing.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args(writeSuite(t))...)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestRun_HostedBackendWithoutKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	stdout, err := execute(t, "--suite", writeSuite(t), "--backend", testutils.GPT4BackendID)
	require.Error(t, err)

	var cfgErr *ports.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "backend", cfgErr.ConfigKey)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
	assert.Empty(t, stdout)
}

func TestRootCmd_HasRunCommand(t *testing.T) {
	cmd := newRootCmd(io.Discard, io.Discard)
	sub, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)
	assert.Equal(t, "run", sub.Name())
	for _, flag := range []string{"suite", "backend", "model-id", "mode", "out", "verbose", "concurrency", "max-attempts"} {
		assert.NotNil(t, sub.Flags().Lookup(flag), flag)
	}
}

func TestBackendForSpec(t *testing.T) {
	models := map[string]string{
		testutils.GPT4BackendID:   "openai/gpt-4",
		testutils.ClaudeBackendID: "anthropic/claude-3-opus-20240229",
	}

	assert.Equal(t, testutils.ClaudeBackendID, backendForSpec(models, "anthropic/claude-3-opus-20240229"))
	assert.Equal(t, testutils.GPT4BackendID, backendForSpec(models, "openai/gpt-4"))
	assert.Empty(t, backendForSpec(models, "google/gemini-2.0-flash"))
	assert.Empty(t, backendForSpec(nil, "openai/gpt-4"))
}
