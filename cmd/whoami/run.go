package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-whoami/infrastructure/llm"
	"github.com/ahrav/go-whoami/infrastructure/middleware"
	"github.com/ahrav/go-whoami/infrastructure/mock"
	"github.com/ahrav/go-whoami/internal/application"
	"github.com/ahrav/go-whoami/internal/ports"
)

const (
	mockBackend      = "mock"
	defaultMockModel = "mock-model-v1"
	serviceName      = "whoami"
)

// runOptions holds the parsed command line.
type runOptions struct {
	suitePath   string
	backend     string
	modelID     string
	mode        string
	scriptPath  string
	response    string
	outPath     string
	metricsPath string
	verbose     bool
	debug       bool
	concurrency int
	maxAttempts int
	timeout     time.Duration
	rps         float64
}

// newRootCmd builds the whoami command tree. Output goes to stdout and logs
// to stderr so the commands can be driven from tests.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:          "whoami",
		Short:        "whoami checks whether a model correctly identifies itself",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(stdout, stderr))
	return root
}

func newRunCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate one backend against an identity suite",
		Long: `run sends every test case of an identity suite to a backend, scores the
replies for the expected identity and competing model names, and reports a
weighted overall score.

The backend is either "mock", a backend id declared in the suite's
model_configs, or a provider/model spec such as "anthropic/claude-3-opus".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := slog.LevelInfo
			if opts.debug {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
			return run(cmd.Context(), opts, stdout, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.suitePath, "suite", "s", "", "path to the suite document (YAML or JSON)")
	flags.StringVarP(&opts.backend, "backend", "b", mockBackend, `"mock", a suite backend id, or provider/model`)
	flags.StringVar(&opts.modelID, "model-id", "", "suite backend id to evaluate (defaults to "+defaultMockModel+" for the mock backend)")
	flags.StringVar(&opts.mode, "mode", string(mock.ModeCorrect), "mock response mode: correct, susceptible or scripted")
	flags.StringVar(&opts.scriptPath, "script", "", "YAML file mapping test case ids to scripted mock replies")
	flags.StringVar(&opts.response, "response", "", "scripted mock reply for test cases without a script entry")
	flags.StringVarP(&opts.outPath, "out", "o", "", "write the JSON result document to this path")
	flags.StringVar(&opts.metricsPath, "metrics-file", "", "write Prometheus metrics in text format to this path")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log every test case as it completes")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flags.IntVarP(&opts.concurrency, "concurrency", "c", application.DefaultConcurrency, "maximum test cases in flight")
	flags.IntVar(&opts.maxAttempts, "max-attempts", application.DefaultMaxAttempts, "Generate calls per test case, including the first")
	flags.DurationVar(&opts.timeout, "timeout", 60*time.Second, "per-request timeout for hosted backends")
	flags.Float64Var(&opts.rps, "rps", 5, "request rate limit for hosted backends")
	_ = cmd.MarkFlagRequired("suite")

	return cmd
}

// run loads the suite, resolves the backend, evaluates and reports.
// A canceled run still reports and writes the partial result.
func run(ctx context.Context, opts *runOptions, stdout io.Writer, logger *slog.Logger) error {
	loader, err := application.NewSuiteLoader()
	if err != nil {
		return err
	}
	loaded, err := loader.LoadFromFile(ctx, opts.suitePath)
	if err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	metrics := middleware.NewPrometheusMetrics(promReg)

	backend, err := resolveBackend(loaded, opts, metrics)
	if err != nil {
		return err
	}

	evaluator, err := application.NewEvaluator(loaded.Suite,
		application.WithConcurrency(opts.concurrency),
		application.WithMaxAttempts(opts.maxAttempts),
		application.WithLogger(logger),
		application.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	result, runErr := evaluator.Run(ctx, backend, opts.verbose)
	if result == nil {
		return runErr
	}

	if err := printReport(stdout, result); err != nil {
		return err
	}
	if opts.outPath != "" {
		if err := application.WriteResult(opts.outPath, result); err != nil {
			return err
		}
		logger.Info("result written", "path", opts.outPath)
	}
	if opts.metricsPath != "" {
		if err := writeMetrics(opts.metricsPath, promReg); err != nil {
			return err
		}
	}
	return runErr
}

// resolveBackend turns the --backend flag into a backend bound to a suite
// backend id.
func resolveBackend(loaded *application.LoadedSuite, opts *runOptions, metrics *middleware.PrometheusMetrics) (ports.Backend, error) {
	if opts.backend == mockBackend {
		return newMockBackend(loaded, opts)
	}

	spec, suiteID := opts.backend, opts.modelID
	if bound, ok := loaded.Models[opts.backend]; ok {
		spec, suiteID = bound, opts.backend
	} else if !strings.Contains(opts.backend, "/") {
		return nil, ports.NewConfigError("backend",
			fmt.Errorf("%w: %q is neither %q, a suite backend with a model binding, nor provider/model",
				ports.ErrUnknownBackend, opts.backend, mockBackend))
	}
	if suiteID == "" {
		suiteID = backendForSpec(loaded.Models, spec)
	}

	registry, err := newRegistry(opts, metrics)
	if err != nil {
		return nil, err
	}
	client, err := registry.GetClient(spec)
	if err != nil {
		return nil, ports.NewConfigError("backend", err)
	}
	if suiteID == "" || suiteID == client.ModelID() {
		return client, nil
	}
	return application.Alias(client, suiteID), nil
}

// backendForSpec returns the suite backend id bound to spec, or "" when no
// backend declares it.
func backendForSpec(models map[string]string, spec string) string {
	for id, bound := range models {
		if bound == spec {
			return id
		}
	}
	return ""
}

func newMockBackend(loaded *application.LoadedSuite, opts *runOptions) (ports.Backend, error) {
	id := opts.modelID
	if id == "" {
		id = defaultMockModel
	}

	script, err := loadScript(opts.scriptPath)
	if err != nil {
		return nil, err
	}
	if opts.response != "" {
		if script == nil {
			script = make(map[string]string)
		}
		for _, tc := range loaded.Suite.TestCases {
			if _, ok := script[tc.ID]; !ok {
				script[tc.ID] = opts.response
			}
		}
	}

	return mock.FromSuite(loaded.Suite, id, mock.Mode(opts.mode), script)
}

// loadScript reads a YAML mapping of test case ids to replies.
func loadScript(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	var script map[string]string
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, ports.NewConfigError("script", fmt.Errorf("failed to parse script: %w", err))
	}
	return script, nil
}

// newRegistry builds a provider registry whose clients share the run's
// metrics. Each provider gets its own circuit breaker.
func newRegistry(opts *runOptions, metrics *middleware.PrometheusMetrics) (*llm.Registry, error) {
	providers := maps.Clone(llm.DefaultProviders)
	for name, cfg := range providers {
		cfg.Middleware = append(slices.Clone(cfg.Middleware),
			llm.CircuitBreakerMiddlewareWithMetrics(5, 30*time.Second, metrics.CircuitBreakerMetrics(name)))
		providers[name] = cfg
	}

	return llm.NewRegistry(llm.RegistryConfig{
		Providers:       providers,
		DefaultProvider: "openai",
		DefaultTimeout:  opts.timeout,
		DefaultMiddleware: []llm.Middleware{
			llm.TracingMiddleware(serviceName),
			llm.MetricsMiddleware(metrics),
			llm.RateLimitMiddleware(rate.Limit(opts.rps), max(int(opts.rps), 1)),
			llm.TimeoutMiddleware(opts.timeout),
		},
		DefaultOptions: map[string]any{"temperature": 0.0},
	})
}

// writeMetrics dumps every gathered metric in the text exposition format.
// Failures are reported as *ports.MetricsError.
func writeMetrics(path string, gatherer prometheus.Gatherer) error {
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return ports.NewMetricsError(serviceName, "write_textfile", fmt.Errorf("failed to create metrics directory: %w", err))
	}
	if err := prometheus.WriteToTextfile(cleanPath, gatherer); err != nil {
		return ports.NewMetricsError(serviceName, "write_textfile", err)
	}
	return nil
}

