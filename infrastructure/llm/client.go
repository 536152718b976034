// Package llm adapts hosted model APIs into ports.Backend implementations
// with built-in support for rate limiting, circuit breaking, timeouts,
// metrics and tracing.
//
// The package abstracts multiple LLM providers (OpenAI, Anthropic, Google)
// behind the CoreLLM interface and adds cross-cutting concerns through a
// middleware chain. Retries are left to the caller.
//
// Basic usage:
//
//	client, err := llm.NewClient("openai", llm.ClientConfig{
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	    Model:  "gpt-4",
//	})
//	resp, err := client.Generate(ctx, conv)
//
// Usage with middleware:
//
//	client, err := llm.NewClient("anthropic", llm.ClientConfig{
//	    APIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	    Model:  "claude-3-opus-20240229",
//	    Middleware: []llm.Middleware{
//	        llm.TracingMiddleware("whoami"),
//	        llm.RateLimitMiddleware(20, 40),
//	        llm.CircuitBreakerMiddleware(5, 30*time.Second),
//	        llm.MetricsMiddleware(metricsCollector),
//	    },
//	})
package llm

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/ahrav/go-whoami/internal/domain"
	"github.com/ahrav/go-whoami/internal/ports"
)

// CoreLLM defines the minimal interface that LLM providers must implement.
// This interface abstracts the core functionality needed to make requests
// to different LLM services, allowing the middleware system to wrap
// any conforming implementation.
type CoreLLM interface {
	// DoRequest sends a conversation to the LLM provider and returns the
	// reply. Turns are sent verbatim and in order. The opts parameter allows
	// provider-specific configuration such as temperature or max tokens.
	// Returns the response text, input token count, output token count, and any error.
	DoRequest(
		ctx context.Context,
		conv domain.Conversation,
		opts map[string]any,
	) (
		response string,
		tokensIn, tokensOut int,
		err error,
	)

	// GetModel returns the currently configured model name.
	GetModel() string

	// SetModel updates the model to use for subsequent requests.
	SetModel(model string)
}

// ClientConfig holds all configuration options for creating an LLM client.
type ClientConfig struct {
	// APIKey authenticates requests to the LLM provider.
	APIKey string

	// Model specifies which LLM model to use for requests.
	// Each provider supports different model names.
	Model string

	// BaseURL overrides the default API endpoint for the provider.
	// Leave empty to use the provider's default endpoint.
	BaseURL string

	// Timeout sets the maximum duration for individual HTTP requests.
	// Zero value means no timeout.
	Timeout time.Duration

	// Options are sent with every request, e.g. temperature or max_tokens.
	Options map[string]any

	// Middleware allows custom middleware insertion.
	// These are applied in the order specified.
	Middleware []Middleware
}

// Middleware wraps a CoreLLM implementation to add cross-cutting functionality.
type Middleware func(CoreLLM) CoreLLM

var _ ports.Backend = (*Client)(nil)

// Client is a ports.Backend backed by a hosted model. It wraps a
// provider-specific CoreLLM with middleware and reports every failure as a
// classified *ports.BackendError.
type Client struct {
	provider string
	core     CoreLLM
	options  map[string]any
}

// NewClient creates a new LLM client with the specified provider and configuration.
// This function assembles the middleware chain and validates configuration
// before returning a ready-to-use client instance.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	factory, ok := getProviderFactory(providerType)
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerType)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	return newClientWithCore(providerType, core, config), nil
}

func newClientWithCore(providerType string, core CoreLLM, config ClientConfig) *Client {
	// Apply middleware in reverse order so the first middleware is the outermost.
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}

	return &Client{
		provider: providerType,
		core:     core,
		options:  maps.Clone(config.Options),
	}
}

// Name returns the provider type, e.g. "openai".
func (c *Client) Name() string { return c.provider }

// ModelID returns the currently configured model name from the underlying provider.
func (c *Client) ModelID() string { return c.core.GetModel() }

// Generate sends conv to the model and returns its reply.
// Metadata carries the provider, the model and token usage.
func (c *Client) Generate(ctx context.Context, conv domain.Conversation) (domain.Response, error) {
	if len(conv) == 0 {
		return domain.Response{}, ports.NewBackendError(c.provider, c.ModelID(), ports.KindBadRequest,
			fmt.Errorf("%w: empty conversation", ports.ErrInvalidResponse))
	}

	content, tokensIn, tokensOut, err := c.core.DoRequest(ctx, conv, c.options)
	if err != nil {
		return domain.Response{}, toBackendError(c.provider, c.ModelID(), err)
	}

	return domain.Response{
		Content: content,
		Metadata: map[string]any{
			"provider":   c.provider,
			"model":      c.ModelID(),
			"tokens_in":  tokensIn,
			"tokens_out": tokensOut,
		},
	}, nil
}

// ProviderFactory creates a CoreLLM implementation from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

var (
	factoriesMu       sync.RWMutex
	providerFactories = map[string]ProviderFactory{}
)

// RegisterProviderFactory allows registration of custom LLM provider factories.
// This enables extension of the client with additional providers
// without modifying the core library code.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	providerFactories[providerType] = factory
}

func getProviderFactory(providerType string) (ProviderFactory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := providerFactories[providerType]
	return f, ok
}
