// Registry resolves "provider/model" specs into ready-to-use clients.
//
// Usage:
//
//	registry, err := llm.NewRegistry(llm.RegistryConfig{
//	    DefaultProvider: "anthropic",
//	    Providers:       llm.DefaultProviders,
//	    DefaultOptions:  map[string]any{"temperature": 0.0},
//	})
//	client, err := registry.GetClient("anthropic/claude-3-opus-20240229")
//	client, err := registry.GetClient("openai") // provider default model
package llm

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// Registry builds and caches one Client per provider/model pair. API keys
// are read from each provider's environment variable on first use.
type Registry struct {
	// providers maps provider names to their configuration.
	providers map[string]ProviderConfig
	// clients caches clients by "provider/model".
	clients map[string]*Client
	// defaultProvider is used by GetDefaultClient.
	defaultProvider string
	// defaultMiddleware is applied to every client before provider middleware.
	defaultMiddleware []Middleware
	// defaultTimeout sets the HTTP timeout of new clients.
	defaultTimeout time.Duration
	// defaultOptions are request options sent by every client.
	defaultOptions map[string]any
	// lookupEnv reads API keys. Tests replace it.
	lookupEnv func(string) (string, bool)
	mu        sync.RWMutex
}

// ProviderConfig holds provider-specific configuration.
type ProviderConfig struct {
	// Type selects the provider factory (openai, anthropic, google).
	Type string
	// EnvVar names the environment variable holding the API key.
	EnvVar string
	// DefaultModel is used when a spec names only the provider.
	DefaultModel string
	// SupportedModels lists accepted model names. Dated snapshots such as
	// "claude-3-opus-20240229" match their base name. Empty disables the
	// check.
	SupportedModels []string
	// BaseURL overrides the provider endpoint.
	BaseURL string
	// Middleware is applied after the registry defaults.
	Middleware []Middleware
}

// RegistryConfig holds configuration for the provider registry.
type RegistryConfig struct {
	// Providers defines the available providers and their configurations.
	Providers map[string]ProviderConfig
	// DefaultProvider is used when no provider is specified.
	DefaultProvider string
	// DefaultTimeout sets the request timeout for all providers.
	DefaultTimeout time.Duration
	// DefaultMiddleware is applied to all providers.
	DefaultMiddleware []Middleware
	// DefaultOptions are request options sent with every request,
	// e.g. temperature or max_tokens.
	DefaultOptions map[string]any
}

// DefaultProviders provides standard provider configurations.
var DefaultProviders = map[string]ProviderConfig{
	"openai": {
		Type:         "openai",
		EnvVar:       "OPENAI_API_KEY",
		DefaultModel: OpenAIDefaultModel,
		SupportedModels: []string{
			"gpt-4.1", "gpt-4.1-mini", "gpt-4.1-nano",
			"gpt-4o", "gpt-4o-mini",
			"gpt-4", "gpt-4-turbo",
			"gpt-3.5-turbo",
			"o4-mini", "o3", "o3-mini", "o1", "o1-mini",
		},
	},
	"anthropic": {
		Type:         "anthropic",
		EnvVar:       "ANTHROPIC_API_KEY",
		DefaultModel: AnthropicDefaultModel,
		SupportedModels: []string{
			"claude-opus-4-1", "claude-opus-4", "claude-sonnet-4",
			"claude-3-7-sonnet",
			"claude-3-5-sonnet", "claude-3-5-haiku",
			"claude-3-opus", "claude-3-sonnet", "claude-3-haiku",
		},
	},
	"google": {
		Type:         "google",
		EnvVar:       "GOOGLE_API_KEY",
		DefaultModel: GoogleDefaultModel,
		SupportedModels: []string{
			"gemini-2.5-pro", "gemini-2.5-flash", "gemini-2.5-flash-lite",
			"gemini-2.0-flash", "gemini-2.0-flash-lite",
			"gemini-1.5-pro", "gemini-1.5-flash",
		},
	},
}

// NewRegistry creates a provider registry.
func NewRegistry(config RegistryConfig) (*Registry, error) {
	if config.DefaultProvider == "" {
		return nil, fmt.Errorf("default provider cannot be empty")
	}
	if _, exists := config.Providers[config.DefaultProvider]; !exists {
		return nil, fmt.Errorf("default provider %q not found in providers configuration", config.DefaultProvider)
	}

	return &Registry{
		providers:         config.Providers,
		clients:           make(map[string]*Client),
		defaultProvider:   config.DefaultProvider,
		defaultMiddleware: slices.Clone(config.DefaultMiddleware),
		defaultTimeout:    config.DefaultTimeout,
		defaultOptions:    maps.Clone(config.DefaultOptions),
		lookupEnv:         os.LookupEnv,
	}, nil
}

// GetDefaultClient returns a client for the default provider and its
// default model.
func (r *Registry) GetDefaultClient() (*Client, error) {
	return r.GetClient(r.defaultProvider)
}

// GetClient returns the client for spec, which is either "provider" or
// "provider/model". Clients are created on first use and cached.
func (r *Registry) GetClient(spec string) (*Client, error) {
	if spec == "" {
		return nil, fmt.Errorf("provider specification cannot be empty; use GetDefaultClient() for default provider")
	}

	provider, model := r.parseSpec(spec)
	if model == "" {
		return nil, fmt.Errorf("model is required in %q", spec)
	}
	key := provider + "/" + model

	r.mu.RLock()
	client, exists := r.clients[key]
	r.mu.RUnlock()
	if exists {
		return client, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if client, exists := r.clients[key]; exists {
		return client, nil
	}

	client, err := r.createClient(provider, model)
	if err != nil {
		return nil, err
	}
	r.clients[key] = client
	return client, nil
}

// AvailableProviders returns the sorted names of providers whose API key is
// set.
func (r *Registry) AvailableProviders() []string {
	var names []string
	for name, cfg := range r.providers {
		if key, ok := r.lookupEnv(cfg.EnvVar); ok && key != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// parseSpec splits "provider/model". A bare provider takes its default
// model.
func (r *Registry) parseSpec(spec string) (provider, model string) {
	provider, model, found := strings.Cut(spec, "/")
	if !found {
		if cfg, ok := r.providers[provider]; ok {
			model = cfg.DefaultModel
		}
	}
	return provider, model
}

// createClient builds a client with the registry defaults merged with the
// provider's configuration. The caller holds r.mu.
func (r *Registry) createClient(provider, model string) (*Client, error) {
	providerConfig, exists := r.providers[provider]
	if !exists {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}

	if len(providerConfig.SupportedModels) > 0 && !isModelSupported(model, providerConfig.SupportedModels) {
		return nil, fmt.Errorf("model %q is not supported by provider %q. Supported models: %v",
			model, provider, providerConfig.SupportedModels)
	}

	apiKey, _ := r.lookupEnv(providerConfig.EnvVar)
	if apiKey == "" {
		return nil, fmt.Errorf("%s environment variable not set for provider %q", providerConfig.EnvVar, provider)
	}

	middleware := slices.Clone(r.defaultMiddleware)
	middleware = append(middleware, providerConfig.Middleware...)

	return NewClient(providerConfig.Type, ClientConfig{
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    providerConfig.BaseURL,
		Timeout:    r.defaultTimeout,
		Options:    r.defaultOptions,
		Middleware: middleware,
	})
}

// UpdateDefaultMiddleware appends middleware applied to clients created
// after the call.
func (r *Registry) UpdateDefaultMiddleware(middleware ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultMiddleware = append(r.defaultMiddleware, middleware...)
}

// SetDefaultTimeout sets the timeout for clients created after the call.
func (r *Registry) SetDefaultTimeout(timeout time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultTimeout = timeout
}

// isModelSupported reports whether model is listed, either exactly or as a
// dated snapshot of a listed name.
func isModelSupported(model string, supportedModels []string) bool {
	for _, supported := range supportedModels {
		if model == supported {
			return true
		}
		if rest, ok := strings.CutPrefix(model, supported+"-"); ok && isSnapshotSuffix(rest) {
			return true
		}
	}
	return false
}

// isSnapshotSuffix accepts "20240229", "latest" and "2024-08-06".
func isSnapshotSuffix(s string) bool {
	if s == "latest" {
		return true
	}
	digits := strings.ReplaceAll(s, "-", "")
	if len(digits) != 8 {
		return false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
