package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, env map[string]string) *Registry {
	t.Helper()
	r, err := NewRegistry(RegistryConfig{
		Providers:       DefaultProviders,
		DefaultProvider: "anthropic",
		DefaultTimeout:  30 * time.Second,
		DefaultOptions:  map[string]any{"temperature": 0.0},
	})
	require.NoError(t, err)
	r.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	return r
}

func TestNewRegistry(t *testing.T) {
	_, err := NewRegistry(RegistryConfig{Providers: DefaultProviders})
	assert.EqualError(t, err, "default provider cannot be empty")

	_, err = NewRegistry(RegistryConfig{Providers: DefaultProviders, DefaultProvider: "nope"})
	assert.EqualError(t, err, `default provider "nope" not found in providers configuration`)

	r, err := NewRegistry(RegistryConfig{Providers: DefaultProviders, DefaultProvider: "openai"})
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestRegistry_GetClient(t *testing.T) {
	r := newTestRegistry(t, map[string]string{
		"OPENAI_API_KEY":    "sk-test",
		"ANTHROPIC_API_KEY": "ak-test",
	})

	tests := []struct {
		spec         string
		wantProvider string
		wantModel    string
		wantErr      string
	}{
		{spec: "openai/gpt-4", wantProvider: "openai", wantModel: "gpt-4"},
		{spec: "anthropic/claude-3-opus-20240229", wantProvider: "anthropic", wantModel: "claude-3-opus-20240229"},
		{spec: "anthropic/claude-3-opus", wantProvider: "anthropic", wantModel: "claude-3-opus"},
		{spec: "openai/gpt-4o-2024-08-06", wantProvider: "openai", wantModel: "gpt-4o-2024-08-06"},
		{spec: "openai", wantProvider: "openai", wantModel: OpenAIDefaultModel},
		{spec: "", wantErr: "provider specification cannot be empty"},
		{spec: "openai/", wantErr: "model is required"},
		{spec: "mistral/large", wantErr: `unknown provider "mistral"`},
		{spec: "openai/gpt-99", wantErr: `model "gpt-99" is not supported`},
		{spec: "openai/gpt-4-banana", wantErr: "is not supported"},
		{spec: "google/gemini-2.0-flash", wantErr: "GOOGLE_API_KEY environment variable not set"},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			client, err := r.GetClient(tt.spec)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantProvider, client.Name())
			assert.Equal(t, tt.wantModel, client.ModelID())
			assert.Equal(t, 0.0, client.options["temperature"])
		})
	}
}

func TestRegistry_CachesClients(t *testing.T) {
	r := newTestRegistry(t, map[string]string{"OPENAI_API_KEY": "sk-test"})

	first, err := r.GetClient("openai/gpt-4")
	require.NoError(t, err)
	second, err := r.GetClient("openai/gpt-4")
	require.NoError(t, err)
	assert.Same(t, first, second)

	bare, err := r.GetClient("openai")
	require.NoError(t, err)
	assert.NotSame(t, first, bare)
}

func TestRegistry_GetDefaultClient(t *testing.T) {
	r := newTestRegistry(t, map[string]string{"ANTHROPIC_API_KEY": "ak-test"})

	client, err := r.GetDefaultClient()
	require.NoError(t, err)
	assert.Equal(t, "anthropic", client.Name())
	assert.Equal(t, AnthropicDefaultModel, client.ModelID())
}

func TestRegistry_AvailableProviders(t *testing.T) {
	r := newTestRegistry(t, map[string]string{
		"OPENAI_API_KEY":    "sk-test",
		"GOOGLE_API_KEY":    "g-test",
		"ANTHROPIC_API_KEY": "",
	})
	assert.Equal(t, []string{"google", "openai"}, r.AvailableProviders())
}

func TestRegistry_AppliesMiddleware(t *testing.T) {
	var applied []string
	tag := func(name string) Middleware {
		return func(next CoreLLM) CoreLLM {
			applied = append(applied, name)
			return next
		}
	}

	providers := map[string]ProviderConfig{
		"openai": {
			Type:         "openai",
			EnvVar:       "OPENAI_API_KEY",
			DefaultModel: "gpt-4",
			Middleware:   []Middleware{tag("provider")},
		},
	}
	r, err := NewRegistry(RegistryConfig{
		Providers:         providers,
		DefaultProvider:   "openai",
		DefaultMiddleware: []Middleware{tag("default")},
	})
	require.NoError(t, err)
	r.lookupEnv = func(string) (string, bool) { return "sk-test", true }
	r.UpdateDefaultMiddleware(tag("late"))
	r.SetDefaultTimeout(time.Second)

	_, err = r.GetClient("openai/any-model-at-all")
	require.NoError(t, err)

	// Middleware is applied innermost first.
	assert.Equal(t, []string{"provider", "late", "default"}, applied)
}

func TestIsModelSupported(t *testing.T) {
	supported := []string{"claude-3-opus", "gpt-4o", "gpt-4"}

	tests := map[string]bool{
		"claude-3-opus":          true,
		"claude-3-opus-20240229": true,
		"claude-3-opus-latest":   true,
		"gpt-4o-2024-08-06":      true,
		"gpt-4-0613":             false,
		"gpt-4o-mini":            false,
		"claude-3":               false,
	}
	for model, want := range tests {
		assert.Equal(t, want, isModelSupported(model, supported), model)
	}
}
