package llm

import (
	"strings"
	"sync"

	"github.com/ahrav/go-whoami/internal/domain"
)

// DefaultMaxTokens bounds replies when the caller sets no max_tokens.
// Identity answers are short.
const DefaultMaxTokens = 1024

// BaseProvider provides common, thread-safe functionality for all LLM providers,
// primarily for managing the model name.
type BaseProvider struct {
	mu    sync.RWMutex
	model string
}

// GetModel returns the name of the model currently configured for the provider.
// It is safe for concurrent use.
func (b *BaseProvider) GetModel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// SetModel updates the model name for the provider.
// It is safe for concurrent use.
func (b *BaseProvider) SetModel(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = model
}

// RequestOptions represents a standardized set of configuration parameters for an LLM request.
// It consolidates common settings across different providers.
type RequestOptions struct {
	// MaxTokens specifies the maximum number of tokens to generate.
	MaxTokens int
	// Model is the identifier of the language model to use for the request.
	Model string
	// Temperature controls the randomness of the output.
	// A nil value indicates that the provider's default should be used.
	Temperature *float64
	// TopP is an alternative to temperature sampling, known as nucleus sampling.
	// A nil value indicates that the provider's default should be used.
	TopP *float64
	// System is an operator instruction placed ahead of any system turns
	// carried by the conversation itself.
	System string
	// Extra holds any provider-specific options that are not part of the standardized set.
	Extra map[string]any
}

// ParseRequestOptions extracts and validates LLM request parameters from a map.
// It populates a RequestOptions struct with standardized values,
// using provided defaults for any missing or invalid entries.
// Any unrecognized options are collected into the Extra field.
func ParseRequestOptions(opts map[string]any, defaultModel string) RequestOptions {
	options := RequestOptions{
		MaxTokens: option(opts, "max_tokens", DefaultMaxTokens, func(n int) bool { return n > 0 }),
		Model:     option(opts, "model", defaultModel, func(s string) bool { return s != "" }),
		System:    option(opts, "system", "", nil),
		Extra:     make(map[string]any),
	}

	if temp := option(opts, "temperature", -1.0, within(MinTemperature, MaxTemperature)); temp != -1 {
		options.Temperature = &temp
	}

	if topP := option(opts, "top_p", -1.0, within(MinTopP, MaxTopP)); topP != -1 {
		options.TopP = &topP
	}

	for k, v := range opts {
		switch k {
		case "max_tokens", "model", "system", "temperature", "top_p":
		default:
			options.Extra[k] = v
		}
	}

	return options
}

// TokenCounter provides a utility for estimating token counts from text.
// This is useful when an exact tokenizer is not available for a given model.
type TokenCounter struct {
	// CharactersPerToken represents the average number of characters per token.
	CharactersPerToken float64
}

// NewTokenCounter creates a new TokenCounter with a default character-per-token ratio.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{
		CharactersPerToken: 4.0, // A common approximation for English text.
	}
}

// EstimateTokens calculates an estimated token count for a given string of text.
func (tc *TokenCounter) EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return int(float64(len(text)) / tc.CharactersPerToken)
}

// EstimateConversation estimates the token count of every turn in conv.
func (tc *TokenCounter) EstimateConversation(conv domain.Conversation) int {
	total := 0
	for _, m := range conv {
		total += tc.EstimateTokens(m.Content)
	}
	return total
}

// GetTokenCount returns the actual token count if it is available and positive.
// Otherwise, it falls back to estimating the count based on the provided text.
func (tc *TokenCounter) GetTokenCount(actualCount int, text string) int {
	if actualCount > 0 {
		return actualCount
	}
	return tc.EstimateTokens(text)
}

// splitSystem separates the leading system turns of conv, which providers
// with a dedicated system parameter receive out of band, from the rest of
// the conversation. operator is prepended when non-empty.
func splitSystem(operator string, conv domain.Conversation) (system string, rest domain.Conversation) {
	var parts []string
	if operator != "" {
		parts = append(parts, operator)
	}
	i := 0
	for i < len(conv) && conv[i].Role == domain.RoleSystem {
		parts = append(parts, conv[i].Content)
		i++
	}
	return strings.Join(parts, "\n\n"), conv[i:]
}

// inlineSystemText renders a mid-conversation system turn as user-visible
// text for providers that only accept user and assistant roles.
func inlineSystemText(content string) string {
	return "System: " + content
}
