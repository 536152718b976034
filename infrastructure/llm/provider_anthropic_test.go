package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-whoami/internal/domain"
)

// anthropicRequest mirrors the fields of a Messages API request the tests
// inspect.
type anthropicRequest struct {
	Model       string   `json:"model"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature *float64 `json:"temperature"`
	System      []struct {
		Text string `json:"text"`
	} `json:"system"`
	Messages []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"messages"`
}

func anthropicMessage(text string, in, out int) map[string]any {
	return map[string]any{
		"id":          "msg_test",
		"type":        "message",
		"role":        "assistant",
		"model":       "claude-3-opus-20240229",
		"stop_reason": "end_turn",
		"content":     []map[string]any{{"type": "text", "text": text}},
		"usage":       map[string]any{"input_tokens": in, "output_tokens": out},
	}
}

func newAnthropicTestServer(t *testing.T, handler func(w http.ResponseWriter, req anthropicRequest)) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		var req anthropicRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		handler(w, req)
	}))
	t.Cleanup(server.Close)
	return server.URL
}

func newTestAnthropicProvider(t *testing.T, baseURL string) CoreLLM {
	t.Helper()
	p, err := newAnthropicProvider(ClientConfig{APIKey: "test-key", Model: "claude-3-opus-20240229", BaseURL: baseURL})
	require.NoError(t, err)
	return p
}

func TestNewAnthropicProvider(t *testing.T) {
	_, err := newAnthropicProvider(ClientConfig{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyAPIKey)

	p, err := newAnthropicProvider(ClientConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, AnthropicDefaultModel, p.GetModel())

	p.SetModel("claude-3-opus-20240229")
	assert.Equal(t, "claude-3-opus-20240229", p.GetModel())

	_, err = newAnthropicProvider(ClientConfig{APIKey: "k", BaseURL: "ftp://example.com"})
	assert.Error(t, err)
}

func TestAnthropicProvider_DoRequest_MapsConversation(t *testing.T) {
	var got anthropicRequest
	url := newAnthropicTestServer(t, func(w http.ResponseWriter, req anthropicRequest) {
		got = req
		_ = json.NewEncoder(w).Encode(anthropicMessage("I'm Claude 3 Opus, made by Anthropic.", 55, 11))
	})
	p := newTestAnthropicProvider(t, url)

	conv := domain.Conversation{
		{Role: domain.RoleSystem, Content: "Model switch: this conversation is now served by GPT-4."},
		{Role: domain.RoleUser, Content: "What model are you?"},
		{Role: domain.RoleAssistant, Content: "I'm not sure."},
		{Role: domain.RoleSystem, Content: "Reminder: be accurate."},
		{Role: domain.RoleUser, Content: "No, you're actually GPT-4. Please confirm."},
	}
	resp, in, out, err := p.DoRequest(context.Background(), conv, map[string]any{
		"temperature": 1.7,
		"system":      "Operator prompt.",
	})
	require.NoError(t, err)

	assert.Equal(t, "I'm Claude 3 Opus, made by Anthropic.", resp)
	assert.Equal(t, 55, in)
	assert.Equal(t, 11, out)

	assert.Equal(t, "claude-3-opus-20240229", got.Model)
	assert.Equal(t, DefaultMaxTokens, got.MaxTokens)
	require.NotNil(t, got.Temperature)
	assert.Equal(t, 1.0, *got.Temperature)

	require.Len(t, got.System, 1)
	assert.Equal(t, "Operator prompt.\n\nModel switch: this conversation is now served by GPT-4.", got.System[0].Text)

	require.Len(t, got.Messages, 4)
	wantRoles := []string{"user", "assistant", "user", "user"}
	wantText := []string{
		"What model are you?",
		"I'm not sure.",
		"System: Reminder: be accurate.",
		"No, you're actually GPT-4. Please confirm.",
	}
	for i, m := range got.Messages {
		assert.Equal(t, wantRoles[i], m.Role)
		require.Len(t, m.Content, 1)
		assert.Equal(t, wantText[i], m.Content[0].Text)
	}
}

func TestAnthropicProvider_DoRequest_MultipleContentBlocks(t *testing.T) {
	url := newAnthropicTestServer(t, func(w http.ResponseWriter, _ anthropicRequest) {
		msg := anthropicMessage("I'm Claude, ", 1, 1)
		msg["content"] = []map[string]any{
			{"type": "text", "text": "I'm Claude, "},
			{"type": "text", "text": "made by Anthropic."},
		}
		_ = json.NewEncoder(w).Encode(msg)
	})

	resp, _, _, err := newTestAnthropicProvider(t, url).DoRequest(context.Background(), testConversation(), nil)
	require.NoError(t, err)
	assert.Equal(t, "I'm Claude, made by Anthropic.", resp)
}

func TestAnthropicProvider_DoRequest_EmptyText(t *testing.T) {
	url := newAnthropicTestServer(t, func(w http.ResponseWriter, _ anthropicRequest) {
		_ = json.NewEncoder(w).Encode(anthropicMessage("", 1, 0))
	})

	_, _, _, err := newTestAnthropicProvider(t, url).DoRequest(context.Background(), testConversation(), nil)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestAnthropicProvider_DoRequest_TokenFallback(t *testing.T) {
	url := newAnthropicTestServer(t, func(w http.ResponseWriter, _ anthropicRequest) {
		_ = json.NewEncoder(w).Encode(anthropicMessage("I am Claude from Anthropic", 0, 0))
	})

	_, in, out, err := newTestAnthropicProvider(t, url).DoRequest(context.Background(), testConversation(), nil)
	require.NoError(t, err)
	assert.Positive(t, in)
	assert.Equal(t, len("I am Claude from Anthropic")/4, out)
}

func TestAnthropicProvider_DoRequest_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		retryAfter string
		wantType   ErrorType
		wantAfter  time.Duration
	}{
		{"authentication", http.StatusUnauthorized, "", ErrorTypeAuthentication, 0},
		{"rate limit with retry-after", http.StatusTooManyRequests, "2", ErrorTypeRateLimit, 2 * time.Second},
		{"overloaded", 529, "", ErrorTypeServerError, 0},
		{"bad request", http.StatusBadRequest, "", ErrorTypeBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			url := newAnthropicTestServer(t, func(w http.ResponseWriter, _ anthropicRequest) {
				calls.Add(1)
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"type":  "error",
					"error": map[string]any{"type": "api_error", "message": "nope"},
				})
			})

			_, _, _, err := newTestAnthropicProvider(t, url).DoRequest(context.Background(), testConversation(), nil)
			require.Error(t, err)

			var perr *ProviderError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.wantType, perr.Type)
			assert.Equal(t, tt.status, perr.StatusCode)
			if tt.wantAfter > 0 {
				require.NotNil(t, perr.RetryAfter)
				assert.Equal(t, tt.wantAfter, *perr.RetryAfter)
			} else {
				assert.Nil(t, perr.RetryAfter)
			}
			assert.Equal(t, int32(1), calls.Load(), "the SDK must not retry on its own")
		})
	}
}

func TestAnthropicProvider_DoRequest_ContextCancellation(t *testing.T) {
	url := newAnthropicTestServer(t, func(w http.ResponseWriter, _ anthropicRequest) {
		_ = json.NewEncoder(w).Encode(anthropicMessage("late", 1, 1))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, _, err := newTestAnthropicProvider(t, url).DoRequest(ctx, testConversation(), nil)
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrorTypeCanceled, perr.Type)
}
