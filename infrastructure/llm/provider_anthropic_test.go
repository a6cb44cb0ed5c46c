package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-evoprompt/internal/domain"
	"github.com/ahrav/go-evoprompt/internal/ports"
)

type anthropicWireRequest struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	TopK        int     `json:"top_k"`
	System      []struct {
		Text string `json:"text"`
	} `json:"system"`
	Messages []struct {
		Role string `json:"role"`
	} `json:"messages"`
}

func newAnthropicTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewClient("anthropic", ClientConfig{APIKey: "test-key", Model: "claude-test", BaseURL: server.URL})
	require.NoError(t, err)
	return c
}

func TestAnthropicProvider_RoundTrip(t *testing.T) {
	var got anthropicWireRequest
	c := newAnthropicTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "4"}, {"type": "text", "text": "2"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 14, "output_tokens": 2}
		}`))
	})

	g := domain.DefaultGenome()
	g.Temperature = 1.6
	g.ResponseFormat = "markdown"
	gen, err := c.Generate(context.Background(), domain.NewGenerationRequest(g, "What is 15 + 27?"))
	require.NoError(t, err)
	assert.Equal(t, domain.Generation{Text: "42", Model: "claude-test", TokensIn: 14, TokensOut: 2}, gen)

	assert.Equal(t, "claude-test", got.Model)
	assert.Equal(t, 512, got.MaxTokens)
	assert.InDelta(t, 1.0, got.Temperature, 1e-9)
	assert.InDelta(t, 0.9, got.TopP, 1e-9)
	assert.Equal(t, 40, got.TopK)
	require.Len(t, got.System, 1)
	assert.Equal(t, g.SystemPrompt+"\n\nFormat the response as Markdown.", got.System[0].Text)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
}

func TestAnthropicProvider_DefaultMaxTokens(t *testing.T) {
	var got anthropicWireRequest
	c := newAnthropicTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"m","type":"message","role":"assistant","model":"claude-test","content":[{"type":"text","text":"ok"}],"usage":{"input_tokens":1,"output_tokens":1}}`))
	})

	_, err := c.Generate(context.Background(), domain.GenerationRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, anthropicDefaultMaxTokens, got.MaxTokens)
	assert.Empty(t, got.System)
}

func TestAnthropicProvider_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantType ErrorType
		want     error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, wantType: ErrorTypeRateLimit, want: ports.ErrRateLimited},
		{name: "bad key", status: http.StatusUnauthorized, wantType: ErrorTypeAuthentication},
		{name: "overloaded", status: 529, wantType: ErrorTypeServerError, want: ports.ErrServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newAnthropicTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"nope"}}`))
			})

			_, err := c.Generate(context.Background(), testRequest("x"))
			var pe *ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.wantType, pe.Type)
			assert.Equal(t, tt.status, pe.StatusCode)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}

	t.Run("empty content", func(t *testing.T) {
		c := newAnthropicTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"m","type":"message","role":"assistant","model":"claude-test","content":[],"usage":{"input_tokens":1,"output_tokens":0}}`))
		})
		_, err := c.Generate(context.Background(), testRequest("x"))
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})
}

func TestNewAnthropicProvider_Validation(t *testing.T) {
	_, err := newAnthropicProvider(ClientConfig{Model: "m"})
	assert.ErrorIs(t, err, ErrEmptyAPIKey)

	_, err = newAnthropicProvider(ClientConfig{APIKey: "k", BaseURL: "ftp://x"})
	assert.Error(t, err)

	core, err := newAnthropicProvider(ClientConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, AnthropicDefaultModel, core.GetModel())
}
