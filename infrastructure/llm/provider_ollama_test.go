package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-evoprompt/internal/domain"
	"github.com/ahrav/go-evoprompt/internal/ports"
)

func newTestOllama(t *testing.T, handler http.HandlerFunc) *ollamaProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	core, err := newOllamaProvider(ClientConfig{Model: "llama3", BaseURL: server.URL + "/"})
	require.NoError(t, err)
	return core.(*ollamaProvider)
}

func TestOllamaProvider_DoRequest(t *testing.T) {
	var got ollamaGenerateRequest
	p := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llama3","response":"42","done":true,"prompt_eval_count":12,"eval_count":3}`))
	})

	g := domain.DefaultGenome()
	g.ResponseFormat = "json"
	gen, err := p.DoRequest(context.Background(), domain.NewGenerationRequest(g, "What is 15 + 27?"))
	require.NoError(t, err)

	assert.Equal(t, domain.Generation{Text: "42", Model: "llama3", TokensIn: 12, TokensOut: 3}, gen)

	assert.Equal(t, "llama3", got.Model)
	assert.Equal(t, "What is 15 + 27?", got.Prompt)
	assert.Equal(t, g.SystemPrompt, got.System)
	assert.Equal(t, "json", got.Format)
	assert.False(t, got.Stream)
	assert.Equal(t, 0.7, got.Options["temperature"])
	assert.Equal(t, 0.9, got.Options["top_p"])
	assert.Equal(t, 40.0, got.Options["top_k"])
	assert.Equal(t, 512.0, got.Options["num_predict"])
	assert.Equal(t, 1.1, got.Options["repeat_penalty"])
}

func TestOllamaProvider_BuildRequest(t *testing.T) {
	p, err := newOllamaProvider(ClientConfig{Model: "llama3"})
	require.NoError(t, err)
	op := p.(*ollamaProvider)

	t.Run("markdown becomes a system directive", func(t *testing.T) {
		req := op.buildRequest(domain.GenerationRequest{Prompt: "p", System: "sys", Format: "markdown"})
		assert.Empty(t, req.Format)
		assert.Equal(t, "sys\n\nFormat the response as Markdown.", req.System)
	})

	t.Run("zero values are left to the server", func(t *testing.T) {
		req := op.buildRequest(domain.GenerationRequest{Prompt: "p", Format: "text"})
		assert.Empty(t, req.Options)
		assert.Empty(t, req.System)
		assert.Equal(t, "llama3", req.Model)
	})

	t.Run("explicit model wins", func(t *testing.T) {
		req := op.buildRequest(domain.GenerationRequest{Model: "mistral", Prompt: "p"})
		assert.Equal(t, "mistral", req.Model)
	})
}

func TestOllamaProvider_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType ErrorType
		wantMsg  string
	}{
		{name: "model not found", status: 404, body: `{"error":"model 'llama3' not found"}`, wantType: ErrorTypeNotFound, wantMsg: "ollama pull llama3"},
		{name: "server error", status: 500, body: `{"error":"out of memory"}`, wantType: ErrorTypeServerError, wantMsg: "out of memory"},
		{name: "bad request", status: 400, body: `plain text`, wantType: ErrorTypeBadRequest, wantMsg: "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestOllama(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := p.DoRequest(context.Background(), testRequest("x"))
			var pe *ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.wantType, pe.Type)
			assert.Contains(t, pe.Message, tt.wantMsg)
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		p := newTestOllama(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{not json`))
		})
		_, err := p.DoRequest(context.Background(), testRequest("x"))
		assert.ErrorIs(t, err, ports.ErrInvalidResponse)
	})

	t.Run("unreachable server", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		core, err := newOllamaProvider(ClientConfig{Model: "m", BaseURL: url, Timeout: time.Second})
		require.NoError(t, err)
		_, err = core.DoRequest(context.Background(), testRequest("x"))
		var pe *ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, ErrorTypeNetwork, pe.Type)
		assert.True(t, pe.IsRetryable())
	})
}

func TestOllamaProvider_Ping(t *testing.T) {
	p := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3:latest"},{"name":"mistral:7b"}]}`))
	})

	require.NoError(t, p.Ping(context.Background()))
	models, err := p.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3:latest", "mistral:7b"}, models)
}

func TestOllamaProvider_ThroughClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"model not found"}`))
		}
	}))
	defer server.Close()

	c, err := NewClient("ollama", ClientConfig{
		Model:      "missing",
		BaseURL:    server.URL,
		Middleware: []Middleware{TimeoutMiddleware(time.Second), RetryMiddleware(DefaultRetryConfig())},
	})
	require.NoError(t, err)

	require.NoError(t, c.Ping(context.Background()))
	_, err = c.Generate(context.Background(), testRequest("x"))
	assert.ErrorIs(t, err, ports.ErrModelNotFound)
}

func TestNewOllamaProvider_InvalidURL(t *testing.T) {
	_, err := newOllamaProvider(ClientConfig{Model: "m", BaseURL: "ftp://host"})
	assert.Error(t, err)
}
