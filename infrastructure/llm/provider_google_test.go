package llm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/ahrav/go-evoprompt/internal/domain"
)

func TestBuildGenerationConfig(t *testing.T) {
	t.Run("genome parameters", func(t *testing.T) {
		g := domain.DefaultGenome()
		g.TopK = 80
		g.ResponseFormat = "json"
		cfg := buildGenerationConfig(domain.NewGenerationRequest(g, "hi"))

		require.NotNil(t, cfg.SystemInstruction)
		require.Len(t, cfg.SystemInstruction.Parts, 1)
		assert.Equal(t, g.SystemPrompt, cfg.SystemInstruction.Parts[0].Text)
		require.NotNil(t, cfg.Temperature)
		assert.InDelta(t, 0.7, *cfg.Temperature, 1e-6)
		require.NotNil(t, cfg.TopP)
		assert.InDelta(t, 0.9, *cfg.TopP, 1e-6)
		require.NotNil(t, cfg.TopK)
		assert.InDelta(t, float32(googleMaxTopK), *cfg.TopK, 1e-6)
		assert.Equal(t, int32(512), cfg.MaxOutputTokens)
		require.NotNil(t, cfg.FrequencyPenalty)
		assert.InDelta(t, 0.1, *cfg.FrequencyPenalty, 1e-6)
		assert.Equal(t, "application/json", cfg.ResponseMIMEType)
	})

	t.Run("markdown directive joins the system prompt", func(t *testing.T) {
		cfg := buildGenerationConfig(domain.GenerationRequest{Prompt: "p", System: "sys", Format: "markdown"})
		require.NotNil(t, cfg.SystemInstruction)
		assert.Equal(t, "sys\n\nFormat the response as Markdown.", cfg.SystemInstruction.Parts[0].Text)
		assert.Empty(t, cfg.ResponseMIMEType)
	})

	t.Run("empty request", func(t *testing.T) {
		cfg := buildGenerationConfig(domain.GenerationRequest{Prompt: "p"})
		assert.Nil(t, cfg.SystemInstruction)
		assert.Nil(t, cfg.Temperature)
		assert.Nil(t, cfg.TopK)
		assert.Zero(t, cfg.MaxOutputTokens)
	})
}

func TestGoogleProvider_HandleError(t *testing.T) {
	p := &googleProvider{errorClassifier: &ErrorClassifier{Provider: "google"}}

	tests := []struct {
		name       string
		err        error
		wantType   ErrorType
		wantStatus int
	}{
		{
			name:       "genai rate limit",
			err:        genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota"},
			wantType:   ErrorTypeRateLimit,
			wantStatus: 429,
		},
		{
			name:       "genai safety block",
			err:        fmt.Errorf("call: %w", genai.APIError{Code: 400, Message: "Request blocked by SAFETY settings"}),
			wantType:   ErrorTypeContentPolicy,
			wantStatus: 400,
		},
		{
			name:       "googleapi not found",
			err:        &googleapi.Error{Code: 404, Message: "model not found"},
			wantType:   ErrorTypeNotFound,
			wantStatus: 404,
		},
		{
			name: "googleapi safety reason",
			err: &googleapi.Error{Code: 400, Errors: []googleapi.ErrorItem{
				{Reason: "SAFETY", Message: "harm category"},
			}},
			wantType:   ErrorTypeContentPolicy,
			wantStatus: 400,
		},
		{
			name:     "deadline",
			err:      context.DeadlineExceeded,
			wantType: ErrorTypeTimeout,
		},
		{
			name:     "transport",
			err:      fmt.Errorf("dial tcp: connection refused"),
			wantType: ErrorTypeNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pe *ProviderError
			require.ErrorAs(t, p.handleError(tt.err), &pe)
			assert.Equal(t, tt.wantType, pe.Type)
			assert.Equal(t, tt.wantStatus, pe.StatusCode)
			assert.Equal(t, "google", pe.Provider)
		})
	}
}

func TestLooksLikeFilePath(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"AIzaSyD-abc123", false},
		{"/etc/google/key.json", true},
		{"service-account.json", true},
		{"keys/prod", true},
		{"my-credentials", true},
		{"cert.PEM", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, looksLikeFilePath(tt.in))
		})
	}
}

func TestBuildAuthConfig(t *testing.T) {
	cfg, err := buildAuthConfig(ClientConfig{APIKey: "AIzaSyD-abc123"})
	require.NoError(t, err)
	assert.Equal(t, "AIzaSyD-abc123", cfg.APIKey)
	assert.Equal(t, genai.BackendGeminiAPI, cfg.Backend)

	_, err = buildAuthConfig(ClientConfig{APIKey: "/does/not/exist.json"})
	assert.ErrorContains(t, err, "credentials file not found")

	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	_, err = buildAuthConfig(ClientConfig{APIKey: path})
	assert.ErrorContains(t, err, "not supported")
}

func TestNewGoogleProvider_EmptyKey(t *testing.T) {
	_, err := newGoogleProvider(ClientConfig{Model: "gemini"})
	assert.ErrorIs(t, err, ErrEmptyAPIKey)
}
