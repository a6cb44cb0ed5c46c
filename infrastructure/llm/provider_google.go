package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/ahrav/go-evoprompt/internal/domain"
)

// GoogleDefaultModel is used when the configuration names no model.
const GoogleDefaultModel = "gemini-2.0-flash"

// Gemini accepts top_k in [1, 40].
const googleMaxTopK = 40

func init() {
	RegisterProviderFactory("google", newGoogleProvider)
}

// googleProvider implements CoreLLM on the Gemini API.
type googleProvider struct {
	BaseProvider
	client          *genai.Client
	tokenCounter    *TokenCounter
	errorClassifier *ErrorClassifier
}

func newGoogleProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = GoogleDefaultModel
	}

	authConfig, err := buildAuthConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to configure authentication: %w", err)
	}

	client, err := genai.NewClient(context.Background(), authConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}

	return &googleProvider{
		BaseProvider:    BaseProvider{model: model},
		client:          client,
		tokenCounter:    NewTokenCounter(),
		errorClassifier: &ErrorClassifier{Provider: "google"},
	}, nil
}

// DoRequest sends one GenerateContent call.
func (p *googleProvider) DoRequest(ctx context.Context, req domain.GenerationRequest) (domain.Generation, error) {
	model := req.Model
	if model == "" {
		model = p.GetModel()
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	resp, err := p.client.Models.GenerateContent(ctx, model, contents, buildGenerationConfig(req))
	if err != nil {
		return domain.Generation{}, p.handleError(err)
	}

	text := resp.Text()
	if text == "" {
		return domain.Generation{}, ErrEmptyResponse
	}

	gen := domain.Generation{
		Text:      text,
		Model:     model,
		TokensIn:  p.tokenCounter.EstimateTokens(req.System + req.Prompt),
		TokensOut: p.tokenCounter.EstimateTokens(text),
	}
	if usage := resp.UsageMetadata; usage != nil {
		gen.TokensIn = p.tokenCounter.GetTokenCount(int(usage.PromptTokenCount), req.System+req.Prompt)
		gen.TokensOut = p.tokenCounter.GetTokenCount(int(usage.CandidatesTokenCount), text)
	}
	return gen, nil
}

func buildGenerationConfig(req domain.GenerationRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(ClampFloat64(*req.Temperature, MinTemperature, MaxTemperature)))
	}
	if req.TopP != nil {
		config.TopP = genai.Ptr(float32(ClampFloat64(*req.TopP, MinTopP, MaxTopP)))
	}
	if req.TopK > 0 {
		config.TopK = genai.Ptr(float32(min(req.TopK, googleMaxTopK)))
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(min(req.MaxTokens, math.MaxInt32))
	}
	if req.RepeatPenalty != nil {
		config.FrequencyPenalty = genai.Ptr(float32(ClampFloat64(*req.RepeatPenalty-1, -2, 2)))
	}
	switch strings.ToLower(req.Format) {
	case FormatJSON:
		config.ResponseMIMEType = "application/json"
	case FormatMarkdown:
		config.SystemInstruction = genai.NewContentFromText(systemWithFormat(req.System, req.Format), genai.RoleUser)
	}
	return config
}

func (p *googleProvider) handleError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return p.errorClassifier.ClassifyTransportError(err)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if isSafetyBlock(apiErr.Message) {
			return NewProviderError("google", ErrorTypeContentPolicy, apiErr.Code, "request blocked by safety filters", err)
		}
		return p.errorClassifier.ClassifyHTTPError(apiErr.Code, apiErr.Status, err)
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		message := gErr.Message
		if message == "" && len(gErr.Errors) > 0 {
			message = gErr.Errors[0].Message
		}
		if isSafetyBlock(message) || hasSafetyReason(gErr) {
			return NewProviderError("google", ErrorTypeContentPolicy, gErr.Code, "request blocked by safety filters", err)
		}
		return p.errorClassifier.ClassifyHTTPError(gErr.Code, message, err)
	}

	return p.errorClassifier.ClassifyTransportError(err)
}

// buildAuthConfig accepts an API key. Credential file paths are rejected
// with a hint to use GOOGLE_APPLICATION_CREDENTIALS.
func buildAuthConfig(config ClientConfig) (*genai.ClientConfig, error) {
	if looksLikeFilePath(config.APIKey) {
		if _, err := os.Stat(config.APIKey); err != nil {
			return nil, fmt.Errorf("credentials file not found: %s", config.APIKey)
		}
		return nil, fmt.Errorf("service account files are not supported; use an API key or GOOGLE_APPLICATION_CREDENTIALS")
	}

	return &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}, nil
}

func looksLikeFilePath(s string) bool {
	if filepath.IsAbs(s) || strings.ContainsAny(s, `/\`) {
		return true
	}
	lower := strings.ToLower(s)
	return strings.HasSuffix(lower, ".json") ||
		strings.HasSuffix(lower, ".pem") ||
		strings.Contains(lower, "credentials")
}

func isSafetyBlock(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "safety") || strings.Contains(lower, "blocked")
}

func hasSafetyReason(apiErr *googleapi.Error) bool {
	for _, e := range apiErr.Errors {
		if e.Reason == "SAFETY" || e.Reason == "BLOCKED" {
			return true
		}
	}
	return false
}
