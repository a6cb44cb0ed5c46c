package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-evoprompt/internal/domain"
	"github.com/ahrav/go-evoprompt/internal/ports"
)

const (
	// OllamaDefaultBaseURL is the address of a local Ollama server.
	OllamaDefaultBaseURL = "http://localhost:11434"
	// OllamaDefaultModel is used when the configuration names no model.
	OllamaDefaultModel = "llama3"

	ollamaDefaultTimeout = 3 * time.Minute
	ollamaMaxErrorBody   = 4 << 10
)

func init() {
	RegisterKeylessProviderFactory("ollama", newOllamaProvider)
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Format  string         `json:"format,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ollamaProvider implements CoreLLM against the Ollama REST API using
// non-streaming /api/generate calls.
type ollamaProvider struct {
	BaseProvider
	httpClient      *http.Client
	baseURL         string
	tokenCounter    *TokenCounter
	errorClassifier *ErrorClassifier
}

var _ ports.HealthChecker = (*ollamaProvider)(nil)

func newOllamaProvider(config ClientConfig) (CoreLLM, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = OllamaDefaultBaseURL
	}
	validated, err := ValidateBaseURL(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}

	model := config.Model
	if model == "" {
		model = OllamaDefaultModel
	}

	timeout := ValidateTimeout(config.Timeout)
	if timeout == 0 {
		timeout = ollamaDefaultTimeout
	}

	return &ollamaProvider{
		BaseProvider:    BaseProvider{model: model},
		httpClient:      &http.Client{Timeout: timeout},
		baseURL:         strings.TrimSuffix(validated, "/"),
		tokenCounter:    NewTokenCounter(),
		errorClassifier: &ErrorClassifier{Provider: "ollama"},
	}, nil
}

// DoRequest posts req to /api/generate.
func (p *ollamaProvider) DoRequest(ctx context.Context, req domain.GenerationRequest) (domain.Generation, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ollama.generate")
	defer span.End()

	payload := p.buildRequest(req)
	span.SetAttributes(attribute.String("llm.model", payload.Model))

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.Generation{}, p.fail(span, fmt.Errorf("failed to marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return domain.Generation{}, p.fail(span, fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return domain.Generation{}, p.fail(span, p.errorClassifier.ClassifyTransportError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Generation{}, p.fail(span, p.statusError(resp, payload.Model))
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Generation{}, p.fail(span,
			NewProviderError("ollama", ErrorTypeUnknown, resp.StatusCode, "malformed response",
				fmt.Errorf("%w: %w", ports.ErrInvalidResponse, err)))
	}

	gen := domain.Generation{
		Text:      out.Response,
		Model:     out.Model,
		TokensIn:  p.tokenCounter.GetTokenCount(out.PromptEvalCount, req.System+req.Prompt),
		TokensOut: p.tokenCounter.GetTokenCount(out.EvalCount, out.Response),
	}
	span.SetAttributes(
		attribute.Int("llm.tokens_in", gen.TokensIn),
		attribute.Int("llm.tokens_out", gen.TokensOut),
	)
	return gen, nil
}

// Ping checks that the server answers GET /api/tags.
func (p *ollamaProvider) Ping(ctx context.Context) error {
	_, err := p.Models(ctx)
	return err
}

// Models returns the names of the models installed on the server.
func (p *ollamaProvider) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, p.errorClassifier.ClassifyTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, p.statusError(resp, p.GetModel())
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrInvalidResponse, err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (p *ollamaProvider) buildRequest(req domain.GenerationRequest) ollamaGenerateRequest {
	model := req.Model
	if model == "" {
		model = p.GetModel()
	}

	options := make(map[string]any)
	if req.Temperature != nil {
		options["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		options["top_p"] = *req.TopP
	}
	if req.TopK > 0 {
		options["top_k"] = req.TopK
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if req.RepeatPenalty != nil {
		options["repeat_penalty"] = *req.RepeatPenalty
	}

	out := ollamaGenerateRequest{
		Model:   model,
		Prompt:  req.Prompt,
		System:  req.System,
		Options: options,
	}
	// Ollama only constrains JSON natively; other formats become a
	// directive.
	if strings.EqualFold(req.Format, FormatJSON) {
		out.Format = FormatJSON
	} else {
		out.System = systemWithFormat(req.System, req.Format)
	}
	return out
}

func (p *ollamaProvider) statusError(resp *http.Response, model string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, ollamaMaxErrorBody))
	var body struct {
		Error string `json:"error"`
	}
	message := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		message = body.Error
	}
	if resp.StatusCode == http.StatusNotFound {
		message = fmt.Sprintf("model %q not found, run 'ollama pull %s': %s", model, model, message)
	}
	return p.errorClassifier.ClassifyHTTPError(resp.StatusCode, message, nil)
}

func (p *ollamaProvider) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
