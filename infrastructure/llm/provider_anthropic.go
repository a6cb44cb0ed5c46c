package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ahrav/go-evoprompt/internal/domain"
)

const (
	// AnthropicDefaultModel is used when the configuration names no model.
	AnthropicDefaultModel = "claude-3-5-haiku-latest"

	// anthropicDefaultMaxTokens fills the required max_tokens field when the
	// request leaves it at zero.
	anthropicDefaultMaxTokens = 1024
)

func init() {
	RegisterProviderFactory("anthropic", newAnthropicProvider)
}

// anthropicProvider implements CoreLLM on the Messages API.
type anthropicProvider struct {
	BaseProvider
	client          anthropic.Client
	tokenCounter    *TokenCounter
	errorClassifier *ErrorClassifier
}

func newAnthropicProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = AnthropicDefaultModel
	}

	// Retries are handled by RetryMiddleware.
	opts := []option.RequestOption{option.WithAPIKey(config.APIKey), option.WithMaxRetries(0)}
	if config.BaseURL != "" {
		validatedURL, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL: %w", err)
		}
		opts = append(opts, option.WithBaseURL(validatedURL))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(ValidateTimeout(config.Timeout)))
	}

	return &anthropicProvider{
		BaseProvider:    BaseProvider{model: model},
		client:          anthropic.NewClient(opts...),
		tokenCounter:    NewTokenCounter(),
		errorClassifier: &ErrorClassifier{Provider: "anthropic"},
	}, nil
}

// DoRequest sends one message and concatenates the text blocks of the reply.
func (p *anthropicProvider) DoRequest(ctx context.Context, req domain.GenerationRequest) (domain.Generation, error) {
	message, err := p.client.Messages.New(ctx, p.buildParams(req))
	if err != nil {
		return domain.Generation{}, p.wrapError(err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	if text.Len() == 0 {
		return domain.Generation{}, ErrEmptyResponse
	}

	out := text.String()
	return domain.Generation{
		Text:      out,
		Model:     string(message.Model),
		TokensIn:  p.tokenCounter.GetTokenCount(int(message.Usage.InputTokens), req.System+req.Prompt),
		TokensOut: p.tokenCounter.GetTokenCount(int(message.Usage.OutputTokens), out),
	}, nil
}

func (p *anthropicProvider) buildParams(req domain.GenerationRequest) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = p.GetModel()
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	// Messages API temperature is bounded to [0, 1].
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(ClampFloat64(*req.Temperature, 0, 1))
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(ClampFloat64(*req.TopP, MinTopP, MaxTopP))
	}
	if req.TopK > 0 {
		params.TopK = anthropic.Int(int64(req.TopK))
	}
	if system := systemWithFormat(req.System, req.Format); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

func (p *anthropicProvider) wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return p.errorClassifier.ClassifyHTTPError(apiErr.StatusCode, "request failed", err)
	}
	return p.errorClassifier.ClassifyTransportError(err)
}
