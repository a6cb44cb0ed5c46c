package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ahrav/go-evoprompt/internal/domain"
)

// OpenAIDefaultModel is used when the configuration names no model.
const OpenAIDefaultModel = "gpt-4o-mini"

func init() {
	RegisterProviderFactory("openai", newOpenAIProvider)
}

// openAIProvider implements CoreLLM on the chat completions API. It also
// serves OpenAI-compatible endpoints through ClientConfig.BaseURL.
type openAIProvider struct {
	BaseProvider
	client          *openai.Client
	tokenCounter    *TokenCounter
	errorClassifier *ErrorClassifier
}

func newOpenAIProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = OpenAIDefaultModel
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		validatedURL, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL: %w", err)
		}
		clientConfig.BaseURL = validatedURL
	}
	if config.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: ValidateTimeout(config.Timeout)}
	}

	return &openAIProvider{
		BaseProvider:    BaseProvider{model: model},
		client:          openai.NewClientWithConfig(clientConfig),
		tokenCounter:    NewTokenCounter(),
		errorClassifier: &ErrorClassifier{Provider: "openai"},
	}, nil
}

// DoRequest sends one chat completion.
func (p *openAIProvider) DoRequest(ctx context.Context, req domain.GenerationRequest) (domain.Generation, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildChatCompletionRequest(req))
	if err != nil {
		return domain.Generation{}, p.handleError(err)
	}
	if len(resp.Choices) == 0 {
		return domain.Generation{}, ErrNoResponseChoice
	}

	content := resp.Choices[0].Message.Content
	return domain.Generation{
		Text:      content,
		Model:     resp.Model,
		TokensIn:  p.tokenCounter.GetTokenCount(resp.Usage.PromptTokens, req.System+req.Prompt),
		TokensOut: p.tokenCounter.GetTokenCount(resp.Usage.CompletionTokens, content),
	}, nil
}

func (p *openAIProvider) buildChatCompletionRequest(req domain.GenerationRequest) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = p.GetModel()
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system := systemWithFormat(req.System, req.Format); system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	out := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if req.Temperature != nil {
		out.Temperature = float32(ClampFloat64(*req.Temperature, MinTemperature, MaxTemperature))
	}
	if req.TopP != nil {
		out.TopP = float32(ClampFloat64(*req.TopP, MinTopP, MaxTopP))
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	// The API has no repeat penalty; 1.0 is neutral, so the excess maps onto
	// the frequency penalty.
	if req.RepeatPenalty != nil {
		out.FrequencyPenalty = float32(ClampFloat64(*req.RepeatPenalty-1, -2, 2))
	}
	if strings.EqualFold(req.Format, FormatJSON) {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return out
}

func (p *openAIProvider) handleError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return p.errorClassifier.ClassifyTransportError(err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" {
			message = "unknown error"
		}
		return p.errorClassifier.ClassifyHTTPError(apiErr.HTTPStatusCode, message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return p.errorClassifier.ClassifyHTTPError(reqErr.HTTPStatusCode, "request failed", err)
	}

	return p.errorClassifier.ClassifyTransportError(err)
}
