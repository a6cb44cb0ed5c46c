// Package llm adapts hosted and local model providers to ports.LLMClient.
//
// Each provider implements CoreLLM, a single typed generation call. Client
// wraps a CoreLLM in a middleware chain (timeout, retry, rate limiting,
// circuit breaking, metrics, tracing) and maps provider failures onto the
// ports error sentinels so the execution backend can classify them.
//
// Basic usage:
//
//	client, err := llm.NewClient("ollama", llm.ClientConfig{
//	    Model:   "llama3",
//	    BaseURL: "http://localhost:11434",
//	    Middleware: []llm.Middleware{
//	        llm.TimeoutMiddleware(2 * time.Minute),
//	        llm.RetryMiddleware(llm.DefaultRetryConfig()),
//	    },
//	})
//	gen, err := client.Generate(ctx, domain.NewGenerationRequest(genome, prompt))
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/go-evoprompt/internal/domain"
	"github.com/ahrav/go-evoprompt/internal/ports"
)

// CoreLLM is the minimal contract a provider implements. Middleware wraps
// CoreLLM values, so every provider gets the same cross-cutting behavior.
type CoreLLM interface {
	// DoRequest runs one completion. req.Model is always set by Client.
	DoRequest(ctx context.Context, req domain.GenerationRequest) (domain.Generation, error)

	// GetModel returns the default model for requests that do not name one.
	GetModel() string

	// SetModel replaces the default model.
	SetModel(model string)
}

// TokenEstimator approximates token counts for providers that do not report
// usage.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// ClientConfig holds the settings used to build a Client.
type ClientConfig struct {
	// APIKey authenticates against hosted providers. For Google it is the
	// path to a credentials file. Local providers ignore it.
	APIKey string

	// Model is the default model name.
	Model string

	// BaseURL overrides the provider endpoint.
	BaseURL string

	// Timeout bounds the provider's HTTP client. Zero keeps the provider
	// default.
	Timeout time.Duration

	// TokenEstimator overrides the character-based estimator.
	TokenEstimator TokenEstimator

	// Middleware is applied so that the first entry is the outermost.
	Middleware []Middleware
}

// Middleware wraps a CoreLLM with additional behavior.
type Middleware func(CoreLLM) CoreLLM

// Client implements ports.LLMClient on top of a middleware-wrapped CoreLLM.
type Client struct {
	provider  string
	core      CoreLLM
	estimator TokenEstimator
}

var (
	_ ports.LLMClient     = (*Client)(nil)
	_ ports.HealthChecker = (*Client)(nil)
)

// NewClient builds a Client for providerType. Providers registered as
// keyless (see RegisterProviderFactory) accept an empty APIKey.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	entry, ok := providerFactories[providerType]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerType)
	}
	if config.APIKey == "" && entry.requiresKey {
		return nil, ErrEmptyAPIKey
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	core, err := entry.factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}

	estimator := config.TokenEstimator
	if estimator == nil {
		estimator = &SimpleTokenEstimator{}
	}

	return &Client{
		provider:  providerType,
		core:      core,
		estimator: estimator,
	}, nil
}

// Generate runs req against the provider. An empty req.Model uses the
// client's default model. Provider failures are returned as *ports.LLMError
// wrapping one of the ports sentinels when the cause is known.
func (c *Client) Generate(ctx context.Context, req domain.GenerationRequest) (domain.Generation, error) {
	if req.Model == "" {
		req.Model = c.core.GetModel()
	}

	gen, err := c.core.DoRequest(ctx, req)
	if err != nil {
		return domain.Generation{}, toLLMError(req.Model, err)
	}
	if gen.Model == "" {
		gen.Model = req.Model
	}
	if gen.TokensIn == 0 {
		gen.TokensIn = c.estimator.EstimateTokens(req.System + req.Prompt)
	}
	if gen.TokensOut == 0 {
		gen.TokensOut = c.estimator.EstimateTokens(gen.Text)
	}
	return gen, nil
}

// Ping probes the provider when it supports health checks. Providers
// without a health endpoint are assumed reachable.
func (c *Client) Ping(ctx context.Context) error {
	hc, ok := findHealthChecker(c.core)
	if !ok {
		return nil
	}
	if err := hc.Ping(ctx); err != nil {
		return toLLMError(c.core.GetModel(), err)
	}
	return nil
}

// EstimateTokens returns an approximate token count for text.
func (c *Client) EstimateTokens(text string) (int, error) {
	return c.estimator.EstimateTokens(text), nil
}

// GetModel returns the default model.
func (c *Client) GetModel() string { return c.core.GetModel() }

// Provider returns the provider name the client was built for.
func (c *Client) Provider() string { return c.provider }

// unwrapper is implemented by middleware that exposes the CoreLLM it wraps.
type unwrapper interface {
	Unwrap() CoreLLM
}

func findHealthChecker(core CoreLLM) (ports.HealthChecker, bool) {
	for core != nil {
		if hc, ok := core.(ports.HealthChecker); ok {
			return hc, true
		}
		u, ok := core.(unwrapper)
		if !ok {
			return nil, false
		}
		core = u.Unwrap()
	}
	return nil, false
}

// toLLMError maps provider errors onto ports sentinels.
func toLLMError(model string, err error) error {
	var llmErr *ports.LLMError
	if errors.As(err, &llmErr) {
		return err
	}

	cause := err
	var pe *ProviderError
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		cause = fmt.Errorf("%w: %w", ports.ErrTimeout, err)
	case errors.Is(err, ErrCircuitOpen):
		cause = fmt.Errorf("%w: %w", ports.ErrServiceUnavailable, err)
	case errors.As(err, &pe):
		if sentinel := pe.sentinel(); sentinel != nil {
			cause = fmt.Errorf("%w: %w", sentinel, err)
		}
	}
	return ports.NewLLMError(model, "generate", cause)
}

// SimpleTokenEstimator assumes roughly four characters per token.
type SimpleTokenEstimator struct{}

// EstimateTokens returns ceil(len(text)/4).
func (e *SimpleTokenEstimator) EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// ProviderFactory creates a CoreLLM from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

type providerEntry struct {
	factory     ProviderFactory
	requiresKey bool
}

var providerFactories = map[string]providerEntry{}

// RegisterProviderFactory registers a provider that requires an API key.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	providerFactories[providerType] = providerEntry{factory: factory, requiresKey: true}
}

// RegisterKeylessProviderFactory registers a provider that runs without
// credentials, such as a local model server.
func RegisterKeylessProviderFactory(providerType string, factory ProviderFactory) {
	providerFactories[providerType] = providerEntry{factory: factory}
}
