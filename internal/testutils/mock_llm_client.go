package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ahrav/go-evoprompt/internal/domain"
	"github.com/ahrav/go-evoprompt/internal/ports"
)

// Verify interface compliance at compile time.
var _ ports.LLMClient = (*MockLLMClient)(nil)

// MockLLMClient implements ports.LLMClient with deterministic responses
// chosen by case-insensitive substring match on the prompt.
// Patterns are tried in the order they were added; the first match wins.
// It records every request so tests can assert on the parameters a genome
// produced.
type MockLLMClient struct {
	model string

	mu        sync.Mutex
	responses []MockResponse
	fallback  MockResponse
	failWith  error
	requests  []domain.GenerationRequest
}

// MockResponse defines a pre-configured response pattern for the mock client.
type MockResponse struct {
	// Pattern is matched against the lower-cased prompt.
	Pattern string
	// Response is the text returned for matching prompts.
	Response string
	// TokensUsed is reported as output tokens.
	TokensUsed int
}

// NewMockLLMClient creates a MockLLMClient with arithmetic and sentiment
// answers pre-configured.
func NewMockLLMClient(model string) *MockLLMClient {
	m := &MockLLMClient{
		model: model,
		fallback: MockResponse{
			Response:   "This is a standard response for testing purposes with moderate length and complexity.",
			TokensUsed: 15,
		},
	}
	m.setupDefaultResponses()
	return m
}

func (m *MockLLMClient) setupDefaultResponses() {
	m.responses = []MockResponse{
		{Pattern: "15 + 27", Response: "42", TokensUsed: 1},
		{Pattern: "8 * 9", Response: "72", TokensUsed: 1},
		{Pattern: "144 / 12", Response: "12", TokensUsed: 1},
		{Pattern: "sentiment", Response: "positive", TokensUsed: 1},
		{Pattern: "summarize", Response: "A concise summary that keeps the key facts and drops the detail.", TokensUsed: 12},
	}
}

// AddResponse appends a response pattern. Earlier patterns take priority.
func (m *MockLLMClient) AddResponse(r MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, r)
}

// FailWith makes every subsequent Generate call return err. A nil err
// restores normal behavior.
func (m *MockLLMClient) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Generate returns the response of the first matching pattern.
func (m *MockLLMClient) Generate(ctx context.Context, req domain.GenerationRequest) (domain.Generation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Generation{}, err
	}
	if req.Prompt == "" {
		return domain.Generation{}, fmt.Errorf("prompt cannot be empty")
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	failWith := m.failWith
	resp := m.match(req.Prompt)
	m.mu.Unlock()

	if failWith != nil {
		return domain.Generation{}, failWith
	}

	text := resp.Response
	if req.Temperature != nil && *req.Temperature > 0.5 {
		text = addVariation(text, req.Prompt)
	}

	in, _ := m.EstimateTokens(req.System + req.Prompt)
	model := req.Model
	if model == "" {
		model = m.model
	}
	return domain.Generation{
		Text:      text,
		Model:     model,
		TokensIn:  in,
		TokensOut: resp.TokensUsed,
	}, nil
}

func (m *MockLLMClient) match(prompt string) MockResponse {
	lower := strings.ToLower(prompt)
	for _, r := range m.responses {
		if r.Pattern != "" && strings.Contains(lower, strings.ToLower(r.Pattern)) {
			return r
		}
	}
	return m.fallback
}

// addVariation appends deterministic text for long prompts to mimic the
// drift of high-temperature sampling.
func addVariation(response, prompt string) string {
	switch n := len(prompt); {
	case n > 200:
		return response + " Additionally, this comprehensive analysis covers multiple dimensions of the topic."
	case n > 100:
		return response + " This response includes additional context for completeness."
	default:
		return response
	}
}

// EstimateTokens approximates four characters per token.
func (m *MockLLMClient) EstimateTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	tokens := len(text) / 4
	if tokens == 0 {
		tokens = 1
	}
	return tokens, nil
}

// GetModel returns the mock model identifier.
func (m *MockLLMClient) GetModel() string { return m.model }

// Requests returns a copy of every request received.
func (m *MockLLMClient) Requests() []domain.GenerationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.GenerationRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Reset clears recorded requests, custom responses and injected errors.
func (m *MockLLMClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.failWith = nil
	m.setupDefaultResponses()
}
