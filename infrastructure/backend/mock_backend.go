package backend

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/ahrav/go-evoprompt/internal/domain"
	"github.com/ahrav/go-evoprompt/internal/ports"
)

var _ ports.ExecutionBackend = (*MockBackend)(nil)

const mockBaseResponse = "This is a mock response for the task."

var mockMathAnswers = []struct{ expr, answer string }{
	{"15 + 27", "42"},
	{"8 * 9", "72"},
	{"144 / 12", "12"},
	{"25 - 13", "12"},
}

// MockBackend answers without a model: arithmetic questions from a fixed
// table, sentiment questions by keyword, everything else with a canned
// response shaped by the genome's instruction style. It is safe for
// concurrent use.
type MockBackend struct {
	latency time.Duration
	jitter  time.Duration
}

// MockOption configures a MockBackend.
type MockOption func(*MockBackend)

// WithSimulatedLatency makes each call wait latency plus a random share of
// jitter, or until ctx ends.
func WithSimulatedLatency(latency, jitter time.Duration) MockOption {
	return func(m *MockBackend) {
		m.latency = max(latency, 0)
		m.jitter = max(jitter, 0)
	}
}

// NewMockBackend creates a MockBackend. Without options it answers
// immediately.
func NewMockBackend(opts ...MockOption) *MockBackend {
	m := &MockBackend{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Execute implements ports.ExecutionBackend.
func (m *MockBackend) Execute(ctx context.Context, genome domain.Genome, input string) (domain.ExecutionResult, error) {
	start := time.Now()
	if err := m.wait(ctx); err != nil {
		return domain.FailedExecution("execution canceled", time.Since(start)), err
	}

	response := MockResponse(genome, input)
	return domain.ExecutionResult{
		Response:        response,
		Success:         true,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		InputTokens:     len(input) / 4,
		OutputTokens:    len(response) / 4,
	}, nil
}

func (m *MockBackend) wait(ctx context.Context) error {
	d := m.latency
	if m.jitter > 0 {
		d += rand.N(m.jitter)
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// MockResponse returns the deterministic answer MockBackend gives for input.
func MockResponse(genome domain.Genome, input string) string {
	lower := strings.ToLower(input)
	switch {
	case strings.Contains(lower, "what is") && strings.Contains(input, "+"):
		return solveMath(input)
	case strings.Contains(lower, "positive") || strings.Contains(lower, "negative"):
		return classifySentiment(lower)
	}

	switch genome.InstructionStyle {
	case domain.StyleConcise:
		return "Brief: " + mockBaseResponse
	case domain.StyleAnalytical:
		return "Analysis: " + mockBaseResponse + " This requires careful consideration of multiple factors."
	case domain.StyleStepByStep:
		return "Step 1: Understanding the task. Step 2: " + mockBaseResponse
	default:
		return mockBaseResponse
	}
}

func solveMath(input string) string {
	for _, m := range mockMathAnswers {
		if strings.Contains(input, m.expr) {
			return m.answer
		}
	}
	return "Unknown math problem"
}

func classifySentiment(lower string) string {
	switch {
	case strings.Contains(lower, "love") || strings.Contains(lower, "great"):
		return "positive"
	case strings.Contains(lower, "terrible") || strings.Contains(lower, "poor"):
		return "negative"
	default:
		return "neutral"
	}
}
