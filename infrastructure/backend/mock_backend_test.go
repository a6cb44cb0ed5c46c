package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-evoprompt/internal/domain"
)

func TestMockResponse(t *testing.T) {
	direct := domain.DefaultGenome()

	tests := []struct {
		name  string
		style domain.InstructionStyle
		input string
		want  string
	}{
		{name: "addition", input: "What is 15 + 27?", want: "42"},
		{name: "lower case question", input: "what is 15 + 27", want: "42"},
		{name: "math table needs a plus sign", input: "What is 8 * 9?", want: "This is a mock response for the task."},
		{name: "math table lookup by expression", input: "What is 1 + 1 or 8 * 9?", want: "72"},
		{name: "unknown math", input: "What is 2 + 2?", want: "Unknown math problem"},
		{name: "positive sentiment", input: "Is this positive or negative: I love this product", want: "positive"},
		{name: "negative sentiment", input: "Positive or negative? The service was terrible", want: "negative"},
		{name: "neutral sentiment", input: "Classify as positive or negative: it arrived", want: "neutral"},
		{name: "direct", style: domain.StyleDirect, input: "Summarize the article", want: "This is a mock response for the task."},
		{name: "concise", style: domain.StyleConcise, input: "Summarize", want: "Brief: This is a mock response for the task."},
		{
			name:  "analytical",
			style: domain.StyleAnalytical,
			input: "Summarize",
			want:  "Analysis: This is a mock response for the task. This requires careful consideration of multiple factors.",
		},
		{
			name:  "step by step",
			style: domain.StyleStepByStep,
			input: "Summarize",
			want:  "Step 1: Understanding the task. Step 2: This is a mock response for the task.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := direct
			g.InstructionStyle = tt.style
			assert.Equal(t, tt.want, MockResponse(g, tt.input))
		})
	}
}

func TestMockBackend_Execute(t *testing.T) {
	b := NewMockBackend()
	input := "What is 15 + 27?"

	res, err := b.Execute(context.Background(), domain.DefaultGenome(), input)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionResult{
		Response:        "42",
		Success:         true,
		ExecutionTimeMs: res.ExecutionTimeMs,
		InputTokens:     len(input) / 4,
		OutputTokens:    0,
	}, res)
}

func TestMockBackend_SimulatedLatency(t *testing.T) {
	b := NewMockBackend(WithSimulatedLatency(30*time.Millisecond, 10*time.Millisecond))

	start := time.Now()
	res, err := b.Execute(context.Background(), domain.DefaultGenome(), "hello")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	t.Run("canceled while waiting", func(t *testing.T) {
		slow := NewMockBackend(WithSimulatedLatency(time.Minute, 0))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		res, err := slow.Execute(ctx, domain.DefaultGenome(), "hello")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.False(t, res.Success)
	})
}
