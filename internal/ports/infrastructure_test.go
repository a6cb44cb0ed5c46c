package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-evoprompt/internal/domain"
)

// Test that the port interfaces can be implemented by simple types.

type mockLLMClient struct{ model string }

func (m *mockLLMClient) Generate(_ context.Context, req domain.GenerationRequest) (domain.Generation, error) {
	return domain.Generation{Text: "echo: " + req.Prompt, Model: m.model, TokensIn: len(req.Prompt) / 4}, nil
}

func (m *mockLLMClient) EstimateTokens(text string) (int, error) { return len(text) / 4, nil }

func (m *mockLLMClient) GetModel() string { return m.model }

type echoBackend struct{}

func (echoBackend) Execute(_ context.Context, g domain.Genome, input string) (domain.ExecutionResult, error) {
	return domain.ExecutionResult{Response: g.RenderPrompt(input), Success: true}, nil
}

type recordingCollector struct {
	counters map[string]float64
}

func (r *recordingCollector) RecordLatency(string, time.Duration, map[string]string) {}

func (r *recordingCollector) RecordCounter(metric string, value float64, _ map[string]string) {
	r.counters[metric] += value
}

func (r *recordingCollector) RecordGauge(string, float64, map[string]string) {}

func (r *recordingCollector) RecordHistogram(string, float64, map[string]string) {}

func TestLLMClientInterface(t *testing.T) {
	var client LLMClient = &mockLLMClient{model: "llama3"}

	gen, err := client.Generate(context.Background(), domain.GenerationRequest{Prompt: "hello world!"})
	require.NoError(t, err)
	assert.Equal(t, "echo: hello world!", gen.Text)
	assert.Equal(t, 3, gen.TokensIn)
	assert.Equal(t, "llama3", client.GetModel())

	n, err := client.EstimateTokens("12345678")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestExecutionBackendInterface(t *testing.T) {
	var backend ExecutionBackend = echoBackend{}

	g := domain.Genome{PromptTemplate: "Q: {task}"}
	res, err := backend.Execute(context.Background(), g, "2+2")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Q: 2+2", res.Response)
}

func TestMetricsCollectorInterface(t *testing.T) {
	rc := &recordingCollector{counters: map[string]float64{}}
	var collector MetricsCollector = rc

	collector.RecordCounter("evaluations_total", 1, nil)
	collector.RecordCounter("evaluations_total", 2, nil)
	assert.Equal(t, 3.0, rc.counters["evaluations_total"])
}
