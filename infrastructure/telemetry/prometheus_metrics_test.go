package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) (*PrometheusMetrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewPrometheusMetrics(reg), reg
}

func TestPrometheusMetrics_LLMCounters(t *testing.T) {
	pm, _ := newTestMetrics(t)

	labels := map[string]string{"provider": "ollama", "model": "llama3", "status": "success"}
	pm.RecordCounter(MetricLLMRequests, 1, labels)
	pm.RecordCounter(MetricLLMRequests, 1, labels)
	pm.RecordCounter(MetricLLMTokens, 12, map[string]string{"provider": "ollama", "model": "llama3", "token_type": "input"})
	pm.RecordHistogram(MetricLLMLatency, 0.3, labels)

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.llmRequests.WithLabelValues("ollama", "llama3", "success")))
	assert.Equal(t, 12.0, testutil.ToFloat64(pm.llmTokens.WithLabelValues("ollama", "llama3", "input")))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.llmLatency))
}

func TestPrometheusMetrics_EvolutionMetrics(t *testing.T) {
	pm, _ := newTestMetrics(t)
	labels := map[string]string{"task": "math"}

	pm.RecordCounter(MetricGenerations, 1, labels)
	pm.RecordCounter(MetricEvaluations, 20, labels)
	pm.RecordCounter(MetricFailedEvals, 3, labels)
	pm.RecordGauge(MetricBestFitness, 0.8, labels)
	pm.RecordGauge(MetricMeanFitness, 0.5, labels)
	pm.RecordGauge(MetricBestSoFar, 0.9, labels)

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.evoCounters.WithLabelValues("generation", "math")))
	assert.Equal(t, 20.0, testutil.ToFloat64(pm.evoCounters.WithLabelValues("evaluation", "math")))
	assert.Equal(t, 3.0, testutil.ToFloat64(pm.evoCounters.WithLabelValues("failed_evaluation", "math")))
	assert.Equal(t, 0.8, testutil.ToFloat64(pm.evoFitness.WithLabelValues("best", "math")))
	assert.Equal(t, 0.5, testutil.ToFloat64(pm.evoFitness.WithLabelValues("mean", "math")))
	assert.Equal(t, 0.9, testutil.ToFloat64(pm.evoFitness.WithLabelValues("best_so_far", "math")))
}

func TestPrometheusMetrics_GenericMetrics(t *testing.T) {
	pm, _ := newTestMetrics(t)

	tests := []struct {
		name   string
		labels map[string]string
		want   string
	}{
		{name: "component label", labels: map[string]string{"component": "engine", "backend": "mock"}, want: "engine"},
		{name: "backend label", labels: map[string]string{"backend": "mock"}, want: "mock"},
		{name: "provider label", labels: map[string]string{"provider": "openai"}, want: "openai"},
		{name: "no label", labels: nil, want: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, component(tt.labels))
		})
	}

	pm.RecordGauge("budget_calls_used", 7, map[string]string{"backend": "mock"})
	pm.RecordCounter("cache_hits", 2, map[string]string{"component": "loader"})
	pm.RecordLatency("backend_execution", 150*time.Millisecond, map[string]string{"backend": "mock"})
	pm.RecordHistogram("prompt_length", 42, nil)
	pm.RecordCounter(MetricBudgetExceeded, 1, map[string]string{"backend": "mock", "limit_type": "calls"})

	assert.Equal(t, 7.0, testutil.ToFloat64(pm.stateGauges.WithLabelValues("budget_calls_used", "mock")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.operations.WithLabelValues("cache_hits", "loader")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.budgetBreach.WithLabelValues("mock", "calls")))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.latency))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.observations))
}

func TestNewPrometheusMetrics_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheusMetrics(reg)

	assert.Panics(t, func() { NewPrometheusMetrics(reg) }, "duplicate registration must panic")

	other := prometheus.NewRegistry()
	require.NotPanics(t, func() { NewPrometheusMetrics(other) })
}
