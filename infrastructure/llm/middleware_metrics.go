package llm

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-evoprompt/internal/domain"
	"github.com/ahrav/go-evoprompt/internal/ports"
)

// Metric names emitted by MetricsMiddleware.
const (
	MetricLLMLatency  = "llm_latency_seconds"
	MetricLLMRequests = "llm_requests_total"
	MetricLLMTokens   = "llm_tokens_total"
)

type metricsLLM struct {
	next      CoreLLM
	provider  string
	collector ports.MetricsCollector
}

// MetricsMiddleware records latency, request counts and token usage with
// provider, model and status labels. A nil collector disables recording.
func MetricsMiddleware(provider string, collector ports.MetricsCollector) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &metricsLLM{next: next, provider: provider, collector: collector}
	}
}

func (m *metricsLLM) DoRequest(ctx context.Context, req domain.GenerationRequest) (domain.Generation, error) {
	start := time.Now()
	gen, err := m.next.DoRequest(ctx, req)
	if m.collector == nil {
		return gen, err
	}

	model := req.Model
	if model == "" {
		model = m.next.GetModel()
	}
	labels := map[string]string{
		"provider": m.provider,
		"model":    model,
		"status":   requestStatus(err),
	}
	m.collector.RecordHistogram(MetricLLMLatency, time.Since(start).Seconds(), labels)
	m.collector.RecordCounter(MetricLLMRequests, 1, labels)

	if err == nil {
		in := map[string]string{"provider": m.provider, "model": model, "token_type": "input"}
		out := map[string]string{"provider": m.provider, "model": model, "token_type": "output"}
		m.collector.RecordCounter(MetricLLMTokens, float64(gen.TokensIn), in)
		m.collector.RecordCounter(MetricLLMTokens, float64(gen.TokensOut), out)
	}
	return gen, err
}

func requestStatus(err error) string {
	var pe *ProviderError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &pe) && pe.Type == ErrorTypeRateLimit:
		return "rate_limited"
	default:
		return "error"
	}
}

func (m *metricsLLM) GetModel() string  { return m.next.GetModel() }
func (m *metricsLLM) SetModel(s string) { m.next.SetModel(s) }
func (m *metricsLLM) Unwrap() CoreLLM   { return m.next }
