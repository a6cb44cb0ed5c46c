package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-evoprompt/internal/domain"
)

// LLMClient is the provider-agnostic text generation client used by the
// LLM-backed execution backend. Implementations must be safe for
// concurrent use.
type LLMClient interface {
	// Generate runs one non-streaming completion.
	Generate(ctx context.Context, req domain.GenerationRequest) (domain.Generation, error)

	// EstimateTokens returns an approximate token count for text, used when
	// a provider does not report usage.
	EstimateTokens(text string) (int, error)

	// GetModel returns the configured model name.
	GetModel() string
}

// HealthChecker is implemented by clients and backends that can probe the
// serving endpoint before a run starts.
type HealthChecker interface {
	// Ping returns nil when the endpoint is reachable and ready.
	Ping(ctx context.Context) error
}

// MetricsCollector records operational metrics. Labels are free-form; each
// implementation documents which labels it reads.
type MetricsCollector interface {
	// RecordLatency records the duration of an operation.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter adds value to a monotonically increasing counter.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram observes value in a distribution.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
