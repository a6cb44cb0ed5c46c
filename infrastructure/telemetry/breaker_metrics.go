package telemetry

import (
	"github.com/ahrav/go-evoprompt/infrastructure/llm"
	"github.com/ahrav/go-evoprompt/internal/ports"
)

// Circuit breaker metric names.
const (
	MetricBreakerState     = "llm_circuit_state"
	MetricBreakerTrips     = "llm_circuit_trips_total"
	MetricBreakerSuccesses = "llm_circuit_successes_total"
	MetricBreakerFailures  = "llm_circuit_failures_total"
)

var _ llm.CircuitBreakerMetrics = (*BreakerMetrics)(nil)

// BreakerMetrics forwards circuit breaker events for one provider to a
// MetricsCollector. The state gauge holds 0 (closed), 1 (open) or 2
// (half-open).
type BreakerMetrics struct {
	collector ports.MetricsCollector
	labels    map[string]string
}

// NewBreakerMetrics creates BreakerMetrics labelled with provider.
func NewBreakerMetrics(collector ports.MetricsCollector, provider string) *BreakerMetrics {
	return &BreakerMetrics{collector: collector, labels: map[string]string{"provider": provider}}
}

// RecordState sets the state gauge.
func (b *BreakerMetrics) RecordState(state llm.CircuitBreakerState) {
	b.collector.RecordGauge(MetricBreakerState, float64(state), b.labels)
}

// RecordTrip counts a transition to open.
func (b *BreakerMetrics) RecordTrip() {
	b.collector.RecordCounter(MetricBreakerTrips, 1, b.labels)
}

// RecordSuccess counts a call that succeeded through the breaker.
func (b *BreakerMetrics) RecordSuccess() {
	b.collector.RecordCounter(MetricBreakerSuccesses, 1, b.labels)
}

// RecordFailure counts a call that failed through the breaker.
func (b *BreakerMetrics) RecordFailure() {
	b.collector.RecordCounter(MetricBreakerFailures, 1, b.labels)
}
