package llm

import (
	"sync"
	"time"

	"github.com/ahrav/go-evoprompt/internal/domain"
)

type recordedSample struct {
	metric string
	value  float64
	labels map[string]string
}

// captureCollector records every ports.MetricsCollector call.
type captureCollector struct {
	mu         sync.Mutex
	counters   []recordedSample
	histograms []recordedSample
}

func (c *captureCollector) RecordLatency(string, time.Duration, map[string]string) {}
func (c *captureCollector) RecordGauge(string, float64, map[string]string)         {}

func (c *captureCollector) RecordCounter(metric string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters = append(c.counters, recordedSample{metric, value, labels})
}

func (c *captureCollector) RecordHistogram(metric string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.histograms = append(c.histograms, recordedSample{metric, value, labels})
}

func (c *captureCollector) counterSum(metric string, match map[string]string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sum float64
	for _, s := range c.counters {
		if s.metric == metric && labelsMatch(s.labels, match) {
			sum += s.value
		}
	}
	return sum
}

func labelsMatch(labels, want map[string]string) bool {
	for k, v := range want {
		if labels[k] != v {
			return false
		}
	}
	return true
}

type breakerEvents struct {
	mu        sync.Mutex
	states    []CircuitBreakerState
	trips     int
	successes int
	failures  int
}

func (b *breakerEvents) RecordState(s CircuitBreakerState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states = append(b.states, s)
}
func (b *breakerEvents) RecordTrip()    { b.mu.Lock(); b.trips++; b.mu.Unlock() }
func (b *breakerEvents) RecordSuccess() { b.mu.Lock(); b.successes++; b.mu.Unlock() }
func (b *breakerEvents) RecordFailure() { b.mu.Lock(); b.failures++; b.mu.Unlock() }

func testRequest(prompt string) domain.GenerationRequest {
	return domain.NewGenerationRequest(domain.DefaultGenome(), prompt)
}

func retryableErr() error {
	return NewProviderError("test", ErrorTypeServerError, 503, "overloaded", nil)
}

func permanentErr() error {
	return NewProviderError("test", ErrorTypeAuthentication, 401, "bad key", nil)
}
