// Package telemetry exports run, LLM and budget metrics to Prometheus and
// turns per-generation engine progress into logs, metrics and trace events.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-evoprompt/internal/ports"
)

// Metric names routed to dedicated collectors. Anything else lands in the
// generic operation counter or state gauge.
const (
	MetricLLMRequests = "llm_requests_total"
	MetricLLMTokens   = "llm_tokens_total"
	MetricLLMLatency  = "llm_latency_seconds"

	MetricBudgetExceeded = "budget_exceeded_total"

	MetricGenerations        = "evolution_generations_total"
	MetricEvaluations        = "evolution_evaluations_total"
	MetricFailedEvals        = "evolution_failed_evaluations_total"
	MetricBestFitness        = "evolution_best_fitness"
	MetricMeanFitness        = "evolution_mean_fitness"
	MetricBestSoFar          = "evolution_best_so_far"
	MetricGenerationDuration = "evolution_generation_duration"
)

// PrometheusMetrics implements ports.MetricsCollector on Prometheus
// collectors.
type PrometheusMetrics struct {
	llmRequests  *prometheus.CounterVec
	llmTokens    *prometheus.CounterVec
	llmLatency   *prometheus.HistogramVec
	budgetBreach *prometheus.CounterVec
	evoCounters  *prometheus.CounterVec
	evoFitness   *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
	operations   *prometheus.CounterVec
	stateGauges  *prometheus.GaugeVec
	observations *prometheus.HistogramVec
}

var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics registers every collector with reg. A nil reg uses
// the default registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &PrometheusMetrics{
		llmRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricLLMRequests,
				Help: "LLM generation requests by provider, model and outcome.",
			},
			[]string{"provider", "model", "status"},
		),
		llmTokens: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricLLMTokens,
				Help: "Tokens reported or estimated for LLM requests.",
			},
			[]string{"provider", "model", "token_type"},
		),
		llmLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricLLMLatency,
				Help:    "LLM request latency.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 180},
			},
			[]string{"provider", "model", "status"},
		),
		budgetBreach: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricBudgetExceeded,
				Help: "Backend calls refused because the run budget was exhausted.",
			},
			[]string{"backend", "limit_type"},
		),
		evoCounters: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evolution_events_total",
				Help: "Generations, evaluations and failed evaluations per task.",
			},
			[]string{"event", "task"},
		),
		evoFitness: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "evolution_fitness",
				Help: "Fitness of the latest generation per task.",
			},
			[]string{"stat", "task"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "operation_duration_seconds",
				Help:    "Duration of engine and backend operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "component"},
		),
		operations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "operations_total",
				Help: "Counters without a dedicated collector.",
			},
			[]string{"metric", "component"},
		),
		stateGauges: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "system_state",
				Help: "Current values such as budget usage and breaker state.",
			},
			[]string{"metric", "component"},
		),
		observations: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "observations",
				Help:    "Histograms without a dedicated collector.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"metric", "component"},
		),
	}
}

// component picks the label identifying what emitted a generic metric.
func component(labels map[string]string) string {
	for _, k := range []string{"component", "backend", "provider", "task"} {
		if v := labels[k]; v != "" {
			return v
		}
	}
	return "unknown"
}

// RecordLatency observes duration in the operation histogram.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	pm.latency.WithLabelValues(operation, component(labels)).Observe(duration.Seconds())
}

// RecordCounter adds value to the counter named by metric.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case MetricLLMRequests:
		pm.llmRequests.WithLabelValues(labels["provider"], labels["model"], labels["status"]).Add(value)
	case MetricLLMTokens:
		pm.llmTokens.WithLabelValues(labels["provider"], labels["model"], labels["token_type"]).Add(value)
	case MetricBudgetExceeded:
		pm.budgetBreach.WithLabelValues(labels["backend"], labels["limit_type"]).Add(value)
	case MetricGenerations:
		pm.evoCounters.WithLabelValues("generation", labels["task"]).Add(value)
	case MetricEvaluations:
		pm.evoCounters.WithLabelValues("evaluation", labels["task"]).Add(value)
	case MetricFailedEvals:
		pm.evoCounters.WithLabelValues("failed_evaluation", labels["task"]).Add(value)
	default:
		pm.operations.WithLabelValues(metric, component(labels)).Add(value)
	}
}

// RecordGauge sets the gauge named by metric.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	switch metric {
	case MetricBestFitness:
		pm.evoFitness.WithLabelValues("best", labels["task"]).Set(value)
	case MetricMeanFitness:
		pm.evoFitness.WithLabelValues("mean", labels["task"]).Set(value)
	case MetricBestSoFar:
		pm.evoFitness.WithLabelValues("best_so_far", labels["task"]).Set(value)
	default:
		pm.stateGauges.WithLabelValues(metric, component(labels)).Set(value)
	}
}

// RecordHistogram observes value in the histogram named by metric.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	if metric == MetricLLMLatency {
		pm.llmLatency.WithLabelValues(labels["provider"], labels["model"], labels["status"]).Observe(value)
		return
	}
	pm.observations.WithLabelValues(metric, component(labels)).Observe(value)
}
