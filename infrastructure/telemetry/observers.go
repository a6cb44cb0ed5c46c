package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-evoprompt/internal/domain"
	"github.com/ahrav/go-evoprompt/internal/ports"
)

var (
	_ ports.EvolutionObserver = (*LoggingObserver)(nil)
	_ ports.EvolutionObserver = (*MetricsObserver)(nil)
	_ ports.EvolutionObserver = (*TracingObserver)(nil)
	_ ports.EvolutionObserver = Observers(nil)
)

// Observers fans one notification out to several observers in order.
type Observers []ports.EvolutionObserver

// OnGeneration implements ports.EvolutionObserver.
func (obs Observers) OnGeneration(ctx context.Context, runID string, stats domain.GenerationStats) {
	for _, o := range obs {
		o.OnGeneration(ctx, runID, stats)
	}
}

// LoggingObserver writes one Info record per generation.
type LoggingObserver struct {
	logger *slog.Logger
}

// NewLoggingObserver creates a LoggingObserver. A nil logger uses
// slog.Default.
func NewLoggingObserver(logger *slog.Logger) *LoggingObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{logger: logger}
}

// OnGeneration implements ports.EvolutionObserver.
func (o *LoggingObserver) OnGeneration(ctx context.Context, runID string, stats domain.GenerationStats) {
	o.logger.InfoContext(ctx, "generation",
		slog.String("run_id", runID),
		slog.Int("generation", stats.Generation),
		slog.Float64("best", stats.BestFitness),
		slog.Float64("mean", stats.MeanFitness),
		slog.Float64("min", stats.MinFitness),
		slog.Float64("best_so_far", stats.BestSoFar),
		slog.Int("evaluated", stats.Evaluated),
		slog.Int("failed", stats.Failed),
		slog.Duration("elapsed", stats.Elapsed),
	)
}

// MetricsObserver reports generation statistics to a MetricsCollector,
// labelled by task.
type MetricsObserver struct {
	collector ports.MetricsCollector
	task      string
}

// NewMetricsObserver creates a MetricsObserver.
func NewMetricsObserver(collector ports.MetricsCollector, task string) *MetricsObserver {
	return &MetricsObserver{collector: collector, task: task}
}

// OnGeneration implements ports.EvolutionObserver.
func (o *MetricsObserver) OnGeneration(_ context.Context, _ string, stats domain.GenerationStats) {
	if o.collector == nil {
		return
	}
	labels := map[string]string{"task": o.task}
	o.collector.RecordCounter(MetricGenerations, 1, labels)
	o.collector.RecordCounter(MetricEvaluations, float64(stats.Evaluated), labels)
	o.collector.RecordCounter(MetricFailedEvals, float64(stats.Failed), labels)
	o.collector.RecordGauge(MetricBestFitness, stats.BestFitness, labels)
	o.collector.RecordGauge(MetricMeanFitness, stats.MeanFitness, labels)
	o.collector.RecordGauge(MetricBestSoFar, stats.BestSoFar, labels)
	o.collector.RecordLatency(MetricGenerationDuration, stats.Elapsed, labels)
}

// TracingObserver adds a "generation" event to the span active in the
// engine's context, which is the run span.
type TracingObserver struct{}

// NewTracingObserver creates a TracingObserver.
func NewTracingObserver() *TracingObserver { return &TracingObserver{} }

// OnGeneration implements ports.EvolutionObserver.
func (TracingObserver) OnGeneration(ctx context.Context, _ string, stats domain.GenerationStats) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent("generation", trace.WithAttributes(
		attribute.Int("generation", stats.Generation),
		attribute.Float64("fitness.best", stats.BestFitness),
		attribute.Float64("fitness.mean", stats.MeanFitness),
		attribute.Float64("fitness.best_so_far", stats.BestSoFar),
		attribute.Int("evaluated", stats.Evaluated),
		attribute.Int("failed", stats.Failed),
	))
}
