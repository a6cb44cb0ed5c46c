package ports

import (
	"context"

	"github.com/ahrav/go-evoprompt/internal/domain"
)

// ExecutionBackend runs a genome against one task input. It must be safe
// for concurrent invocation.
//
// A backend may report failure either through a returned error or through
// an ExecutionResult with Success=false; the task runner treats both as a
// failed test case.
type ExecutionBackend interface {
	Execute(ctx context.Context, genome domain.Genome, input string) (domain.ExecutionResult, error)
}

// TaskEvaluator scores a genome against every test case of a task.
type TaskEvaluator interface {
	// Evaluate runs all test cases and returns one result per case.
	// Per-case failures are absorbed into the result; only context
	// cancellation or an invalid task is returned as an error.
	Evaluate(ctx context.Context, genome domain.Genome, task *domain.TaskDefinition) (domain.TaskEvaluationResult, error)

	// Fitness reduces a TaskEvaluationResult to a scalar in [0,1].
	Fitness(result domain.TaskEvaluationResult, testCaseCount int) float64
}

// EvolutionObserver receives per-generation progress from the engine.
// Observers are called synchronously from the engine goroutine.
type EvolutionObserver interface {
	OnGeneration(ctx context.Context, runID string, stats domain.GenerationStats)
}

// MetricFactory builds a metric from its task-file parameters.
type MetricFactory func(params map[string]any) (domain.EvaluationMetric, error)

// MetricRegistry resolves metric type names to metrics.
type MetricRegistry interface {
	// CreateMetric builds a metric of metricType. Unknown types return an
	// error wrapping domain.ErrUnknownMetric.
	CreateMetric(metricType string, params map[string]any) (domain.EvaluationMetric, error)

	// RegisterMetricFactory adds or replaces a factory.
	RegisterMetricFactory(metricType string, factory MetricFactory) error

	// GetSupportedTypes lists the registered metric types.
	GetSupportedTypes() []string
}

// TaskSource produces validated task definitions.
type TaskSource interface {
	LoadFromFile(ctx context.Context, path string) (*domain.TaskDefinition, error)
}
