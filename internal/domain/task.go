package domain

import (
	"context"
	"fmt"
)

// EvaluationMetric scores one test-case output in [0,1].
// Implementations must be safe for concurrent use and must return 0 when
// result reports a failed execution or actual is empty.
type EvaluationMetric interface {
	// Name identifies the metric in results and logs.
	Name() string

	// Evaluate compares actual against expected for the given input.
	Evaluate(ctx context.Context, input, expected, actual string, result ExecutionResult) (float64, error)
}

// TestCase is a single benchmark input with its reference answer.
type TestCase struct {
	Input          string         `json:"input" yaml:"input"`
	ExpectedOutput string         `json:"expected_output" yaml:"expected_output"`
	Metadata       map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// TaskDefinition is the benchmark a genome is scored against. It is
// immutable once loaded and shared read-only by all evaluations of a run.
type TaskDefinition struct {
	Name          string
	Description   string
	TestCases     []TestCase
	Metrics       []EvaluationMetric
	Configuration map[string]any
}

// Validate enforces the invariants the task runner relies on.
func (t *TaskDefinition) Validate() error {
	if t == nil {
		return NewConfigurationError("task", "task definition is nil", ErrInvalidTask)
	}
	if t.Name == "" {
		return NewConfigurationError("name", "task name is required", ErrInvalidTask)
	}
	if len(t.TestCases) == 0 {
		return NewConfigurationError("test_cases",
			fmt.Sprintf("task %q has no test cases", t.Name), ErrNoTestCases)
	}
	if len(t.Metrics) == 0 {
		return NewConfigurationError("metrics",
			fmt.Sprintf("task %q has no evaluation metrics", t.Name), ErrNoMetrics)
	}
	for i, m := range t.Metrics {
		if m == nil {
			return NewConfigurationError("metrics",
				fmt.Sprintf("metric %d of task %q is nil", i, t.Name), ErrNoMetrics)
		}
	}
	return nil
}

// MetricNames returns the names of the configured metrics in order.
func (t *TaskDefinition) MetricNames() []string {
	names := make([]string, len(t.Metrics))
	for i, m := range t.Metrics {
		names[i] = m.Name()
	}
	return names
}
