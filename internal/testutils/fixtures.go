package testutils

import (
	"context"

	"github.com/ahrav/go-evoprompt/internal/domain"
)

// ExactMatchMetric scores 1 when actual equals expected. It honors the
// EvaluationMetric contract of returning 0 for failed executions.
type ExactMatchMetric struct{}

// Name returns "exact".
func (ExactMatchMetric) Name() string { return "exact" }

// Evaluate compares actual and expected byte for byte.
func (ExactMatchMetric) Evaluate(_ context.Context, _, expected, actual string, r domain.ExecutionResult) (float64, error) {
	if !r.Success || actual == "" {
		return 0, nil
	}
	if actual == expected {
		return 1, nil
	}
	return 0, nil
}

// ConstMetric returns Value for every successful output, or Err if set.
type ConstMetric struct {
	MetricName string
	Value      float64
	Err        error
	Panic      any
}

// Name returns MetricName.
func (m ConstMetric) Name() string { return m.MetricName }

// Evaluate returns the configured value.
func (m ConstMetric) Evaluate(context.Context, string, string, string, domain.ExecutionResult) (float64, error) {
	if m.Panic != nil {
		panic(m.Panic)
	}
	if m.Err != nil {
		return 0, m.Err
	}
	return m.Value, nil
}

// NewTask builds a TaskDefinition from input/expected pairs.
func NewTask(name string, pairs [][2]string, metrics ...domain.EvaluationMetric) *domain.TaskDefinition {
	if len(metrics) == 0 {
		metrics = []domain.EvaluationMetric{ExactMatchMetric{}}
	}
	cases := make([]domain.TestCase, len(pairs))
	for i, p := range pairs {
		cases[i] = domain.TestCase{Input: p[0], ExpectedOutput: p[1]}
	}
	return &domain.TaskDefinition{
		Name:          name,
		Description:   "test task " + name,
		TestCases:     cases,
		Metrics:       metrics,
		Configuration: map[string]any{},
	}
}

// ArithmeticTask returns the three-case arithmetic task used across tests.
func ArithmeticTask() *domain.TaskDefinition {
	return NewTask("arithmetic", [][2]string{
		{"15 + 27", "42"},
		{"8 * 9", "72"},
		{"144 / 12", "12"},
	})
}
