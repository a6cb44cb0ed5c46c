package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type constMetric struct {
	name  string
	score float64
}

func (m constMetric) Name() string { return m.name }

func (m constMetric) Evaluate(context.Context, string, string, string, ExecutionResult) (float64, error) {
	return m.score, nil
}

func TestTaskDefinition_Validate(t *testing.T) {
	valid := func() *TaskDefinition {
		return &TaskDefinition{
			Name:      "math",
			TestCases: []TestCase{{Input: "What is 1 + 1?", ExpectedOutput: "2"}},
			Metrics:   []EvaluationMetric{constMetric{name: "accuracy"}},
		}
	}

	tests := []struct {
		name    string
		task    *TaskDefinition
		wantErr error
	}{
		{name: "valid", task: valid()},
		{name: "nil", task: nil, wantErr: ErrInvalidTask},
		{name: "missing name", task: func() *TaskDefinition { d := valid(); d.Name = ""; return d }(), wantErr: ErrInvalidTask},
		{name: "no test cases", task: func() *TaskDefinition { d := valid(); d.TestCases = nil; return d }(), wantErr: ErrNoTestCases},
		{name: "no metrics", task: func() *TaskDefinition { d := valid(); d.Metrics = nil; return d }(), wantErr: ErrNoMetrics},
		{name: "nil metric", task: func() *TaskDefinition { d := valid(); d.Metrics = []EvaluationMetric{nil}; return d }(), wantErr: ErrNoMetrics},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			var cfgErr *ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestNewTaskEvaluationResult(t *testing.T) {
	results := []TestCaseResult{
		{Score: 1.0, Success: true, ExecutionTimeMs: 100},
		{Score: 0.0, Success: false, ExecutionTimeMs: 50, ErrorMessage: "boom"},
		{Score: 0.5, Success: true, ExecutionTimeMs: 150},
	}

	agg := NewTaskEvaluationResult("demo", results)

	assert.Equal(t, "demo", agg.TaskName)
	assert.InDelta(t, 0.5, agg.OverallScore, 1e-9)
	assert.InDelta(t, 2.0/3.0, agg.SuccessRate, 1e-9)
	assert.Equal(t, int64(300), agg.TotalExecutionTimeMs)
	assert.Len(t, agg.TestCaseResults, 3)

	empty := NewTaskEvaluationResult("none", nil)
	assert.Zero(t, empty.OverallScore)
	assert.Zero(t, empty.SuccessRate)
}
