package domain

import "time"

// ExecutionResult is what an ExecutionBackend reports for one prompt.
type ExecutionResult struct {
	Response        string `json:"response"`
	Success         bool   `json:"success"`
	ErrorMessage    string `json:"error_message,omitempty"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	InputTokens     int    `json:"input_tokens"`
	OutputTokens    int    `json:"output_tokens"`
}

// FailedExecution builds a failed ExecutionResult carrying msg.
func FailedExecution(msg string, elapsed time.Duration) ExecutionResult {
	return ExecutionResult{
		Success:         false,
		ErrorMessage:    msg,
		ExecutionTimeMs: elapsed.Milliseconds(),
	}
}

// TestCaseResult is the scored outcome of one test case.
type TestCaseResult struct {
	Input           string  `json:"input"`
	ActualOutput    string  `json:"actual_output"`
	Score           float64 `json:"score"`
	ExecutionTimeMs int64   `json:"execution_time_ms"`
	Success         bool    `json:"success"`
	ErrorMessage    string  `json:"error_message,omitempty"`
}

// TaskEvaluationResult aggregates all test cases of a task for one genome.
// TestCaseResults is in test-case order and has one entry per case.
type TaskEvaluationResult struct {
	TaskName             string           `json:"task_name"`
	OverallScore         float64          `json:"overall_score"`
	SuccessRate          float64          `json:"success_rate"`
	TotalExecutionTimeMs int64            `json:"total_execution_time_ms"`
	TestCaseResults      []TestCaseResult `json:"test_case_results"`
}

// NewTaskEvaluationResult computes the aggregates over results.
func NewTaskEvaluationResult(taskName string, results []TestCaseResult) TaskEvaluationResult {
	out := TaskEvaluationResult{
		TaskName:        taskName,
		TestCaseResults: results,
	}
	if len(results) == 0 {
		return out
	}

	var scoreSum float64
	var successes int
	for _, r := range results {
		scoreSum += r.Score
		if r.Success {
			successes++
		}
		out.TotalExecutionTimeMs += r.ExecutionTimeMs
	}
	out.OverallScore = scoreSum / float64(len(results))
	out.SuccessRate = float64(successes) / float64(len(results))
	return out
}

// GenerationStats summarizes one completed generation.
type GenerationStats struct {
	Generation  int           `json:"generation"`
	BestFitness float64       `json:"best_fitness"`
	MeanFitness float64       `json:"mean_fitness"`
	MinFitness  float64       `json:"min_fitness"`
	BestSoFar   float64       `json:"best_so_far"`
	Evaluated   int           `json:"evaluated"`
	Failed      int           `json:"failed"`
	Elapsed     time.Duration `json:"elapsed"`
}
