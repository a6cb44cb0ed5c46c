package domain

import (
	"errors"
	"fmt"
)

// Sentinel causes wrapped by the typed errors below.
var (
	// ErrInvalidTask indicates a malformed task definition.
	ErrInvalidTask = errors.New("invalid task definition")

	// ErrNoTestCases indicates a task without test cases.
	ErrNoTestCases = errors.New("task has no test cases")

	// ErrNoMetrics indicates a task without evaluation metrics.
	ErrNoMetrics = errors.New("task has no evaluation metrics")

	// ErrUnknownMetric indicates a metric type with no registered factory.
	ErrUnknownMetric = errors.New("unknown metric type")

	// ErrInvalidConfiguration indicates an invalid engine or runner setting.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrBackendFailure indicates the execution backend reported a failure.
	ErrBackendFailure = errors.New("execution backend failure")

	// ErrExecutionTimeout indicates a backend call exceeded its deadline.
	ErrExecutionTimeout = errors.New("execution timed out")

	// ErrMetricPanic indicates a metric panicked while scoring.
	ErrMetricPanic = errors.New("metric panicked")

	// ErrScoreOutOfRange indicates a metric returned a score outside [0,1]
	// or a non-finite value.
	ErrScoreOutOfRange = errors.New("score outside [0,1]")

	// ErrBudgetExceeded indicates a run exhausted its call or token budget.
	ErrBudgetExceeded = errors.New("budget exceeded")
)

// ConfigurationError reports invalid input detected before the evolution
// loop starts. It is always fatal.
type ConfigurationError struct {
	// Field names the offending setting or task attribute.
	Field string

	// Reason is a human readable description.
	Reason string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface for ConfigurationError.
func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: field=%s, %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error: field=%s, %s", e.Field, e.Reason)
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError creates a ConfigurationError.
func NewConfigurationError(field, reason string, err error) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason, Err: err}
}

// ExecutionError reports a backend failure for a single test case. The task
// runner records it as a failed TestCaseResult.
type ExecutionError struct {
	Input string
	Err   error
}

// Error implements the error interface for ExecutionError.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error { return e.Err }

// NewExecutionError creates an ExecutionError for input.
func NewExecutionError(input string, err error) *ExecutionError {
	return &ExecutionError{Input: input, Err: err}
}

// EvaluationError reports a failure inside a metric. The task runner records
// it as a failed TestCaseResult.
type EvaluationError struct {
	Metric string
	Err    error
}

// Error implements the error interface for EvaluationError.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation error: metric=%s, err=%v", e.Metric, e.Err)
}

// Unwrap returns the underlying error.
func (e *EvaluationError) Unwrap() error { return e.Err }

// NewEvaluationError creates an EvaluationError for metric.
func NewEvaluationError(metric string, err error) *EvaluationError {
	return &EvaluationError{Metric: metric, Err: err}
}

// EngineInvariantError reports a broken population or genotype invariant.
// It signals a programming defect and aborts the run.
type EngineInvariantError struct {
	Invariant string
	Detail    string
}

// Error implements the error interface for EngineInvariantError.
func (e *EngineInvariantError) Error() string {
	return fmt.Sprintf("engine invariant violated: %s: %s", e.Invariant, e.Detail)
}

// NewEngineInvariantError creates an EngineInvariantError.
func NewEngineInvariantError(invariant, detail string) *EngineInvariantError {
	return &EngineInvariantError{Invariant: invariant, Detail: detail}
}

// BudgetExceededError reports which budget limit a run ran into.
type BudgetExceededError struct {
	// LimitType is "calls" or "tokens".
	LimitType string
	Limit     int64
	Used      int64
}

// Error implements the error interface for BudgetExceededError.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded: %s used=%d limit=%d", e.LimitType, e.Used, e.Limit)
}

// Unwrap returns ErrBudgetExceeded so callers can match with errors.Is.
func (e *BudgetExceededError) Unwrap() error { return ErrBudgetExceeded }

// NewBudgetExceededError creates a BudgetExceededError.
func NewBudgetExceededError(limitType string, limit, used int64) *BudgetExceededError {
	return &BudgetExceededError{LimitType: limitType, Limit: limit, Used: used}
}

// ValidationError collects multiple validation failures for one entity.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}

// IsFatal reports whether err must abort a run: configuration and invariant
// errors propagate, everything else is absorbed per test case.
func IsFatal(err error) bool {
	var cfgErr *ConfigurationError
	var invErr *EngineInvariantError
	return errors.As(err, &cfgErr) || errors.As(err, &invErr)
}
