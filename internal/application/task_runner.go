package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-evoprompt/internal/domain"
	"github.com/ahrav/go-evoprompt/internal/ports"
)

var _ ports.TaskEvaluator = (*TaskRunner)(nil)

// TaskRunner evaluates a genome against every test case of a task through
// an ExecutionBackend and scores the outputs with the task's metrics.
//
// Every test case yields exactly one TestCaseResult, in test-case order.
// Backend errors, failed executions, timeouts, metric errors and panics are
// recorded as failed results with score 0 and never abort sibling cases.
//
// Concurrency: TaskRunner holds no per-evaluation state and is safe for
// concurrent use by multiple engine workers.
type TaskRunner struct {
	backend ports.ExecutionBackend
	config  RunnerConfig
	logger  *slog.Logger
	tracer  trace.Tracer
}

// RunnerOption configures a TaskRunner.
type RunnerOption func(*TaskRunner)

// WithRunnerLogger sets the logger used for per-case diagnostics.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *TaskRunner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRunnerTracer overrides the OpenTelemetry tracer.
func WithRunnerTracer(tracer trace.Tracer) RunnerOption {
	return func(r *TaskRunner) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// NewTaskRunner creates a TaskRunner. It returns a ConfigurationError when
// backend is nil or config is invalid.
func NewTaskRunner(backend ports.ExecutionBackend, config RunnerConfig, opts ...RunnerOption) (*TaskRunner, error) {
	if backend == nil {
		return nil, domain.NewConfigurationError("backend", "execution backend is required",
			domain.ErrInvalidConfiguration)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.CaseTimeout == 0 {
		config.CaseTimeout = DefaultCaseTimeout
	}

	r := &TaskRunner{
		backend: backend,
		config:  config,
		logger:  slog.Default(),
		tracer:  otel.Tracer("evoprompt-runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Config returns the runner configuration.
func (r *TaskRunner) Config() RunnerConfig { return r.config }

// Evaluate runs genome against every test case of task. It returns an error
// only when the task is invalid or ctx is done before all cases finished.
func (r *TaskRunner) Evaluate(
	ctx context.Context,
	genome domain.Genome,
	task *domain.TaskDefinition,
) (domain.TaskEvaluationResult, error) {
	if err := task.Validate(); err != nil {
		return domain.TaskEvaluationResult{}, err
	}

	ctx, span := r.tracer.Start(ctx, "TaskRunner.Evaluate",
		trace.WithAttributes(
			attribute.String("task.name", task.Name),
			attribute.Int("task.test_cases", len(task.TestCases)),
			attribute.Bool("runner.concurrent", r.config.Concurrent),
		),
	)
	defer span.End()

	results := make([]domain.TestCaseResult, len(task.TestCases))
	var err error
	if r.config.Concurrent {
		err = r.runConcurrent(ctx, genome, task, results)
	} else {
		err = r.runSequential(ctx, genome, task, results)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation interrupted")
		return domain.TaskEvaluationResult{}, err
	}

	out := domain.NewTaskEvaluationResult(task.Name, results)
	span.SetAttributes(
		attribute.Float64("result.overall_score", out.OverallScore),
		attribute.Float64("result.success_rate", out.SuccessRate),
	)
	return out, nil
}

// Fitness reduces result to the composite fitness using the runner's
// weights and time normalization.
func (r *TaskRunner) Fitness(result domain.TaskEvaluationResult, testCaseCount int) float64 {
	return CompositeFitness(result, testCaseCount, r.config.MaxReasonableTimePerCaseMs, r.config.Weights)
}

func (r *TaskRunner) runSequential(
	ctx context.Context,
	genome domain.Genome,
	task *domain.TaskDefinition,
	results []domain.TestCaseResult,
) error {
	for i, tc := range task.TestCases {
		if err := ctx.Err(); err != nil {
			return err
		}
		results[i] = r.runCase(ctx, genome, tc, task.Metrics)
	}
	return ctx.Err()
}

func (r *TaskRunner) runConcurrent(
	ctx context.Context,
	genome domain.Genome,
	task *domain.TaskDefinition,
	results []domain.TestCaseResult,
) error {
	limit := r.config.Workers
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	// Cases never return errors, so a plain group is enough; a failing case
	// must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(limit)
	for i, tc := range task.TestCases {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = r.runCase(ctx, genome, tc, task.Metrics)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// runCase executes and scores a single test case. It never returns an
// error; every failure mode becomes a failed TestCaseResult.
func (r *TaskRunner) runCase(
	ctx context.Context,
	genome domain.Genome,
	tc domain.TestCase,
	metrics []domain.EvaluationMetric,
) (out domain.TestCaseResult) {
	start := time.Now()
	out = domain.TestCaseResult{Input: tc.Input}

	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("%w: %v", domain.ErrMetricPanic, p)
			r.logger.ErrorContext(ctx, "test case panicked", "input", truncate(tc.Input, 80), "panic", p)
			out = failedCase(tc.Input, out.ActualOutput, err.Error(), time.Since(start).Milliseconds())
		}
	}()

	caseCtx, cancel := context.WithTimeout(ctx, r.config.CaseTimeout)
	defer cancel()

	res, err := r.backend.Execute(caseCtx, genome, tc.Input)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(caseCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s: %w", domain.ErrExecutionTimeout, r.config.CaseTimeout, err)
		}
		execErr := domain.NewExecutionError(tc.Input, err)
		r.logger.WarnContext(ctx, "backend execution failed", "input", truncate(tc.Input, 80), "error", execErr)
		return failedCase(tc.Input, "", execErr.Error(), elapsed.Milliseconds())
	}

	ms := res.ExecutionTimeMs
	if ms <= 0 {
		ms = elapsed.Milliseconds()
	}
	if !res.Success {
		msg := res.ErrorMessage
		if msg == "" {
			msg = "execution failed"
		}
		r.logger.DebugContext(ctx, "backend reported failure", "input", truncate(tc.Input, 80), "error", msg)
		return failedCase(tc.Input, res.Response, msg, ms)
	}
	out.ActualOutput = res.Response

	var sum float64
	for _, m := range metrics {
		score, err := m.Evaluate(ctx, tc.Input, tc.ExpectedOutput, res.Response, res)
		if err != nil {
			evalErr := domain.NewEvaluationError(m.Name(), err)
			r.logger.WarnContext(ctx, "metric evaluation failed", "metric", m.Name(), "error", evalErr)
			return failedCase(tc.Input, res.Response, evalErr.Error(), ms)
		}
		if !validScore(score) {
			evalErr := domain.NewEvaluationError(m.Name(), fmt.Errorf("%w: %v", domain.ErrScoreOutOfRange, score))
			r.logger.WarnContext(ctx, "metric returned invalid score", "metric", m.Name(), "score", score)
			return failedCase(tc.Input, res.Response, evalErr.Error(), ms)
		}
		sum += score
	}

	out.Score = sum / float64(len(metrics))
	out.Success = true
	out.ExecutionTimeMs = ms
	return out
}

// validScore reports whether s lies in [0,1]. NaN does not.
func validScore(s float64) bool { return s >= 0 && s <= 1 }

func failedCase(input, actual, msg string, ms int64) domain.TestCaseResult {
	return domain.TestCaseResult{
		Input:           input,
		ActualOutput:    actual,
		Score:           0,
		ExecutionTimeMs: ms,
		Success:         false,
		ErrorMessage:    msg,
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
