package testutils

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ahrav/go-evoprompt/internal/domain"
	"github.com/ahrav/go-evoprompt/internal/ports"
)

var (
	_ ports.ExecutionBackend = (*ScriptedBackend)(nil)
	_ ports.TaskEvaluator    = (*FuncEvaluator)(nil)
)

// ScriptedStep is the canned behavior for one input.
type ScriptedStep struct {
	// Response is returned on success.
	Response string
	// Err, when set, is returned instead of a result.
	Err error
	// Fail returns Success=false with ErrorMessage instead of an error.
	Fail         bool
	ErrorMessage string
	// Panic makes Execute panic with this value.
	Panic any
	// ExecutionTimeMs is reported in the result.
	ExecutionTimeMs int64
	// Block waits for ctx to end before returning its error.
	Block bool
}

// ScriptedBackend is a deterministic ExecutionBackend keyed by input.
// Inputs without a script echo the rendered prompt.
// It is safe for concurrent use.
type ScriptedBackend struct {
	mu     sync.RWMutex
	steps  map[string]ScriptedStep
	calls  atomic.Int64
	inputs sync.Map // input -> *atomic.Int64
}

// NewScriptedBackend creates a backend with the given steps.
func NewScriptedBackend(steps map[string]ScriptedStep) *ScriptedBackend {
	if steps == nil {
		steps = make(map[string]ScriptedStep)
	}
	return &ScriptedBackend{steps: steps}
}

// Set installs or replaces the step for input.
func (b *ScriptedBackend) Set(input string, step ScriptedStep) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.steps[input] = step
}

// Execute runs the scripted step for input.
func (b *ScriptedBackend) Execute(ctx context.Context, genome domain.Genome, input string) (domain.ExecutionResult, error) {
	b.calls.Add(1)
	c, _ := b.inputs.LoadOrStore(input, new(atomic.Int64))
	c.(*atomic.Int64).Add(1)

	b.mu.RLock()
	step, ok := b.steps[input]
	b.mu.RUnlock()

	if !ok {
		return domain.ExecutionResult{
			Response:        genome.RenderPrompt(input),
			Success:         true,
			ExecutionTimeMs: 1,
		}, nil
	}

	switch {
	case step.Block:
		<-ctx.Done()
		return domain.ExecutionResult{}, ctx.Err()
	case step.Panic != nil:
		panic(step.Panic)
	case step.Err != nil:
		return domain.ExecutionResult{}, step.Err
	case step.Fail:
		return domain.ExecutionResult{
			Success:         false,
			ErrorMessage:    step.ErrorMessage,
			ExecutionTimeMs: step.ExecutionTimeMs,
		}, nil
	}

	return domain.ExecutionResult{
		Response:        step.Response,
		Success:         true,
		ExecutionTimeMs: step.ExecutionTimeMs,
		InputTokens:     len(input) / 4,
		OutputTokens:    len(step.Response) / 4,
	}, nil
}

// Calls returns the total number of Execute invocations.
func (b *ScriptedBackend) Calls() int64 { return b.calls.Load() }

// CallsFor returns the number of Execute invocations for input.
func (b *ScriptedBackend) CallsFor(input string) int64 {
	c, ok := b.inputs.Load(input)
	if !ok {
		return 0
	}
	return c.(*atomic.Int64).Load()
}

// FuncEvaluator is a TaskEvaluator backed by a scoring function of the
// genome. Fitness returns OverallScore unchanged.
type FuncEvaluator struct {
	Score func(ctx context.Context, g domain.Genome) (float64, error)

	calls atomic.Int64
}

// Evaluate scores g with Score and wraps it in a one-case result.
func (e *FuncEvaluator) Evaluate(ctx context.Context, g domain.Genome, task *domain.TaskDefinition) (domain.TaskEvaluationResult, error) {
	e.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return domain.TaskEvaluationResult{}, err
	}
	score, err := e.Score(ctx, g)
	if err != nil {
		return domain.TaskEvaluationResult{}, err
	}
	if !(score >= 0 && score <= 1) {
		return domain.TaskEvaluationResult{}, fmt.Errorf("score %v outside [0,1]", score)
	}
	return domain.NewTaskEvaluationResult(task.Name, []domain.TestCaseResult{{
		Input:   "genome",
		Score:   score,
		Success: true,
	}}), nil
}

// Fitness returns the overall score.
func (e *FuncEvaluator) Fitness(result domain.TaskEvaluationResult, _ int) float64 {
	return result.OverallScore
}

// Calls returns the number of Evaluate invocations.
func (e *FuncEvaluator) Calls() int64 { return e.calls.Load() }
