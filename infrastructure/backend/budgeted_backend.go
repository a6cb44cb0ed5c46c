package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ahrav/go-evoprompt/internal/domain"
	"github.com/ahrav/go-evoprompt/internal/ports"
)

// Budget limits backend usage over one run. Zero means unlimited.
type Budget struct {
	// MaxTokens limits input plus output tokens.
	MaxTokens int64
	// MaxCalls limits Execute calls that reach the wrapped backend.
	MaxCalls int64
}

// Usage is the consumption recorded so far.
type Usage struct {
	Calls  int64
	Tokens int64
}

// BudgetObserver provides observability hooks around each budgeted call.
// PreCheck may return a derived context, which is passed to the wrapped
// backend and to PostCheck.
type BudgetObserver interface {
	PreCheck(ctx context.Context, usage Usage, budget Budget) context.Context
	PostCheck(ctx context.Context, usage Usage, budget Budget, elapsed time.Duration, err error)
}

// exceededRecorder is optionally implemented by a BudgetObserver to count
// refused calls.
type exceededRecorder interface {
	RecordExceeded(err error, budget Budget)
}

var _ ports.ExecutionBackend = (*BudgetedBackend)(nil)

// BudgetedBackend refuses calls once a run has used up its call or token
// budget. A call is admitted while usage is below every limit, so the last
// admitted call may overshoot the token limit by its own usage.
type BudgetedBackend struct {
	budget      Budget
	next        ports.ExecutionBackend
	observer    BudgetObserver
	onExhausted func(error)

	mu        sync.Mutex
	usage     Usage
	exhausted bool
}

// BudgetOption configures a BudgetedBackend.
type BudgetOption func(*BudgetedBackend)

// WithBudgetObserver attaches observability hooks.
func WithBudgetObserver(o BudgetObserver) BudgetOption {
	return func(b *BudgetedBackend) { b.observer = o }
}

// WithOnExhausted registers fn to be called once, with the
// *domain.BudgetExceededError, the first time a call is refused.
func WithOnExhausted(fn func(error)) BudgetOption {
	return func(b *BudgetedBackend) { b.onExhausted = fn }
}

// NewBudgetedBackend wraps next with budget enforcement.
func NewBudgetedBackend(budget Budget, next ports.ExecutionBackend, opts ...BudgetOption) (*BudgetedBackend, error) {
	if next == nil {
		return nil, fmt.Errorf("budgeted backend: next backend is required")
	}
	if budget.MaxTokens < 0 {
		return nil, domain.NewConfigurationError("budget.max_tokens",
			fmt.Sprintf("cannot be negative, got %d", budget.MaxTokens), domain.ErrInvalidConfiguration)
	}
	if budget.MaxCalls < 0 {
		return nil, domain.NewConfigurationError("budget.max_calls",
			fmt.Sprintf("cannot be negative, got %d", budget.MaxCalls), domain.ErrInvalidConfiguration)
	}

	b := &BudgetedBackend{budget: budget, next: next}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Execute admits the call if the budget allows it, runs the wrapped
// backend and records the tokens it reports. A refused call returns a
// failed result and a *domain.BudgetExceededError.
func (b *BudgetedBackend) Execute(ctx context.Context, genome domain.Genome, input string) (domain.ExecutionResult, error) {
	usage, err := b.admit()
	if err != nil {
		if r, ok := b.observer.(exceededRecorder); ok {
			r.RecordExceeded(err, b.budget)
		}
		return domain.FailedExecution(err.Error(), 0), err
	}

	if b.observer != nil {
		ctx = b.observer.PreCheck(ctx, usage, b.budget)
	}

	start := time.Now()
	res, err := b.next.Execute(ctx, genome, input)
	elapsed := time.Since(start)

	final := b.record(int64(res.InputTokens + res.OutputTokens))
	if b.observer != nil {
		b.observer.PostCheck(ctx, final, b.budget, elapsed, err)
	}
	return res, err
}

// Usage returns the consumption recorded so far.
func (b *BudgetedBackend) Usage() Usage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.usage
}

// Budget returns the configured limits.
func (b *BudgetedBackend) Budget() Budget { return b.budget }

func (b *BudgetedBackend) admit() (Usage, error) {
	b.mu.Lock()
	err := b.check(b.usage)
	if err == nil {
		b.usage.Calls++
		usage := b.usage
		b.mu.Unlock()
		return usage, nil
	}
	first := !b.exhausted
	b.exhausted = true
	b.mu.Unlock()

	if first && b.onExhausted != nil {
		b.onExhausted(err)
	}
	return Usage{}, err
}

func (b *BudgetedBackend) record(tokens int64) Usage {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.usage.Tokens += tokens
	return b.usage
}

// check reports whether another call may start at usage.
func (b *BudgetedBackend) check(usage Usage) error {
	if b.budget.MaxCalls > 0 && usage.Calls >= b.budget.MaxCalls {
		return domain.NewBudgetExceededError("calls", b.budget.MaxCalls, usage.Calls)
	}
	if b.budget.MaxTokens > 0 && usage.Tokens >= b.budget.MaxTokens {
		return domain.NewBudgetExceededError("tokens", b.budget.MaxTokens, usage.Tokens)
	}
	return nil
}
