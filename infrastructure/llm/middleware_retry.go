package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ahrav/go-evoprompt/internal/domain"
)

// RetryConfig controls RetryMiddleware.
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig retries three times starting at 500ms, capped at 10s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}
}

type retryLLM struct {
	next   CoreLLM
	config RetryConfig
	sleep  func(ctx context.Context, d time.Duration) error
}

// RetryMiddleware retries transient provider failures with exponential
// backoff and jitter. Only errors reporting IsRetryable() == true are
// retried; an open circuit or a done context stops immediately.
func RetryMiddleware(config RetryConfig) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &retryLLM{next: next, config: config, sleep: sleepCtx}
	}
}

func (r *retryLLM) DoRequest(ctx context.Context, req domain.GenerationRequest) (domain.Generation, error) {
	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		gen, err := r.next.DoRequest(ctx, req)
		if err == nil {
			return gen, nil
		}
		lastErr = err

		if !shouldRetry(ctx, err) || attempt == r.config.MaxRetries {
			break
		}
		if err := r.sleep(ctx, r.calculateDelay(attempt)); err != nil {
			return domain.Generation{}, err
		}
	}

	if r.config.MaxRetries == 0 {
		return domain.Generation{}, lastErr
	}
	return domain.Generation{}, fmt.Errorf("request failed after retries: %w", lastErr)
}

func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var r interface{ IsRetryable() bool }
	return errors.As(err, &r) && r.IsRetryable()
}

// calculateDelay returns base·2^attempt with ±25% jitter, capped at
// MaxDelay.
func (r *retryLLM) calculateDelay(attempt int) time.Duration {
	attempt = min(max(attempt, 0), 30)
	delay := time.Duration(float64(r.config.BaseDelay) * float64(uint64(1)<<attempt))
	jitter := time.Duration(rand.Float64() * float64(delay) * 0.5)
	delay = delay + jitter - delay/4
	if r.config.MaxDelay > 0 && delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *retryLLM) GetModel() string  { return r.next.GetModel() }
func (r *retryLLM) SetModel(m string) { r.next.SetModel(m) }
func (r *retryLLM) Unwrap() CoreLLM   { return r.next }
