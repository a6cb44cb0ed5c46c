package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ahrav/go-evoprompt/internal/domain"
)

// ErrCircuitOpen is returned without calling the provider while the
// breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState is the state of a CircuitBreaker.
type CircuitBreakerState int

const (
	// StateClosed passes every request through.
	StateClosed CircuitBreakerState = iota
	// StateOpen rejects requests until the cooldown elapses.
	StateOpen
	// StateHalfOpen admits a single probe request.
	StateHalfOpen
)

// String returns the lower-case state name.
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerMetrics observes breaker activity.
type CircuitBreakerMetrics interface {
	RecordState(state CircuitBreakerState)
	RecordTrip()
	RecordSuccess()
	RecordFailure()
}

// CircuitBreaker opens after maxFailures consecutive failures and probes
// the provider once per cooldown while open. The provider call itself runs
// outside the lock, so concurrent evaluations are not serialized.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            CircuitBreakerState
	failureCount     int
	maxFailures      int
	cooldownDuration time.Duration
	openedAt         time.Time
	probing          bool
	now              func() time.Time
}

// NewCircuitBreaker creates a closed breaker. maxFailures below one is
// treated as one.
func NewCircuitBreaker(maxFailures int, cooldownDuration time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            StateClosed,
		maxFailures:      max(maxFailures, 1),
		cooldownDuration: cooldownDuration,
		now:              time.Now,
	}
}

// Call runs fn unless the breaker rejects it with ErrCircuitOpen.
func (cb *CircuitBreaker) Call(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.record(probe, err)
	return err
}

func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldownDuration {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probing = true
		return true, nil
	case StateHalfOpen:
		if cb.probing {
			return false, ErrCircuitOpen
		}
		cb.probing = true
		return true, nil
	default:
		return false, nil
	}
}

func (cb *CircuitBreaker) record(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probing = false
	}
	// Caller cancellation says nothing about provider health.
	if errors.Is(err, context.Canceled) {
		if probe {
			cb.state = StateOpen
		}
		return
	}
	if err == nil {
		cb.failureCount = 0
		cb.state = StateClosed
		return
	}

	cb.failureCount++
	if probe || cb.failureCount >= cb.maxFailures {
		cb.state = StateOpen
		cb.openedAt = cb.now()
	}
}

// GetState returns the current state.
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

type circuitBreakerLLM struct {
	next    CoreLLM
	cb      *CircuitBreaker
	metrics CircuitBreakerMetrics
}

// CircuitBreakerMiddleware wraps a provider in a CircuitBreaker.
func CircuitBreakerMiddleware(maxFailures int, cooldown time.Duration) Middleware {
	return CircuitBreakerMiddlewareWithMetrics(maxFailures, cooldown, nil)
}

// CircuitBreakerMiddlewareWithMetrics is CircuitBreakerMiddleware with an
// observer. metrics may be nil.
func CircuitBreakerMiddlewareWithMetrics(maxFailures int, cooldown time.Duration, metrics CircuitBreakerMetrics) Middleware {
	cb := NewCircuitBreaker(maxFailures, cooldown)
	return func(next CoreLLM) CoreLLM {
		return &circuitBreakerLLM{next: next, cb: cb, metrics: metrics}
	}
}

func (c *circuitBreakerLLM) DoRequest(ctx context.Context, req domain.GenerationRequest) (domain.Generation, error) {
	var gen domain.Generation
	err := c.cb.Call(func() error {
		var err error
		gen, err = c.next.DoRequest(ctx, req)
		return err
	})

	if c.metrics != nil {
		switch {
		case err == nil:
			c.metrics.RecordSuccess()
		case errors.Is(err, ErrCircuitOpen):
			c.metrics.RecordTrip()
		default:
			c.metrics.RecordFailure()
		}
		c.metrics.RecordState(c.cb.GetState())
	}
	return gen, err
}

func (c *circuitBreakerLLM) GetModel() string  { return c.next.GetModel() }
func (c *circuitBreakerLLM) SetModel(m string) { c.next.SetModel(m) }
func (c *circuitBreakerLLM) Unwrap() CoreLLM   { return c.next }
