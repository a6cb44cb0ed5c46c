package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ahrav/go-evoprompt/internal/domain"
)

// errSimulated is returned by MockCoreLLM when it must fail without a
// configured Error.
var errSimulated = errors.New("simulated failure")

// MockCoreLLM is a scriptable CoreLLM for middleware and client tests.
type MockCoreLLM struct {
	mu sync.Mutex

	Response      string
	TokensIn      int
	TokensOut     int
	Error         error
	Model         string
	ResponseDelay time.Duration

	// FailUntilAttempt fails the first N calls, then succeeds.
	FailUntilAttempt int

	CallCount      int
	LastRequest    domain.GenerationRequest
	LastContext    context.Context
	CallTimestamps []time.Time
}

// NewMockCoreLLM returns a mock that answers "test response" with 10 input
// and 20 output tokens.
func NewMockCoreLLM() *MockCoreLLM {
	return &MockCoreLLM{
		Response:  "test response",
		TokensIn:  10,
		TokensOut: 20,
		Model:     "test-model",
	}
}

// DoRequest records the call and returns the scripted outcome.
func (m *MockCoreLLM) DoRequest(ctx context.Context, req domain.GenerationRequest) (domain.Generation, error) {
	m.mu.Lock()
	m.CallCount++
	call := m.CallCount
	m.LastRequest = req
	m.LastContext = ctx
	m.CallTimestamps = append(m.CallTimestamps, time.Now())
	delay, failUntil, scriptedErr := m.ResponseDelay, m.FailUntilAttempt, m.Error
	gen := domain.Generation{Text: m.Response, Model: m.Model, TokensIn: m.TokensIn, TokensOut: m.TokensOut}
	m.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return domain.Generation{}, ctx.Err()
		}
	}

	if failUntil > 0 {
		if call > failUntil {
			return gen, nil
		}
		if scriptedErr != nil {
			return domain.Generation{}, scriptedErr
		}
		return domain.Generation{}, errSimulated
	}
	if scriptedErr != nil {
		return domain.Generation{}, scriptedErr
	}
	return gen, nil
}

// GetModel returns the mock's model.
func (m *MockCoreLLM) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Model
}

// SetModel replaces the mock's model.
func (m *MockCoreLLM) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Model = model
}

// GetCallCount returns the number of DoRequest calls.
func (m *MockCoreLLM) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// GetLastRequest returns the most recent request.
func (m *MockCoreLLM) GetLastRequest() domain.GenerationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LastRequest
}

// GetTimeBetweenCalls returns the gap between two recorded calls, or nil
// if either index is out of range.
func (m *MockCoreLLM) GetTimeBetweenCalls(call1, call2 int) *time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if call1 < 0 || call2 < 0 || call1 >= len(m.CallTimestamps) || call2 >= len(m.CallTimestamps) {
		return nil
	}
	d := m.CallTimestamps[call2].Sub(m.CallTimestamps[call1])
	return &d
}
