package llm

import (
	"context"
	"time"

	"github.com/ahrav/go-evoprompt/internal/domain"
)

type timeoutLLM struct {
	next    CoreLLM
	timeout time.Duration
}

// TimeoutMiddleware bounds each request. A non-positive timeout disables
// the bound; an earlier parent deadline always wins.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &timeoutLLM{next: next, timeout: timeout}
	}
}

func (t *timeoutLLM) DoRequest(ctx context.Context, req domain.GenerationRequest) (domain.Generation, error) {
	if t.timeout <= 0 {
		return t.next.DoRequest(ctx, req)
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.DoRequest(ctx, req)
}

func (t *timeoutLLM) GetModel() string  { return t.next.GetModel() }
func (t *timeoutLLM) SetModel(m string) { t.next.SetModel(m) }
func (t *timeoutLLM) Unwrap() CoreLLM   { return t.next }
