package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-evoprompt/internal/domain"
)

type rateLimitedLLM struct {
	next    CoreLLM
	limiter *rate.Limiter
}

// RateLimitMiddleware shares one token bucket across every request made
// through the wrapped provider. Requests wait for a token or for ctx.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)
	return func(next CoreLLM) CoreLLM {
		return &rateLimitedLLM{next: next, limiter: limiter}
	}
}

func (r *rateLimitedLLM) DoRequest(ctx context.Context, req domain.GenerationRequest) (domain.Generation, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return domain.Generation{}, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.DoRequest(ctx, req)
}

func (r *rateLimitedLLM) GetModel() string  { return r.next.GetModel() }
func (r *rateLimitedLLM) SetModel(m string) { r.next.SetModel(m) }
func (r *rateLimitedLLM) Unwrap() CoreLLM   { return r.next }
