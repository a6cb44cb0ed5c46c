package llm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-evoprompt/internal/domain"
)

const tracerName = "github.com/ahrav/go-evoprompt/infrastructure/llm"

type tracedLLM struct {
	next     CoreLLM
	provider string
	tracer   trace.Tracer
}

// TracingMiddleware opens an "llm.generate" span per request using the
// global tracer provider.
func TracingMiddleware(provider string) Middleware {
	return TracingMiddlewareWithTracer(provider, otel.Tracer(tracerName))
}

// TracingMiddlewareWithTracer is TracingMiddleware with an explicit tracer.
func TracingMiddlewareWithTracer(provider string, tracer trace.Tracer) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &tracedLLM{next: next, provider: provider, tracer: tracer}
	}
}

func (t *tracedLLM) DoRequest(ctx context.Context, req domain.GenerationRequest) (domain.Generation, error) {
	ctx, span := t.tracer.Start(ctx, "llm.generate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.provider", t.provider),
			attribute.String("llm.model", req.Model),
			attribute.Int("llm.max_tokens", req.MaxTokens),
			attribute.String("llm.response_format", req.Format),
		),
	)
	defer span.End()

	gen, err := t.next.DoRequest(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return gen, err
	}
	span.SetAttributes(
		attribute.Int("llm.tokens_in", gen.TokensIn),
		attribute.Int("llm.tokens_out", gen.TokensOut),
	)
	return gen, nil
}

func (t *tracedLLM) GetModel() string  { return t.next.GetModel() }
func (t *tracedLLM) SetModel(m string) { t.next.SetModel(m) }
func (t *tracedLLM) Unwrap() CoreLLM   { return t.next }
