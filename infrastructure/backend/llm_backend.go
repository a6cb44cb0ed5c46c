// Package backend implements ports.ExecutionBackend: an LLM-backed backend
// over any ports.LLMClient, a deterministic mock for offline runs, and a
// budget-enforcing wrapper.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ahrav/go-evoprompt/internal/domain"
	"github.com/ahrav/go-evoprompt/internal/ports"
)

// DefaultLLMTimeout bounds one generation call.
const DefaultLLMTimeout = 3 * time.Minute

var (
	_ ports.ExecutionBackend = (*LLMBackend)(nil)
	_ ports.HealthChecker    = (*LLMBackend)(nil)
)

// styleDirectives are appended to the rendered prompt. StyleDirect adds
// nothing so the baseline template is sent unchanged.
var styleDirectives = map[domain.InstructionStyle]string{
	domain.StyleConcise:    "Answer as briefly as possible.",
	domain.StyleAnalytical: "Analyze the problem carefully before giving the final answer.",
	domain.StyleStepByStep: "Work through the problem step by step, then state the final answer.",
}

var toolDirectives = map[domain.ToolPolicy]string{
	domain.ToolOptional: "You may use tools if they help.",
	domain.ToolRequired: "You must use the available tools to answer.",
}

// LLMBackend runs a genome by rendering its prompt and sending it, with the
// genome's decoding parameters, to an LLM client.
type LLMBackend struct {
	client  ports.LLMClient
	timeout time.Duration
	logger  *slog.Logger
}

// LLMBackendOption configures an LLMBackend.
type LLMBackendOption func(*LLMBackend)

// WithTimeout overrides DefaultLLMTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) LLMBackendOption {
	return func(b *LLMBackend) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithLogger sets the logger used for failed calls.
func WithLogger(logger *slog.Logger) LLMBackendOption {
	return func(b *LLMBackend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewLLMBackend creates a backend over client.
func NewLLMBackend(client ports.LLMClient, opts ...LLMBackendOption) (*LLMBackend, error) {
	if client == nil {
		return nil, fmt.Errorf("llm backend: client is required")
	}
	b := &LLMBackend{
		client:  client,
		timeout: DefaultLLMTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Execute renders the prompt for input and runs one generation. Provider
// failures are reported as a failed ExecutionResult; only cancellation of
// ctx is returned as an error.
func (b *LLMBackend) Execute(ctx context.Context, genome domain.Genome, input string) (domain.ExecutionResult, error) {
	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req := domain.NewGenerationRequest(genome, RenderPrompt(genome, input))
	gen, err := b.client.Generate(callCtx, req)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return domain.FailedExecution("execution canceled", elapsed), ctx.Err()
		}
		b.logger.ErrorContext(ctx, "llm execution failed",
			"model", b.client.GetModel(),
			"elapsed", elapsed,
			"error", err,
		)
		return domain.FailedExecution("execution failed: "+err.Error(), elapsed), nil
	}

	return domain.ExecutionResult{
		Response:        strings.TrimSpace(gen.Text),
		Success:         true,
		ExecutionTimeMs: elapsed.Milliseconds(),
		InputTokens:     gen.TokensIn,
		OutputTokens:    gen.TokensOut,
	}, nil
}

// Ping probes the client's endpoint. Clients that cannot be probed are
// assumed reachable.
func (b *LLMBackend) Ping(ctx context.Context) error {
	hc, ok := b.client.(ports.HealthChecker)
	if !ok {
		return nil
	}
	if err := hc.Ping(ctx); err != nil {
		return fmt.Errorf("backend unavailable (model %s): %w", b.client.GetModel(), err)
	}
	return nil
}

// RenderPrompt fills the genome's template and appends the style and tool
// directives.
func RenderPrompt(genome domain.Genome, input string) string {
	var sb strings.Builder
	sb.WriteString(genome.RenderPrompt(input))
	for _, d := range []string{styleDirectives[genome.InstructionStyle], toolDirectives[genome.ToolPolicy]} {
		if d == "" {
			continue
		}
		sb.WriteString("\n\n")
		sb.WriteString(d)
	}
	return sb.String()
}
