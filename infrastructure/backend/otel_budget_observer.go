package backend

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-evoprompt/internal/domain"
	"github.com/ahrav/go-evoprompt/internal/ports"
)

// Metric names emitted by OTelBudgetObserver.
const (
	MetricBudgetCallsUsed      = "budget_calls_used"
	MetricBudgetTokensUsed     = "budget_tokens_used"
	MetricBudgetRemainingCalls = "budget_remaining_calls"
	MetricBudgetRemainingToken = "budget_remaining_tokens"
	MetricBudgetExceeded       = "budget_exceeded_total"
	MetricBackendLatency       = "backend_execution"
)

const (
	budgetWarningThreshold  = 0.8
	budgetCriticalThreshold = 0.9
)

var (
	_ BudgetObserver   = (*OTelBudgetObserver)(nil)
	_ exceededRecorder = (*OTelBudgetObserver)(nil)
)

// OTelBudgetObserver traces each budgeted call and reports usage gauges to a
// MetricsCollector. The span lives in the context returned by PreCheck, so
// one observer serves concurrent calls.
type OTelBudgetObserver struct {
	metrics ports.MetricsCollector
	backend string
	tracer  trace.Tracer
}

// NewOTelBudgetObserver creates an observer labelling everything with
// backend. A nil collector disables metrics.
func NewOTelBudgetObserver(metrics ports.MetricsCollector, backend string) *OTelBudgetObserver {
	return &OTelBudgetObserver{
		metrics: metrics,
		backend: backend,
		tracer:  otel.Tracer("github.com/ahrav/go-evoprompt/infrastructure/backend"),
	}
}

// PreCheck starts the span and flags usage above the warning thresholds.
func (o *OTelBudgetObserver) PreCheck(ctx context.Context, usage Usage, budget Budget) context.Context {
	ctx, span := o.tracer.Start(ctx, "BudgetedBackend.Execute")
	o.addSpanAttributes(span, usage, budget)
	thresholdEvent(span, "calls", usage.Calls, budget.MaxCalls)
	thresholdEvent(span, "tokens", usage.Tokens, budget.MaxTokens)
	return ctx
}

// PostCheck records the final usage and ends the span started by PreCheck.
func (o *OTelBudgetObserver) PostCheck(ctx context.Context, usage Usage, budget Budget, elapsed time.Duration, err error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	o.addSpanAttributes(span, usage, budget)
	labels := o.labels(budget)
	if o.metrics != nil {
		o.metrics.RecordLatency(MetricBackendLatency, elapsed, labels)
	}

	if err != nil {
		var budgetErr *domain.BudgetExceededError
		if errors.As(err, &budgetErr) {
			span.AddEvent("budget.exceeded", trace.WithAttributes(
				attribute.String("limit_type", budgetErr.LimitType),
				attribute.Int64("limit_value", budgetErr.Limit),
				attribute.Int64("used_value", budgetErr.Used),
			))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	span.AddEvent("budget.usage_tracked", trace.WithAttributes(
		attribute.Int64("tokens_consumed", usage.Tokens),
		attribute.Int64("calls_made", usage.Calls),
	))
	o.updateMetrics(usage, budget, labels)
	span.SetStatus(codes.Ok, "")
}

// RecordExceeded counts a call refused by BudgetedBackend.
func (o *OTelBudgetObserver) RecordExceeded(err error, budget Budget) {
	if o.metrics == nil {
		return
	}
	labels := o.labels(budget)
	var budgetErr *domain.BudgetExceededError
	if errors.As(err, &budgetErr) {
		labels["limit_type"] = budgetErr.LimitType
	}
	o.metrics.RecordCounter(MetricBudgetExceeded, 1, labels)
}

func (o *OTelBudgetObserver) addSpanAttributes(span trace.Span, usage Usage, budget Budget) {
	span.SetAttributes(
		attribute.String("budget.backend", o.backend),
		attribute.Int64("budget.tokens_used", usage.Tokens),
		attribute.Int64("budget.calls_made", usage.Calls),
	)
	if budget.MaxTokens > 0 {
		span.SetAttributes(
			attribute.Int64("budget.max_tokens", budget.MaxTokens),
			attribute.Int64("budget.remaining_tokens", budget.MaxTokens-usage.Tokens),
		)
	}
	if budget.MaxCalls > 0 {
		span.SetAttributes(
			attribute.Int64("budget.max_calls", budget.MaxCalls),
			attribute.Int64("budget.remaining_calls", budget.MaxCalls-usage.Calls),
		)
	}
}

func thresholdEvent(span trace.Span, resource string, used, limit int64) {
	if limit <= 0 {
		return
	}
	pct := float64(used) / float64(limit)
	var name string
	switch {
	case pct >= budgetCriticalThreshold:
		name = "budget.threshold.critical"
	case pct >= budgetWarningThreshold:
		name = "budget.threshold.warning"
	default:
		return
	}
	span.AddEvent(name, trace.WithAttributes(
		attribute.String("resource_type", resource),
		attribute.Float64("usage_percentage", pct*100),
	))
}

func (o *OTelBudgetObserver) updateMetrics(usage Usage, budget Budget, labels map[string]string) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordGauge(MetricBudgetTokensUsed, float64(usage.Tokens), labels)
	o.metrics.RecordGauge(MetricBudgetCallsUsed, float64(usage.Calls), labels)
	if budget.MaxTokens > 0 {
		o.metrics.RecordGauge(MetricBudgetRemainingToken, float64(budget.MaxTokens-usage.Tokens), labels)
	}
	if budget.MaxCalls > 0 {
		o.metrics.RecordGauge(MetricBudgetRemainingCalls, float64(budget.MaxCalls-usage.Calls), labels)
	}
}

func (o *OTelBudgetObserver) labels(budget Budget) map[string]string {
	return map[string]string{
		"budget_limit": budgetLimitLabel(budget),
		"backend":      o.backend,
	}
}

func budgetLimitLabel(budget Budget) string {
	switch {
	case budget.MaxTokens > 0 && budget.MaxCalls > 0:
		return "tokens_and_calls"
	case budget.MaxTokens > 0:
		return "tokens_only"
	case budget.MaxCalls > 0:
		return "calls_only"
	default:
		return "unlimited"
	}
}
