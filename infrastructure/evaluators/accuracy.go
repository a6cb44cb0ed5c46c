package evaluators

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-evoprompt/internal/domain"
)

var _ domain.EvaluationMetric = (*Accuracy)(nil)

// Accuracy scores 1.0 when the normalized output equals the normalized
// expected output and 0.0 otherwise. It suits tasks with a single canonical
// answer, such as classification labels or short factual replies, where
// partial credit would reward near misses the caller considers wrong.
//
// A failed or empty execution scores 0 without an error. Inputs longer than
// MaxStringLength return ErrInputTooLong, which the task runner records as a
// failed case.
//
// Concurrency: Accuracy is stateless after construction and safe for
// concurrent use.
//
// Observability: each call opens an "Accuracy.Evaluate" span carrying the
// normalization flags and the resulting eval.score.
type Accuracy struct {
	config AccuracyConfig
}

// AccuracyConfig controls string normalization before comparison.
type AccuracyConfig struct {
	// CaseSensitive disables Unicode case folding when true. Folding is on
	// by default because most model outputs vary capitalization freely.
	// Default: false.
	CaseSensitive bool `yaml:"case_sensitive" json:"case_sensitive"`

	// TrimWhitespace strips leading and trailing whitespace when true.
	// Models commonly append a trailing newline, so this defaults on.
	// Default: true.
	TrimWhitespace bool `yaml:"trim_whitespace" json:"trim_whitespace"`
}

// DefaultAccuracyConfig returns case-insensitive, trimmed comparison.
func DefaultAccuracyConfig() AccuracyConfig {
	return AccuracyConfig{
		CaseSensitive:  false,
		TrimWhitespace: true,
	}
}

// NewAccuracy creates an Accuracy metric with the given configuration.
func NewAccuracy(config AccuracyConfig) (*Accuracy, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &Accuracy{config: config}, nil
}

// NewAccuracyFromConfig builds an Accuracy metric from task-file parameters
// layered over DefaultAccuracyConfig.
func NewAccuracyFromConfig(params map[string]any) (domain.EvaluationMetric, error) {
	cfg := DefaultAccuracyConfig()
	if err := decodeParams(params, &cfg); err != nil {
		return nil, fmt.Errorf("parse accuracy config: %w", err)
	}
	return NewAccuracy(cfg)
}

// Name returns the metric type name.
func (a *Accuracy) Name() string { return TypeAccuracy }

// Evaluate compares actual and expected after normalization.
func (a *Accuracy) Evaluate(
	ctx context.Context,
	_, expected, actual string,
	result domain.ExecutionResult,
) (float64, error) {
	_, span := tracer.Start(ctx, "Accuracy.Evaluate",
		trace.WithAttributes(
			attribute.String("metric.type", TypeAccuracy),
			attribute.Bool("config.case_sensitive", a.config.CaseSensitive),
			attribute.Bool("config.trim_whitespace", a.config.TrimWhitespace),
		),
	)
	defer span.End()

	if unusable(actual, result) {
		span.SetAttributes(attribute.Float64("eval.score", 0))
		return 0, nil
	}
	if len(actual) > MaxStringLength || len(expected) > MaxStringLength {
		span.RecordError(ErrInputTooLong)
		return 0, ErrInputTooLong
	}

	score := 0.0
	if a.normalize(actual) == a.normalize(expected) {
		score = 1.0
	}
	span.SetAttributes(attribute.Float64("eval.score", score))
	return score, nil
}

// normalize applies trimming, then case folding, per configuration.
func (a *Accuracy) normalize(s string) string {
	if a.config.TrimWhitespace {
		s = strings.TrimSpace(s)
	}
	if !a.config.CaseSensitive {
		// cases.Caser is not safe for concurrent use; build one per call.
		s = cases.Fold().String(s)
	}
	return s
}

// Config returns the metric configuration.
func (a *Accuracy) Config() AccuracyConfig { return a.config }
