package evaluators

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-evoprompt/internal/domain"
)

var _ domain.EvaluationMetric = (*Fuzzy)(nil)

// Fuzzy scores the normalized Levenshtein similarity between the output and
// the expected output. Similarities below Threshold score 0. It sits between
// Accuracy and ContentQuality: it still needs a reference answer but gives
// partial credit for small wording or punctuation differences.
//
// Distances are computed over runes, so multi-byte text is not penalized
// for its encoding. A failed or empty execution scores 0 without an error.
//
// Concurrency: Fuzzy is stateless after construction and safe for
// concurrent use.
//
// Observability: each call opens a "Fuzzy.Evaluate" span recording the
// configured threshold, the raw eval.similarity and the final eval.score.
type Fuzzy struct {
	config FuzzyConfig
}

// FuzzyConfig controls the similarity threshold and case handling.
type FuzzyConfig struct {
	// Threshold is the minimum similarity in [0,1] that earns credit. A high
	// threshold keeps unrelated answers that share common words from
	// accumulating fitness. Default: 0.8.
	Threshold float64 `yaml:"threshold" json:"threshold" validate:"min=0.0,max=1.0"`

	// CaseSensitive disables case folding when true. Default: false.
	CaseSensitive bool `yaml:"case_sensitive" json:"case_sensitive"`
}

// DefaultFuzzyConfig returns a 0.8 threshold with case folding.
func DefaultFuzzyConfig() FuzzyConfig {
	return FuzzyConfig{Threshold: 0.8}
}

// NewFuzzy creates a Fuzzy metric.
func NewFuzzy(config FuzzyConfig) (*Fuzzy, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &Fuzzy{config: config}, nil
}

// NewFuzzyFromConfig builds a Fuzzy metric from task-file parameters layered
// over DefaultFuzzyConfig.
func NewFuzzyFromConfig(params map[string]any) (domain.EvaluationMetric, error) {
	cfg := DefaultFuzzyConfig()
	if err := decodeParams(params, &cfg); err != nil {
		return nil, fmt.Errorf("parse fuzzy config: %w", err)
	}
	return NewFuzzy(cfg)
}

// Name returns the metric type name.
func (f *Fuzzy) Name() string { return TypeFuzzy }

// Evaluate returns the thresholded similarity of the trimmed strings.
func (f *Fuzzy) Evaluate(
	ctx context.Context,
	_, expected, actual string,
	result domain.ExecutionResult,
) (float64, error) {
	_, span := tracer.Start(ctx, "Fuzzy.Evaluate",
		trace.WithAttributes(
			attribute.String("metric.type", TypeFuzzy),
			attribute.Float64("config.threshold", f.config.Threshold),
		),
	)
	defer span.End()

	if unusable(actual, result) {
		return 0, nil
	}
	if len(actual) > MaxStringLength || len(expected) > MaxStringLength {
		span.RecordError(ErrInputTooLong)
		return 0, ErrInputTooLong
	}

	similarity := f.Similarity(actual, expected)
	score := similarity
	if similarity < f.config.Threshold {
		score = 0
	}
	span.SetAttributes(
		attribute.Float64("eval.similarity", similarity),
		attribute.Float64("eval.score", score),
	)
	return score, nil
}

// Similarity returns 1 - distance/maxRuneLength for the normalized inputs.
// Two empty strings are identical.
func (f *Fuzzy) Similarity(a, b string) float64 {
	a, b = f.normalize(a), f.normalize(b)
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	distance := levenshtein.ComputeDistance(a, b)
	return 1 - float64(distance)/float64(longest)
}

func (f *Fuzzy) normalize(s string) string {
	s = strings.TrimSpace(s)
	if !f.config.CaseSensitive {
		s = cases.Fold().String(s)
	}
	return s
}
