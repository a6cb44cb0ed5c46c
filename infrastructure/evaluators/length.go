package evaluators

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-evoprompt/internal/domain"
)

var _ domain.EvaluationMetric = (*Length)(nil)

// Length scores how well a response fits a target length band, blended with
// a light-weight content heuristic. It steers the search away from genomes
// whose max_tokens or template choice yields truncated or rambling replies.
//
// Lengths are counted in runes. Below MinLength the length score ramps up
// linearly. Above MaxLength it decays, so an overlong answer keeps some
// credit.
//
// Concurrency: Length is stateless after construction and safe for
// concurrent use.
//
// Observability: each call opens a "Length.Evaluate" span with the target
// band and both sub-scores next to eval.score.
type Length struct {
	config LengthConfig
}

// LengthConfig holds the target band and the blend weights.
type LengthConfig struct {
	// MinLength is the lower bound of the target band in characters. It must
	// be positive since the ramp below it divides by MinLength. Default: 50.
	MinLength int `yaml:"min_length" json:"min_length" validate:"gt=0"`

	// MaxLength is the upper bound of the target band in characters.
	// Default: 200.
	MaxLength int `yaml:"max_length" json:"max_length" validate:"gtefield=MinLength"`

	// LengthWeight weights the length-fit sub-score. Default: 0.4.
	LengthWeight float64 `yaml:"length_weight" json:"length_weight" validate:"min=0,max=1"`

	// ContentWeight weights the content sub-score. Default: 0.6.
	ContentWeight float64 `yaml:"content_weight" json:"content_weight" validate:"min=0,max=1"`
}

// DefaultLengthConfig returns a 50 to 200 character band weighted 0.4/0.6.
func DefaultLengthConfig() LengthConfig {
	return LengthConfig{
		MinLength:     50,
		MaxLength:     200,
		LengthWeight:  0.4,
		ContentWeight: 0.6,
	}
}

// NewLength creates a Length metric.
func NewLength(config LengthConfig) (*Length, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &Length{config: config}, nil
}

// NewLengthFromConfig builds a Length metric from task-file parameters
// layered over DefaultLengthConfig.
func NewLengthFromConfig(params map[string]any) (domain.EvaluationMetric, error) {
	cfg := DefaultLengthConfig()
	if err := decodeParams(params, &cfg); err != nil {
		return nil, fmt.Errorf("parse length config: %w", err)
	}
	return NewLength(cfg)
}

// Name returns the metric type name.
func (l *Length) Name() string { return TypeLength }

// Evaluate returns LengthWeight*LengthScore + ContentWeight*ContentScore,
// clamped to [0,1].
func (l *Length) Evaluate(
	ctx context.Context,
	_, _, actual string,
	result domain.ExecutionResult,
) (float64, error) {
	_, span := tracer.Start(ctx, "Length.Evaluate",
		trace.WithAttributes(
			attribute.String("metric.type", TypeLength),
			attribute.Int("config.min_length", l.config.MinLength),
			attribute.Int("config.max_length", l.config.MaxLength),
		),
	)
	defer span.End()

	if unusable(actual, result) {
		return 0, nil
	}
	if len(actual) > MaxStringLength {
		span.RecordError(ErrInputTooLong)
		return 0, ErrInputTooLong
	}

	output := strings.TrimSpace(actual)
	lengthScore := l.LengthScore(output)
	contentScore := l.ContentScore(output)
	score := clamp01(l.config.LengthWeight*lengthScore + l.config.ContentWeight*contentScore)

	span.SetAttributes(
		attribute.Float64("eval.length_score", lengthScore),
		attribute.Float64("eval.content_score", contentScore),
		attribute.Float64("eval.score", score),
	)
	return score, nil
}

// LengthScore ramps linearly up to 1.0 below MinLength, is 1.0 inside the
// band and decays at 1/MaxLength per character above MaxLength, floored at 0.
// Length is counted in runes of the trimmed output.
func (l *Length) LengthScore(output string) float64 {
	n := utf8.RuneCountInString(strings.TrimSpace(output))
	switch {
	case n < l.config.MinLength:
		return float64(n) / float64(l.config.MinLength)
	case n > l.config.MaxLength:
		excess := float64(n - l.config.MaxLength)
		return max(0, 1-excess/float64(l.config.MaxLength))
	default:
		return 1.0
	}
}

// ContentScore starts at 0.5 and rewards moderate sentence length, an
// uppercase opening and lexical variety; heavy repetition is penalized.
func (l *Length) ContentScore(output string) float64 {
	output = strings.TrimSpace(output)
	sentences := splitSentences(output)
	if len(sentences) == 0 {
		return 0
	}

	score := 0.5
	avg := float64(utf8.RuneCountInString(output)) / float64(len(sentences))
	if avg > 10 && avg < 100 {
		score += 0.2
	}
	if startsUpper(output) {
		score += 0.1
	}

	ratio := uniqueRatio(strings.Fields(strings.ToLower(output)))
	switch {
	case ratio > 0.7:
		score += 0.2
	case ratio < 0.3:
		score -= 0.2
	}
	return clamp01(score)
}

// Config returns the metric configuration.
func (l *Length) Config() LengthConfig { return l.config }
