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

var _ domain.EvaluationMetric = (*ContentQuality)(nil)

// connectors is the closed set of words that count toward coherence.
var connectors = map[string]struct{}{
	"and": {}, "but": {}, "however": {}, "therefore": {}, "because": {},
	"since": {}, "although": {}, "while": {}, "whereas": {}, "moreover": {},
}

// ContentQuality blends keyword coverage, sentence structure and lexical
// coherence into one score. It needs no expected output, so it fits
// open-ended tasks where several phrasings are acceptable as long as they
// mention the right terms.
//
// Keywords are lowered once at construction. The weighted sum is clamped to
// [0,1], so weights that add up to more than 1 saturate instead of
// producing an invalid score.
//
// Concurrency: ContentQuality holds only read-only state and is safe for
// concurrent use.
//
// Observability: each call opens a "ContentQuality.Evaluate" span with the
// keyword counts and the three sub-scores alongside eval.score.
type ContentQuality struct {
	config   ContentQualityConfig
	required []string
	bonus    []string
}

// ContentQualityConfig lists the keywords to look for and the weights of the
// three sub-scores.
type ContentQualityConfig struct {
	// RequiredKeywords contribute 70% of the keyword sub-score. With none
	// configured the required share is awarded in full.
	RequiredKeywords []string `yaml:"required_keywords" json:"required_keywords" validate:"dive,required"`

	// BonusKeywords contribute 30% of the keyword sub-score. They reward
	// desirable but optional terms without penalizing their absence heavily.
	BonusKeywords []string `yaml:"bonus_keywords" json:"bonus_keywords" validate:"dive,required"`

	// KeywordWeight weights keyword coverage. Default: 0.4.
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight" validate:"min=0,max=1"`

	// StructureWeight weights sentence count and length. Default: 0.3.
	StructureWeight float64 `yaml:"structure_weight" json:"structure_weight" validate:"min=0,max=1"`

	// CoherenceWeight weights connector-word usage. Default: 0.3.
	CoherenceWeight float64 `yaml:"coherence_weight" json:"coherence_weight" validate:"min=0,max=1"`
}

// DefaultContentQualityConfig returns weights 0.4/0.3/0.3 and no keywords.
func DefaultContentQualityConfig() ContentQualityConfig {
	return ContentQualityConfig{
		KeywordWeight:   0.4,
		StructureWeight: 0.3,
		CoherenceWeight: 0.3,
	}
}

// NewContentQuality creates a ContentQuality metric. Keywords are matched
// case-insensitively.
func NewContentQuality(config ContentQualityConfig) (*ContentQuality, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &ContentQuality{
		config:   config,
		required: lowerSet(config.RequiredKeywords),
		bonus:    lowerSet(config.BonusKeywords),
	}, nil
}

// NewContentQualityFromConfig builds a ContentQuality metric from task-file
// parameters layered over DefaultContentQualityConfig.
func NewContentQualityFromConfig(params map[string]any) (domain.EvaluationMetric, error) {
	cfg := DefaultContentQualityConfig()
	if err := decodeParams(params, &cfg); err != nil {
		return nil, fmt.Errorf("parse content config: %w", err)
	}
	return NewContentQuality(cfg)
}

// lowerSet lowercases and de-duplicates keywords, keeping first-seen order.
func lowerSet(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		lw := strings.ToLower(w)
		if _, ok := seen[lw]; ok {
			continue
		}
		seen[lw] = struct{}{}
		out = append(out, lw)
	}
	return out
}

// Name returns the metric type name.
func (c *ContentQuality) Name() string { return TypeContent }

// Evaluate returns the weighted sum of the keyword, structure and coherence
// sub-scores, clamped to [0,1].
func (c *ContentQuality) Evaluate(
	ctx context.Context,
	_, _, actual string,
	result domain.ExecutionResult,
) (float64, error) {
	_, span := tracer.Start(ctx, "ContentQuality.Evaluate",
		trace.WithAttributes(
			attribute.String("metric.type", TypeContent),
			attribute.Int("config.required_keywords", len(c.required)),
			attribute.Int("config.bonus_keywords", len(c.bonus)),
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

	keyword := c.KeywordScore(actual)
	structure := c.StructureScore(actual)
	coherence := c.CoherenceScore(actual)
	score := clamp01(c.config.KeywordWeight*keyword +
		c.config.StructureWeight*structure +
		c.config.CoherenceWeight*coherence)

	span.SetAttributes(
		attribute.Float64("eval.keyword_score", keyword),
		attribute.Float64("eval.structure_score", structure),
		attribute.Float64("eval.coherence_score", coherence),
		attribute.Float64("eval.score", score),
	)
	return score, nil
}

// KeywordScore gives 0.7 times the fraction of required keywords found plus
// 0.3 times the fraction of bonus keywords found. A category with no
// keywords earns its full share.
func (c *ContentQuality) KeywordScore(output string) float64 {
	lower := strings.ToLower(output)
	score := 0.7 * fractionPresent(lower, c.required)
	score += 0.3 * min(1, fractionPresent(lower, c.bonus))
	return min(1, score)
}

func fractionPresent(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 1
	}
	found := 0
	for _, k := range keywords {
		if strings.Contains(text, k) {
			found++
		}
	}
	return float64(found) / float64(len(keywords))
}

// StructureScore rewards having sentences, having several of them, a
// moderate average trimmed sentence length and an uppercase opening.
func (c *ContentQuality) StructureScore(output string) float64 {
	score := 0.0
	sentences := splitSentences(output)
	if len(sentences) > 0 {
		score += 0.3
		if len(sentences) > 1 {
			score += 0.2
		}
		total := 0
		for _, s := range sentences {
			total += utf8.RuneCountInString(strings.TrimSpace(s))
		}
		avg := float64(total) / float64(len(sentences))
		if avg > 10 && avg < 150 {
			score += 0.3
		}
	}
	if startsUpper(strings.TrimSpace(output)) {
		score += 0.2
	}
	return min(1, score)
}

// CoherenceScore starts at 0.5, adjusts for word diversity and adds 0.05 per
// connective word up to 0.2.
func (c *ContentQuality) CoherenceScore(output string) float64 {
	words := strings.Fields(strings.ToLower(output))
	if len(words) == 0 {
		return 0
	}

	score := 0.5
	diversity := uniqueRatio(words)
	switch {
	case diversity > 0.6:
		score += 0.3
	case diversity < 0.3:
		score -= 0.2
	}

	count := 0
	for _, w := range words {
		if _, ok := connectors[w]; ok {
			count++
		}
	}
	if count > 0 {
		score += min(0.2, float64(count)*0.05)
	}
	return clamp01(score)
}

// Config returns the metric configuration.
func (c *ContentQuality) Config() ContentQualityConfig { return c.config }
