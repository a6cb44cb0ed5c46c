package llm

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator kinds accepted by NewTokenEstimator.
const (
	EstimatorCharacter = "character"
	EstimatorWord      = "word"
	EstimatorRegex     = "regex"
	EstimatorTiktoken  = "tiktoken"
)

// NewTokenEstimator returns the estimator named by kind. An empty kind
// selects the character estimator.
func NewTokenEstimator(kind string) (TokenEstimator, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", EstimatorCharacter:
		return &SimpleTokenEstimator{}, nil
	case EstimatorWord:
		return NewWordBasedTokenEstimator(0), nil
	case EstimatorRegex:
		return NewRegexBasedTokenEstimator(), nil
	case EstimatorTiktoken:
		return NewTiktokenEstimator(TiktokenDefaultEncoding)
	default:
		return nil, fmt.Errorf("unknown token estimator %q", kind)
	}
}

// WordBasedTokenEstimator multiplies the whitespace-separated word count by
// TokensPerWord.
type WordBasedTokenEstimator struct{ TokensPerWord float64 }

// NewWordBasedTokenEstimator returns a word estimator. Non-positive ratios
// default to 0.75 tokens per word.
func NewWordBasedTokenEstimator(tokensPerWord float64) *WordBasedTokenEstimator {
	if tokensPerWord <= 0 {
		tokensPerWord = 0.75
	}
	return &WordBasedTokenEstimator{TokensPerWord: tokensPerWord}
}

// EstimateTokens implements TokenEstimator.
func (e *WordBasedTokenEstimator) EstimateTokens(text string) int {
	return int(float64(len(strings.Fields(text))) * e.TokensPerWord)
}

type weightedPattern struct {
	re     *regexp.Regexp
	weight float64
}

// RegexBasedTokenEstimator weights characters by the kind of text they
// belong to. It handles code and punctuation-heavy output better than the
// character heuristic.
type RegexBasedTokenEstimator struct {
	patterns []weightedPattern
	baseRate float64
}

// NewRegexBasedTokenEstimator returns an estimator with the built-in
// weights.
func NewRegexBasedTokenEstimator() *RegexBasedTokenEstimator {
	return &RegexBasedTokenEstimator{
		patterns: []weightedPattern{
			{regexp.MustCompile(`[A-Za-z]+`), 0.25},
			{regexp.MustCompile(`\d+`), 0.5},
			{regexp.MustCompile(`[.,!?;:]`), 1.0},
			{regexp.MustCompile(`[(){}\[\]<>"'` + "`" + `]`), 1.0},
		},
		baseRate: 0.25,
	}
}

// EstimateTokens implements TokenEstimator. Each character is counted once,
// by the first pattern that claims it.
func (e *RegexBasedTokenEstimator) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	claimed := make([]bool, len(text))
	total := 0.0
	for _, p := range e.patterns {
		for _, m := range p.re.FindAllStringIndex(text, -1) {
			for i := m[0]; i < m[1]; i++ {
				if !claimed[i] {
					claimed[i] = true
					total += p.weight
				}
			}
		}
	}
	for i, c := range claimed {
		if !c && text[i] != ' ' && text[i] != '\n' && text[i] != '\t' {
			total += e.baseRate
		}
	}
	return max(int(total+0.5), 1)
}

// TiktokenDefaultEncoding is the BPE used by current OpenAI chat models.
const TiktokenDefaultEncoding = "cl100k_base"

// TiktokenEstimator counts tokens with a real BPE encoder. The encoding
// tables are fetched on first use unless TIKTOKEN_CACHE_DIR holds them.
type TiktokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenEstimator loads the named encoding.
func NewTiktokenEstimator(encoding string) (*TiktokenEstimator, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encoding, err)
	}
	return &TiktokenEstimator{enc: enc}, nil
}

// EstimateTokens implements TokenEstimator.
func (e *TiktokenEstimator) EstimateTokens(text string) int {
	return len(e.enc.Encode(text, nil, nil))
}
