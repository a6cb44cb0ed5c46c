// Package evaluators provides the EvaluationMetric implementations used to
// score backend responses: exact-match accuracy, length fit, content quality
// and fuzzy similarity.
package evaluators

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-evoprompt/internal/domain"
)

// Metric type names as they appear in task files.
const (
	TypeAccuracy = "accuracy"
	TypeLength   = "length"
	TypeContent  = "content"
	TypeFuzzy    = "fuzzy"
)

// MaxStringLength bounds the inputs a metric will score (10MB).
const MaxStringLength = 10 * 1024 * 1024

// ErrInputTooLong is returned when an output or reference exceeds
// MaxStringLength.
var ErrInputTooLong = errors.New("input exceeds maximum length")

// Package-level validator instance for configuration validation.
// Uses go-playground/validator v10 for struct tag-based validation.
var validate = validator.New()

var tracer = otel.Tracer("evoprompt-evaluators")

var sentenceDelimiters = regexp.MustCompile(`[.!?]+`)

// splitSentences splits text on runs of sentence punctuation. Trailing empty
// fragments are dropped, so "One. Two." yields two sentences and "..." none.
func splitSentences(text string) []string {
	parts := sentenceDelimiters.Split(text, -1)
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// startsUpper reports whether the first rune of s is an uppercase letter.
func startsUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return r != utf8.RuneError && unicode.IsUpper(r)
}

// uniqueRatio returns distinct words / total words, or 0 for no words.
func uniqueRatio(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[w] = struct{}{}
	}
	return float64(len(seen)) / float64(len(words))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// unusable reports whether a metric must short-circuit to 0.
func unusable(actual string, result domain.ExecutionResult) bool {
	return !result.Success || strings.TrimSpace(actual) == ""
}

// decodeParams overlays params onto cfg through a YAML round trip, so task
// files may use the same keys as the config struct tags. Keys that match no
// field are rejected.
func decodeParams(params map[string]any, cfg any) error {
	if len(params) == 0 {
		return nil
	}
	data, err := yaml.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode parameters (check for typos): %w", err)
	}
	return nil
}
