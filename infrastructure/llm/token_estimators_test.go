package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenEstimator(t *testing.T) {
	tests := []struct {
		kind string
		want any
	}{
		{"", &SimpleTokenEstimator{}},
		{"character", &SimpleTokenEstimator{}},
		{"Word", &WordBasedTokenEstimator{}},
		{"regex", &RegexBasedTokenEstimator{}},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			est, err := NewTokenEstimator(tt.kind)
			require.NoError(t, err)
			assert.IsType(t, tt.want, est)
		})
	}

	_, err := NewTokenEstimator("bpe")
	assert.ErrorContains(t, err, `unknown token estimator "bpe"`)
}

func TestSimpleTokenEstimator(t *testing.T) {
	e := &SimpleTokenEstimator{}
	assert.Equal(t, 0, e.EstimateTokens(""))
	assert.Equal(t, 1, e.EstimateTokens("abc"))
	assert.Equal(t, 1, e.EstimateTokens("abcd"))
	assert.Equal(t, 2, e.EstimateTokens("abcde"))
}

func TestWordBasedTokenEstimator(t *testing.T) {
	assert.Equal(t, 3, NewWordBasedTokenEstimator(0).EstimateTokens("one two  three\nfour"))
	assert.Equal(t, 8, NewWordBasedTokenEstimator(2).EstimateTokens("one two three four"))
	assert.Equal(t, 0, NewWordBasedTokenEstimator(0).EstimateTokens("   "))
}

func TestRegexBasedTokenEstimator(t *testing.T) {
	e := NewRegexBasedTokenEstimator()

	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "words and punctuation", text: "Hello, world!", want: 5},
		{name: "digits", text: "15 + 27", want: 2},
		{name: "short text rounds up to one", text: "a", want: 1},
		{name: "brackets", text: "f(x)", want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.EstimateTokens(tt.text))
		})
	}
}

func TestTiktokenEstimator(t *testing.T) {
	if testing.Short() {
		t.Skip("loads BPE tables")
	}
	e, err := NewTiktokenEstimator(TiktokenDefaultEncoding)
	if err != nil {
		t.Skipf("encoding unavailable: %v", err)
	}
	assert.Equal(t, 2, e.EstimateTokens("hello world"))
	assert.Equal(t, 0, e.EstimateTokens(""))
}
