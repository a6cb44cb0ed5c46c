package evaluators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuzzy_Evaluate(t *testing.T) {
	tests := []struct {
		name     string
		config   FuzzyConfig
		expected string
		actual   string
		want     float64
	}{
		{name: "identical after folding", config: DefaultFuzzyConfig(), expected: "Paris", actual: " paris ", want: 1.0},
		{name: "below threshold", config: DefaultFuzzyConfig(), expected: "sitting", actual: "kitten", want: 0.0},
		{name: "above threshold", config: FuzzyConfig{Threshold: 0.75}, expected: "hallo", actual: "hello", want: 0.8},
		{name: "case sensitive distance", config: FuzzyConfig{Threshold: 0.5, CaseSensitive: true}, expected: "ABCD", actual: "abCD", want: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewFuzzy(tt.config)
			require.NoError(t, err)

			score, err := m.Evaluate(context.Background(), "", tt.expected, tt.actual, okResult)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, score, 1e-9)
		})
	}
}

func TestFuzzy_Similarity(t *testing.T) {
	m, err := NewFuzzy(DefaultFuzzyConfig())
	require.NoError(t, err)

	assert.InDelta(t, 1-3.0/7.0, m.Similarity("kitten", "sitting"), 1e-9)
	assert.Equal(t, 1.0, m.Similarity("", "  "))
}

func TestNewFuzzyFromConfig(t *testing.T) {
	m, err := NewFuzzyFromConfig(map[string]any{"threshold": 0.5})
	require.NoError(t, err)
	assert.Equal(t, TypeFuzzy, m.Name())

	_, err = NewFuzzyFromConfig(map[string]any{"threshold": 1.5})
	assert.Error(t, err)
}
