package evaluators

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultLength(t *testing.T) *Length {
	t.Helper()
	m, err := NewLength(DefaultLengthConfig())
	require.NoError(t, err)
	return m
}

func TestLength_LengthScore(t *testing.T) {
	m := newDefaultLength(t)

	tests := []struct {
		name   string
		output string
		want   float64
	}{
		{name: "below minimum ramps", output: strings.Repeat("a", 25), want: 0.5},
		{name: "at minimum", output: strings.Repeat("a", 50), want: 1.0},
		{name: "at maximum", output: strings.Repeat("a", 200), want: 1.0},
		{name: "above maximum decays", output: strings.Repeat("a", 300), want: 0.5},
		{name: "far above maximum floors at zero", output: strings.Repeat("a", 500), want: 0.0},
		{name: "surrounding whitespace ignored", output: "   " + strings.Repeat("a", 25) + "\n", want: 0.5},
		{name: "counts runes", output: strings.Repeat("é", 25), want: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, m.LengthScore(tt.output), 1e-9)
		})
	}
}

func TestLength_LengthScoreWithinBand(t *testing.T) {
	m := newDefaultLength(t)

	sentence := "A" + strings.Repeat("b", 58) + "."
	require.Len(t, sentence, 60)
	output := sentence + strings.Repeat("c", 60)
	require.Len(t, output, 120)

	assert.Equal(t, 1.0, m.LengthScore(output))
}

func TestLength_ContentScore(t *testing.T) {
	m := newDefaultLength(t)

	tests := []struct {
		name   string
		output string
		want   float64
	}{
		{name: "well formed", output: "Hello world. This is fine.", want: 1.0},
		{name: "repetitive lowercase", output: "a a a a a a a a a a", want: 0.5},
		{name: "only punctuation", output: "...", want: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, m.ContentScore(tt.output), 1e-9)
		})
	}
}

func TestLength_Evaluate(t *testing.T) {
	m := newDefaultLength(t)

	score, err := m.Evaluate(context.Background(), "", "", "Hello world. This is fine.", okResult)
	require.NoError(t, err)
	// 0.4 * 26/50 + 0.6 * 1.0
	assert.InDelta(t, 0.808, score, 1e-9)

	score, err = m.Evaluate(context.Background(), "", "", "", okResult)
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestNewLengthFromConfig(t *testing.T) {
	m, err := NewLengthFromConfig(map[string]any{"min_length": 10, "max_length": 20})
	require.NoError(t, err)
	cfg := m.(*Length).Config()
	assert.Equal(t, 10, cfg.MinLength)
	assert.Equal(t, 20, cfg.MaxLength)
	assert.Equal(t, 0.4, cfg.LengthWeight)

	_, err = NewLengthFromConfig(map[string]any{"min_length": 30, "max_length": 20})
	assert.Error(t, err)

	_, err = NewLengthFromConfig(map[string]any{"min_length": 0})
	assert.Error(t, err)

	_, err = NewLengthFromConfig(map[string]any{"min_lenght": 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check for typos")
}
