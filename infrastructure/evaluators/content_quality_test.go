package evaluators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-evoprompt/internal/domain"
)

func TestContentQuality_KeywordScore(t *testing.T) {
	tests := []struct {
		name     string
		required []string
		bonus    []string
		output   string
		want     float64
	}{
		{name: "no keywords configured", output: "anything", want: 1.0},
		{
			name:     "half required and all bonus",
			required: []string{"Paris", "France"},
			bonus:    []string{"capital"},
			output:   "Paris is the capital.",
			want:     0.65,
		},
		{
			name:     "only required configured",
			required: []string{"go"},
			output:   "GO is a language",
			want:     1.0,
		},
		{
			name:   "bonus missing",
			bonus:  []string{"x-ray"},
			output: "nothing here",
			want:   0.7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultContentQualityConfig()
			cfg.RequiredKeywords = tt.required
			cfg.BonusKeywords = tt.bonus
			m, err := NewContentQuality(cfg)
			require.NoError(t, err)

			assert.InDelta(t, tt.want, m.KeywordScore(tt.output), 1e-9)
		})
	}
}

func TestContentQuality_StructureScore(t *testing.T) {
	m, err := NewContentQuality(DefaultContentQualityConfig())
	require.NoError(t, err)

	assert.InDelta(t, 1.0, m.StructureScore("Paris is the capital of France. It is large."), 1e-9)
	assert.InDelta(t, 0.3, m.StructureScore("ok"), 1e-9)
	assert.InDelta(t, 0.6, m.StructureScore("this sentence is long enough"), 1e-9)
}

func TestContentQuality_CoherenceScore(t *testing.T) {
	m, err := NewContentQuality(DefaultContentQualityConfig())
	require.NoError(t, err)

	tests := []struct {
		name   string
		output string
		want   float64
	}{
		{name: "diverse with connectors", output: "Paris is large and old because history", want: 0.9},
		{name: "repetitive", output: "the the the the", want: 0.3},
		{name: "connector bonus capped", output: "x and y but z however w therefore v because u", want: 1.0},
		{name: "no words", output: "   ", want: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, m.CoherenceScore(tt.output), 1e-9)
		})
	}
}

func TestContentQuality_Evaluate(t *testing.T) {
	m, err := NewContentQuality(DefaultContentQualityConfig())
	require.NoError(t, err)

	score, err := m.Evaluate(context.Background(), "", "", "Paris is the capital of France. It is large.", okResult)
	require.NoError(t, err)
	// 0.4*1.0 + 0.3*1.0 + 0.3*0.8
	assert.InDelta(t, 0.94, score, 1e-9)

	score, err = m.Evaluate(context.Background(), "", "", "Paris", domain.ExecutionResult{Success: false})
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestNewContentQualityFromConfig(t *testing.T) {
	m, err := NewContentQualityFromConfig(map[string]any{
		"required_keywords": []any{"Alpha", "alpha", "Beta"},
		"keyword_weight":    0.5,
	})
	require.NoError(t, err)

	cq := m.(*ContentQuality)
	assert.Equal(t, []string{"alpha", "beta"}, cq.required)
	assert.Equal(t, 0.5, cq.Config().KeywordWeight)
	assert.Equal(t, 0.3, cq.Config().StructureWeight)

	_, err = NewContentQualityFromConfig(map[string]any{"keyword_weight": 2.0})
	assert.Error(t, err)
}
