package application

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-evoprompt/internal/domain"
)

func TestEngineConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*EngineConfig)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*EngineConfig) {}},
		{name: "population too small", mutate: func(c *EngineConfig) { c.PopulationSize = 1 }, wantErr: true},
		{name: "mutation rate above one", mutate: func(c *EngineConfig) { c.MutationRate = 1.5 }, wantErr: true},
		{name: "negative crossover rate", mutate: func(c *EngineConfig) { c.CrossoverRate = -0.1 }, wantErr: true},
		{name: "zero tournament size", mutate: func(c *EngineConfig) { c.TournamentSize = 0 }, wantErr: true},
		{name: "zero generations", mutate: func(c *EngineConfig) { c.MaxGenerations = 0 }, wantErr: true},
		{name: "minimize is unsupported", mutate: func(c *EngineConfig) { c.Direction = "minimize" }, wantErr: true},
		{name: "zero workers means NumCPU", mutate: func(c *EngineConfig) { c.Workers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultEngineConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var cfgErr *domain.ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
			assert.True(t, domain.IsFatal(err))
		})
	}
}

func TestEngineConfig_EliteCount(t *testing.T) {
	tests := []struct {
		name  string
		ratio float64
		size  int
		want  int
	}{
		{name: "reference defaults", ratio: 0.1, size: 50, want: 5},
		{name: "zero ratio keeps one", ratio: 0, size: 10, want: 1},
		{name: "rounds half up", ratio: 0.25, size: 10, want: 3},
		{name: "tiny ratio keeps one", ratio: 0.01, size: 20, want: 1},
		{name: "full ratio caps at size", ratio: 1, size: 4, want: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultEngineConfig()
			cfg.EliteRatio = tt.ratio
			cfg.PopulationSize = tt.size
			assert.Equal(t, tt.want, cfg.EliteCount())
		})
	}
}

func TestRunnerConfig_Validate(t *testing.T) {
	cfg := DefaultRunnerConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3*time.Minute, cfg.CaseTimeout)
	assert.Equal(t, int64(30_000), cfg.MaxReasonableTimePerCaseMs)
	assert.Equal(t, FitnessWeights{Score: 0.6, SuccessRate: 0.3, ExecutionTime: 0.1}, cfg.Weights)

	cfg.Weights = FitnessWeights{}
	assert.ErrorIs(t, cfg.Validate(), domain.ErrInvalidConfiguration)

	cfg = DefaultRunnerConfig()
	cfg.MaxReasonableTimePerCaseMs = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultRunnerConfig()
	cfg.Weights.Score = 2
	assert.Error(t, cfg.Validate())
}

func TestLoadRunConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("overlays defaults", func(t *testing.T) {
		path := filepath.Join(dir, "run.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
engine:
  population_size: 12
  max_generations: 4
  seed: 7
runner:
  concurrent: true
  case_timeout: 30s
budget:
  max_calls: 100
`), 0o600))

		cfg, err := LoadRunConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 12, cfg.Engine.PopulationSize)
		assert.Equal(t, 4, cfg.Engine.MaxGenerations)
		assert.Equal(t, uint64(7), cfg.Engine.Seed)
		assert.Equal(t, 0.15, cfg.Engine.MutationRate)
		assert.True(t, cfg.Runner.Concurrent)
		assert.Equal(t, 30*time.Second, cfg.Runner.CaseTimeout)
		assert.Equal(t, int64(100), cfg.Budget.MaxCalls)
		assert.Len(t, cfg.Catalog.SystemPrompts, 6)
	})

	t.Run("empty file keeps defaults", func(t *testing.T) {
		path := filepath.Join(dir, "empty.yaml")
		require.NoError(t, os.WriteFile(path, nil, 0o600))

		cfg, err := LoadRunConfig(path)
		require.NoError(t, err)
		assert.Equal(t, DefaultEngineConfig().PopulationSize, cfg.Engine.PopulationSize)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("engine:\n  populaton_size: 3\n"), 0o600))

		_, err := LoadRunConfig(path)
		var cfgErr *domain.ConfigurationError
		assert.ErrorAs(t, err, &cfgErr)
	})

	t.Run("invalid value rejected", func(t *testing.T) {
		path := filepath.Join(dir, "invalid.yaml")
		require.NoError(t, os.WriteFile(path, []byte("engine:\n  elite_ratio: 3\n"), 0o600))

		_, err := LoadRunConfig(path)
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})

	t.Run("empty catalog rejected", func(t *testing.T) {
		path := filepath.Join(dir, "catalog.yaml")
		require.NoError(t, os.WriteFile(path, []byte("catalog:\n  system_prompts: []\n"), 0o600))

		_, err := LoadRunConfig(path)
		var cfgErr *domain.ConfigurationError
		assert.ErrorAs(t, err, &cfgErr)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadRunConfig(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})
}
