package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-evoprompt/internal/domain"
)

// DirectionMaximize is the only supported optimization direction.
const DirectionMaximize = "maximize"

// DefaultCaseTimeout bounds a single backend call.
const DefaultCaseTimeout = 3 * time.Minute

// configValidator validates the structs in this file. It is separate from
// the task loader's validator so config validation has no custom rules.
var configValidator = validator.New()

// FitnessWeights weights the three components of the composite fitness.
type FitnessWeights struct {
	// Score weights the mean test-case score.
	Score float64 `yaml:"score" json:"score" validate:"min=0,max=1"`
	// SuccessRate weights the fraction of successful executions.
	SuccessRate float64 `yaml:"success_rate" json:"success_rate" validate:"min=0,max=1"`
	// ExecutionTime weights the normalized speed score.
	ExecutionTime float64 `yaml:"execution_time" json:"execution_time" validate:"min=0,max=1"`
}

// DefaultFitnessWeights returns score 0.6, success rate 0.3, time 0.1.
func DefaultFitnessWeights() FitnessWeights {
	return FitnessWeights{Score: 0.6, SuccessRate: 0.3, ExecutionTime: 0.1}
}

// EngineConfig holds every tunable of the evolution loop.
type EngineConfig struct {
	// PopulationSize is N, constant across generations. Larger populations
	// explore more of the catalog per generation at a linear cost in
	// backend calls.
	PopulationSize int `yaml:"population_size" json:"population_size" validate:"min=2"`
	// MutationRate is the per-gene resample probability. Values near
	// 1/GenotypeLength change about one locus per offspring.
	MutationRate float64 `yaml:"mutation_rate" json:"mutation_rate" validate:"min=0,max=1"`
	// CrossoverRate is the probability that a parent pair is recombined.
	CrossoverRate float64 `yaml:"crossover_rate" json:"crossover_rate" validate:"min=0,max=1"`
	// TournamentSize is k, the number of draws per tournament. Larger k
	// raises selection pressure and speeds convergence at the cost of
	// diversity.
	TournamentSize int `yaml:"tournament_size" json:"tournament_size" validate:"min=1"`
	// EliteRatio is the fraction of the population carried over unchanged.
	// At least one elite is always kept.
	EliteRatio float64 `yaml:"elite_ratio" json:"elite_ratio" validate:"min=0,max=1"`
	// MaxGenerations terminates the run. Each generation costs up to
	// PopulationSize task evaluations.
	MaxGenerations int `yaml:"max_generations" json:"max_generations" validate:"min=1"`
	// Workers bounds concurrent individual evaluations. Zero means NumCPU.
	Workers int `yaml:"workers" json:"workers" validate:"min=0"`
	// Seed initializes the RNG when none is injected.
	Seed uint64 `yaml:"seed" json:"seed"`
	// Direction must be "maximize".
	Direction string `yaml:"direction" json:"direction" validate:"omitempty,oneof=maximize"`
}

// DefaultEngineConfig returns the reference parameters: population 50,
// mutation 0.15, crossover 0.65, tournament 3, elite ratio 0.1 and 100
// generations.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		PopulationSize: 50,
		MutationRate:   0.15,
		CrossoverRate:  0.65,
		TournamentSize: 3,
		EliteRatio:     0.1,
		MaxGenerations: 100,
		Workers:        runtime.NumCPU(),
		Seed:           42,
		Direction:      DirectionMaximize,
	}
}

// Validate returns a ConfigurationError describing the first invalid field.
func (c EngineConfig) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return toConfigurationError("engine", err)
	}
	return nil
}

// EliteCount returns max(1, round(EliteRatio*PopulationSize)) capped at the
// population size.
func (c EngineConfig) EliteCount() int {
	e := int(math.Round(c.EliteRatio * float64(c.PopulationSize)))
	if e < 1 {
		e = 1
	}
	if e > c.PopulationSize {
		e = c.PopulationSize
	}
	return e
}

// workers returns the effective evaluation pool size.
func (c EngineConfig) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// RunnerConfig controls how a genome is run across test cases.
type RunnerConfig struct {
	// Concurrent dispatches test cases to a worker pool when true.
	Concurrent bool `yaml:"concurrent" json:"concurrent"`
	// Workers bounds concurrent test cases. Zero means NumCPU.
	Workers int `yaml:"workers" json:"workers" validate:"min=0"`
	// CaseTimeout bounds each backend call.
	CaseTimeout time.Duration `yaml:"case_timeout" json:"case_timeout" validate:"min=0"`
	// MaxReasonableTimePerCaseMs normalizes the time component of fitness.
	MaxReasonableTimePerCaseMs int64 `yaml:"max_reasonable_time_per_case_ms" json:"max_reasonable_time_per_case_ms" validate:"gt=0"`
	// Weights are the composite fitness weights.
	Weights FitnessWeights `yaml:"weights" json:"weights"`
}

// DefaultRunnerConfig returns sequential execution, a 3 minute case timeout,
// 30 seconds of reasonable time per case and the default weights.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Concurrent:                 false,
		Workers:                    runtime.NumCPU(),
		CaseTimeout:                DefaultCaseTimeout,
		MaxReasonableTimePerCaseMs: 30_000,
		Weights:                    DefaultFitnessWeights(),
	}
}

// Validate returns a ConfigurationError describing the first invalid field.
func (c RunnerConfig) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return toConfigurationError("runner", err)
	}
	w := c.Weights
	if w.Score+w.SuccessRate+w.ExecutionTime <= 0 {
		return domain.NewConfigurationError("runner.weights", "at least one fitness weight must be positive",
			domain.ErrInvalidConfiguration)
	}
	return nil
}

// BudgetConfig limits backend usage over one run. Zero means unlimited.
type BudgetConfig struct {
	MaxCalls  int64 `yaml:"max_calls" json:"max_calls" validate:"min=0"`
	MaxTokens int64 `yaml:"max_tokens" json:"max_tokens" validate:"min=0"`
}

// RunConfig is the on-disk run configuration. Every section is optional;
// missing fields keep their defaults.
type RunConfig struct {
	Engine  EngineConfig   `yaml:"engine" json:"engine"`
	Runner  RunnerConfig   `yaml:"runner" json:"runner"`
	Catalog domain.Catalog `yaml:"catalog" json:"catalog"`
	Budget  BudgetConfig   `yaml:"budget" json:"budget"`
}

// DefaultRunConfig returns a RunConfig populated with every default.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Engine:  DefaultEngineConfig(),
		Runner:  DefaultRunnerConfig(),
		Catalog: domain.DefaultCatalog(),
	}
}

// Validate checks every section.
func (c RunConfig) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if err := c.Runner.Validate(); err != nil {
		return err
	}
	if err := c.Catalog.Validate(); err != nil {
		return domain.NewConfigurationError("catalog", "invalid genome catalog", err)
	}
	if err := configValidator.Struct(c.Budget); err != nil {
		return toConfigurationError("budget", err)
	}
	return nil
}

// LoadRunConfig reads a YAML (or JSON) run configuration from path and
// overlays it onto DefaultRunConfig. Unknown fields are rejected.
func LoadRunConfig(path string) (RunConfig, error) {
	cfg := DefaultRunConfig()

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("failed to read run config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, domain.NewConfigurationError("run_config", "failed to parse run config", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// toConfigurationError converts validator output into a ConfigurationError
// naming the first failing field.
func toConfigurationError(section string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domain.NewConfigurationError(
			section+"."+fe.Namespace(),
			fmt.Sprintf("failed %q constraint (value %v)", fe.Tag(), fe.Value()),
			domain.ErrInvalidConfiguration,
		)
	}
	return domain.NewConfigurationError(section, "validation failed", err)
}
