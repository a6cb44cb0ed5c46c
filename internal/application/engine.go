package application

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-evoprompt/internal/domain"
	"github.com/ahrav/go-evoprompt/internal/ports"
)

// RunResult is the outcome of one evolution run. A canceled run still
// returns a RunResult describing the generations that finished, so callers
// can report partial progress.
type RunResult struct {
	// RunID uniquely identifies the run in logs, metrics and traces.
	RunID string `json:"run_id"`

	// BestGenotype is the fittest genotype observed in any generation. It
	// is tracked across generations, not read from the final population,
	// so a lucky early individual is never lost.
	BestGenotype domain.Genotype `json:"best_genotype"`

	// BestGenome is BestGenotype decoded into concrete prompt parameters.
	BestGenome domain.Genome `json:"best_genome"`

	// BestFitness is the composite fitness of BestGenotype in [0,1].
	BestFitness float64 `json:"best_fitness"`

	// BestEvaluation is the task result behind BestFitness. It keeps the
	// per-case responses so a report can show why the winner scored well.
	BestEvaluation domain.TaskEvaluationResult `json:"best_evaluation"`

	// Generations is the number of generations that completed evaluation.
	// It is below MaxGenerations only when Canceled is set.
	Generations int `json:"generations"`

	// Evaluations counts evaluator invocations across the run. Elites and
	// unchanged offspring reuse cached fitness, so this is usually lower
	// than PopulationSize times Generations.
	Evaluations int `json:"evaluations"`

	// History holds one entry per completed generation, in order.
	History []domain.GenerationStats `json:"history"`

	// Canceled reports that ctx ended the run before MaxGenerations.
	Canceled bool `json:"canceled"`

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration `json:"elapsed"`
}

// EvolutionEngine runs a generational genetic algorithm over prompt
// genotypes. Each generation evaluates the individuals lacking a cached
// fitness, then breeds the next population through tournament selection,
// single-point crossover, per-gene mutation and elitism.
//
// Errors: a fatal evaluator error, such as a configuration or authentication
// failure, aborts the run and is returned wrapped with the individual index. A broken population
// invariant, such as a fitness outside [0,1], aborts with an
// EngineInvariantError. Cancellation is not an error; Run returns the
// partial result with Canceled set.
//
// Concurrency: the population is only mutated by the goroutine calling
// Run. Evaluation workers, bounded by EngineConfig.Workers, write to
// per-index slots that are applied after the generation barrier. Given the
// same seed and a deterministic evaluator, two runs produce identical
// results regardless of worker count. An engine owns one random stream, so
// Run must not be called concurrently on the same engine.
//
// Observability: Run opens an "EvolutionEngine.Run" span, logs the start
// and end of the run at info level and each generation at debug level, and
// notifies every registered EvolutionObserver once per generation.
type EvolutionEngine struct {
	codec     *domain.GenomeCodec
	evaluator ports.TaskEvaluator
	config    EngineConfig
	rng       *rand.Rand
	logger    *slog.Logger
	tracer    trace.Tracer
	observers []ports.EvolutionObserver
}

// EngineOption configures an EvolutionEngine.
type EngineOption func(*EvolutionEngine)

// WithRand injects the random stream used for initialization, selection,
// crossover and mutation.
func WithRand(rng *rand.Rand) EngineOption {
	return func(e *EvolutionEngine) {
		if rng != nil {
			e.rng = rng
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *EvolutionEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObservers registers observers notified after every generation.
func WithObservers(observers ...ports.EvolutionObserver) EngineOption {
	return func(e *EvolutionEngine) {
		for _, o := range observers {
			if o != nil {
				e.observers = append(e.observers, o)
			}
		}
	}
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) EngineOption {
	return func(e *EvolutionEngine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// NewEvolutionEngine validates config and builds an engine. Without
// WithRand the RNG is seeded from config.Seed.
func NewEvolutionEngine(
	codec *domain.GenomeCodec,
	evaluator ports.TaskEvaluator,
	config EngineConfig,
	opts ...EngineOption,
) (*EvolutionEngine, error) {
	if codec == nil {
		return nil, domain.NewConfigurationError("codec", "genome codec is required", domain.ErrInvalidConfiguration)
	}
	if evaluator == nil {
		return nil, domain.NewConfigurationError("evaluator", "task evaluator is required", domain.ErrInvalidConfiguration)
	}
	if config.Direction == "" {
		config.Direction = DirectionMaximize
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	e := &EvolutionEngine{
		codec:     codec,
		evaluator: evaluator,
		config:    config,
		logger:    slog.Default(),
		tracer:    otel.Tracer("evoprompt-engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(config.Seed, config.Seed^0x9e3779b97f4a7c15))
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *EvolutionEngine) Config() EngineConfig { return e.config }

// Run evolves a population against task for MaxGenerations generations and
// returns the best individual observed.
//
// Cancellation of ctx is not an error: in-flight evaluations are abandoned
// with fitness 0, the current generation is closed and the best result so
// far is returned with Canceled set. Configuration and invariant errors are
// returned as errors.
func (e *EvolutionEngine) Run(ctx context.Context, task *domain.TaskDefinition) (*RunResult, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	result := &RunResult{
		RunID:       uuid.NewString(),
		BestFitness: -1,
		History:     make([]domain.GenerationStats, 0, e.config.MaxGenerations),
	}
	logger := e.logger.With("run_id", result.RunID, "task", task.Name)

	ctx, span := e.tracer.Start(ctx, "EvolutionEngine.Run",
		trace.WithAttributes(
			attribute.String("run.id", result.RunID),
			attribute.String("task.name", task.Name),
			attribute.Int("engine.population_size", e.config.PopulationSize),
			attribute.Int("engine.max_generations", e.config.MaxGenerations),
		),
	)
	defer span.End()

	logger.InfoContext(ctx, "evolution started",
		"population_size", e.config.PopulationSize,
		"max_generations", e.config.MaxGenerations,
		"elite_count", e.config.EliteCount(),
		"test_cases", len(task.TestCases),
	)

	pop := e.initialPopulation()
	for gen := 0; gen < e.config.MaxGenerations; gen++ {
		genStart := time.Now()

		outcome, err := e.evaluate(ctx, pop, task)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "evaluation failed")
			return nil, err
		}
		result.Evaluations += outcome.evaluated

		for _, i := range outcome.indices {
			f, _ := pop[i].Fitness()
			if f > result.BestFitness {
				result.BestFitness = f
				result.BestGenotype = pop[i].Genotype().Clone()
				result.BestEvaluation = outcome.results[i]
			}
		}

		if err := e.checkInvariants(pop); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invariant violated")
			return nil, err
		}

		stats := populationStats(pop)
		stats.Generation = gen
		stats.BestSoFar = result.BestFitness
		stats.Evaluated = outcome.evaluated
		stats.Failed = outcome.failed
		stats.Elapsed = time.Since(genStart)
		result.History = append(result.History, stats)
		result.Generations = gen + 1

		logger.DebugContext(ctx, "generation complete",
			"generation", gen,
			"best_fitness", stats.BestFitness,
			"mean_fitness", stats.MeanFitness,
			"best_so_far", stats.BestSoFar,
			"evaluated", stats.Evaluated,
			"failed", stats.Failed,
		)
		for _, o := range e.observers {
			o.OnGeneration(ctx, result.RunID, stats)
		}

		if outcome.canceled {
			result.Canceled = true
			break
		}
		if gen == e.config.MaxGenerations-1 {
			break
		}
		pop = e.nextGeneration(pop)
	}

	if result.BestGenotype != nil {
		result.BestGenome = e.codec.Decode(result.BestGenotype)
	} else {
		result.BestFitness = 0
	}
	result.Elapsed = time.Since(start)

	span.SetAttributes(
		attribute.Float64("run.best_fitness", result.BestFitness),
		attribute.Int("run.generations", result.Generations),
		attribute.Bool("run.canceled", result.Canceled),
	)
	logger.InfoContext(ctx, "evolution finished",
		"best_fitness", result.BestFitness,
		"generations", result.Generations,
		"evaluations", result.Evaluations,
		"canceled", result.Canceled,
		"elapsed", result.Elapsed,
	)
	return result, nil
}

func (e *EvolutionEngine) initialPopulation() domain.Population {
	pop := make(domain.Population, e.config.PopulationSize)
	for i := range pop {
		pop[i] = domain.NewIndividual(e.codec.Encode(e.rng))
	}
	return pop
}

// evalOutcome is the per-generation evaluation summary.
type evalOutcome struct {
	// indices are the population slots evaluated this generation.
	indices []int
	// results holds the task result per population slot.
	results   []domain.TaskEvaluationResult
	evaluated int
	failed    int
	canceled  bool
}

// evaluate scores every individual without a cached fitness using a
// bounded worker pool and waits for all of them before returning.
func (e *EvolutionEngine) evaluate(ctx context.Context, pop domain.Population, task *domain.TaskDefinition) (evalOutcome, error) {
	pending := pop.Unevaluated()
	out := evalOutcome{
		indices: pending,
		results: make([]domain.TaskEvaluationResult, len(pop)),
	}
	if len(pending) == 0 {
		out.canceled = ctx.Err() != nil
		return out, nil
	}

	type slot struct {
		fitness   float64
		attempted bool
		failed    bool
	}
	slots := make([]slot, len(pop))
	n := len(task.TestCases)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.workers())
	for _, i := range pending {
		genome := e.codec.Decode(pop[i].Genotype())
		g.Go(func() error {
			if gctx.Err() != nil {
				slots[i] = slot{failed: true}
				return nil
			}
			res, err := e.evaluator.Evaluate(gctx, genome, task)
			if err != nil {
				if domain.IsFatal(err) {
					return fmt.Errorf("evaluate individual %d: %w", i, err)
				}
				slots[i] = slot{attempted: true, failed: true}
				return nil
			}
			out.results[i] = res
			slots[i] = slot{fitness: e.evaluator.Fitness(res, n), attempted: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}

	for _, i := range pending {
		s := slots[i]
		pop[i].SetFitness(s.fitness)
		if s.attempted {
			out.evaluated++
		}
		if s.failed {
			out.failed++
		}
	}
	out.canceled = ctx.Err() != nil
	return out, nil
}

// nextGeneration builds a population of the same size: the top elites are
// carried over unchanged and the rest are filled with offspring. Offspring
// identical to their parent inherit its cached fitness.
func (e *EvolutionEngine) nextGeneration(pop domain.Population) domain.Population {
	size := e.config.PopulationSize
	next := make(domain.Population, 0, size)

	for _, i := range rankByFitness(pop)[:e.config.EliteCount()] {
		next = append(next, pop[i].Clone())
	}

	for len(next) < size {
		pa := pop[tournamentSelect(e.rng, pop, e.config.TournamentSize)]
		pb := pop[tournamentSelect(e.rng, pop, e.config.TournamentSize)]

		ca, cb := crossover(e.rng, pa.Genotype(), pb.Genotype(), e.config.CrossoverRate)
		mutate(e.rng, e.codec, ca, e.config.MutationRate)
		mutate(e.rng, e.codec, cb, e.config.MutationRate)

		next = append(next, offspring(ca, pa))
		if len(next) < size {
			next = append(next, offspring(cb, pb))
		}
	}
	return next
}

func offspring(g domain.Genotype, parent *domain.Individual) *domain.Individual {
	child := domain.NewIndividual(g)
	if f, ok := parent.Fitness(); ok && g.Equal(parent.Genotype()) {
		child.SetFitness(f)
	}
	return child
}

// rankByFitness returns population indices ordered by descending fitness.
// Equal fitness keeps population order.
func rankByFitness(pop domain.Population) []int {
	idx := make([]int, len(pop))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		fa, _ := pop[idx[a]].Fitness()
		fb, _ := pop[idx[b]].Fitness()
		return fa > fb
	})
	return idx
}

func (e *EvolutionEngine) checkInvariants(pop domain.Population) error {
	if len(pop) != e.config.PopulationSize {
		return domain.NewEngineInvariantError("population_size",
			fmt.Sprintf("population has %d individuals, configured %d", len(pop), e.config.PopulationSize))
	}
	for i, ind := range pop {
		if err := e.codec.Validate(ind.Genotype()); err != nil {
			return fmt.Errorf("individual %d: %w", i, err)
		}
		f, ok := ind.Fitness()
		if !ok {
			return domain.NewEngineInvariantError("fitness_missing",
				fmt.Sprintf("individual %d has no fitness after evaluation", i))
		}
		if !(f >= 0 && f <= 1) {
			return domain.NewEngineInvariantError("fitness_range",
				fmt.Sprintf("individual %d fitness %v outside [0,1]", i, f))
		}
	}
	return nil
}

// populationStats computes best, mean and min fitness over pop.
func populationStats(pop domain.Population) domain.GenerationStats {
	var stats domain.GenerationStats
	if len(pop) == 0 {
		return stats
	}
	stats.MinFitness = 1
	var sum float64
	for i, ind := range pop {
		f, _ := ind.Fitness()
		sum += f
		if i == 0 || f > stats.BestFitness {
			stats.BestFitness = f
		}
		if f < stats.MinFitness {
			stats.MinFitness = f
		}
	}
	stats.MeanFitness = sum / float64(len(pop))
	return stats
}
