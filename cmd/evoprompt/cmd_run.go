package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-evoprompt/infrastructure/backend"
	"github.com/ahrav/go-evoprompt/infrastructure/telemetry"
	"github.com/ahrav/go-evoprompt/internal/application"
	"github.com/ahrav/go-evoprompt/internal/domain"
	"github.com/ahrav/go-evoprompt/internal/ports"
)

type runOptions struct {
	taskPath    string
	configPath  string
	generations int
	population  int
	workers     int
	seed        uint64
	concurrent  bool
	maxCalls    int64
	maxTokens   int64
	jsonOut     bool
	outputPath  string
}

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run --task FILE",
		Short: "Run the genetic search for a task",
		Example: `  evoprompt run --task tasks/math.yaml --backend mock --generations 10 --population 20
  evoprompt run --task tasks/sentiment.json --backend ollama/llama3 --max-calls 2000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.runConfig(cmd)
			if err != nil {
				return err
			}
			return a.runEvolution(cmd.Context(), cmd.OutOrStdout(), opts, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.taskPath, "task", "t", "", "task definition file (YAML or JSON)")
	f.StringVarP(&opts.configPath, "config", "c", "", "run configuration file overlaying the defaults")
	f.IntVarP(&opts.generations, "generations", "g", 0, "number of generations")
	f.IntVarP(&opts.population, "population", "p", 0, "population size")
	f.IntVar(&opts.workers, "workers", 0, "concurrent genome evaluations")
	f.Uint64Var(&opts.seed, "seed", 0, "random seed")
	f.BoolVar(&opts.concurrent, "concurrent", false, "run test cases of a genome concurrently")
	f.Int64Var(&opts.maxCalls, "max-calls", 0, "stop after this many backend calls")
	f.Int64Var(&opts.maxTokens, "max-tokens", 0, "stop after this many tokens")
	f.BoolVar(&opts.jsonOut, "json", false, "print the run result as JSON")
	f.StringVarP(&opts.outputPath, "output", "o", "", "also write the JSON result to this file")
	_ = cmd.MarkFlagRequired("task")

	return cmd
}

// runConfig loads the run configuration and applies the flags the user
// set explicitly.
func (o *runOptions) runConfig(cmd *cobra.Command) (application.RunConfig, error) {
	cfg := application.DefaultRunConfig()
	if o.configPath != "" {
		loaded, err := application.LoadRunConfig(o.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	f := cmd.Flags()
	if f.Changed("generations") {
		cfg.Engine.MaxGenerations = o.generations
	}
	if f.Changed("population") {
		cfg.Engine.PopulationSize = o.population
	}
	if f.Changed("workers") {
		cfg.Engine.Workers = o.workers
	}
	if f.Changed("seed") {
		cfg.Engine.Seed = o.seed
	}
	if f.Changed("concurrent") {
		cfg.Runner.Concurrent = o.concurrent
	}
	if f.Changed("max-calls") {
		cfg.Budget.MaxCalls = o.maxCalls
	}
	if f.Changed("max-tokens") {
		cfg.Budget.MaxTokens = o.maxTokens
	}
	return cfg, cfg.Validate()
}

func (a *app) runEvolution(ctx context.Context, out io.Writer, opts *runOptions, cfg application.RunConfig) error {
	logger := a.logger

	shutdown, err := setupTracing(a.env.TraceStdout)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	metrics, reg := newMetrics()
	serveMetrics(ctx, a.env.MetricsAddr, reg, logger)

	loader, err := application.NewTaskLoader(application.NewDefaultMetricRegistry(), logger)
	if err != nil {
		return err
	}
	task, err := loader.LoadFromFile(ctx, opts.taskPath)
	if err != nil {
		return err
	}

	exec, health, err := newBackend(a.env, metrics, logger)
	if err != nil {
		return err
	}
	if health != nil {
		if err := health.Ping(ctx); err != nil {
			return fmt.Errorf("backend health check failed: %w", err)
		}
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	exec, err = withBudget(exec, cfg.Budget, metrics, a.env.backendSpec(), cancel)
	if err != nil {
		return err
	}

	runner, err := application.NewTaskRunner(exec, cfg.Runner, application.WithRunnerLogger(logger))
	if err != nil {
		return err
	}
	codec, err := domain.NewGenomeCodec(cfg.Catalog)
	if err != nil {
		return err
	}
	engine, err := application.NewEvolutionEngine(codec, runner, cfg.Engine,
		application.WithLogger(logger),
		application.WithObservers(
			telemetry.NewLoggingObserver(logger),
			telemetry.NewMetricsObserver(metrics, task.Name),
			telemetry.NewTracingObserver(),
		),
	)
	if err != nil {
		return err
	}

	result, err := engine.Run(ctx, task)
	if err != nil {
		return err
	}
	if cause := context.Cause(ctx); errors.Is(cause, domain.ErrBudgetExceeded) {
		logger.Warn("run stopped early", "reason", cause)
	}

	if opts.outputPath != "" {
		if err := writeJSONFile(opts.outputPath, result); err != nil {
			return err
		}
	}
	if opts.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printReport(out, task, result)
	return nil
}

// withBudget wraps exec in a BudgetedBackend when any limit is set. The
// first refused call cancels the run with the budget error as cause.
func withBudget(
	exec ports.ExecutionBackend,
	budget application.BudgetConfig,
	metrics ports.MetricsCollector,
	name string,
	cancel context.CancelCauseFunc,
) (ports.ExecutionBackend, error) {
	if budget.MaxCalls == 0 && budget.MaxTokens == 0 {
		return exec, nil
	}
	b, err := backend.NewBudgetedBackend(
		backend.Budget{MaxCalls: budget.MaxCalls, MaxTokens: budget.MaxTokens},
		exec,
		backend.WithBudgetObserver(backend.NewOTelBudgetObserver(metrics, name)),
		backend.WithOnExhausted(cancel),
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
