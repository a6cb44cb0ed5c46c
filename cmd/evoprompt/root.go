package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

// app holds what every subcommand needs after PersistentPreRunE.
type app struct {
	env    Env
	logger *slog.Logger

	logLevel  string
	logFormat string
	backend   string
	model     string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "evoprompt",
		Short: "Evolve prompt configurations with a genetic algorithm",
		Long: `evoprompt searches the space of prompt configurations (system prompt,
template, instruction style, tool policy and decoding parameters) for the
one that scores best on a task's test cases.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (env EVOPROMPT_LOG_LEVEL)")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text or json (env EVOPROMPT_LOG_FORMAT)")
	flags.StringVar(&a.backend, "backend", "", `"mock" or provider[/model], e.g. ollama/llama3 (env EVOPROMPT_BACKEND)`)
	flags.StringVar(&a.model, "model", "", "model name for the backend provider (env EVOPROMPT_MODEL)")

	root.AddCommand(
		newRunCmd(a),
		newHealthCmd(a),
		newInitTaskCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	env, err := loadEnv(nil)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		env.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		env.LogFormat = a.logFormat
	}
	if a.backend != "" {
		env.Backend = a.backend
	}
	if a.model != "" {
		env.Model = a.model
	}

	logger, err := newLogger(cmd.ErrOrStderr(), env.LogLevel, env.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	a.env = env
	a.logger = logger
	return nil
}
