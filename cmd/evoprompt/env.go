package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Env is the process configuration read from the environment. Command
// line flags override it.
type Env struct {
	// Backend is "mock" or an LLM spec "provider[/model]".
	Backend        string        `env:"EVOPROMPT_BACKEND" envDefault:"ollama"`
	Model          string        `env:"EVOPROMPT_MODEL"`
	OllamaEndpoint string        `env:"OLLAMA_ENDPOINT" envDefault:"http://localhost:11434"`
	LLMTimeout     time.Duration `env:"EVOPROMPT_LLM_TIMEOUT" envDefault:"3m"`
	MaxRetries     int           `env:"EVOPROMPT_LLM_MAX_RETRIES" envDefault:"3"`
	RateLimit      float64       `env:"EVOPROMPT_LLM_RATE_LIMIT" envDefault:"0"`
	TokenEstimator string        `env:"EVOPROMPT_TOKEN_ESTIMATOR" envDefault:"character"`

	LogLevel  string `env:"EVOPROMPT_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"EVOPROMPT_LOG_FORMAT" envDefault:"text"`

	MetricsAddr string `env:"EVOPROMPT_METRICS_ADDR"`
	TraceStdout bool   `env:"EVOPROMPT_TRACE_STDOUT" envDefault:"false"`
}

// loadEnv parses environ, or the process environment when environ is nil.
func loadEnv(environ map[string]string) (Env, error) {
	var cfg Env
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Env{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

// backendSpec joins Backend and Model into a registry spec.
func (e Env) backendSpec() string {
	if e.Model == "" || e.Backend == "mock" || strings.Contains(e.Backend, "/") {
		return e.Backend
	}
	return e.Backend + "/" + e.Model
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: want text or json", format)
	}
}
