package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-evoprompt/infrastructure/backend"
	"github.com/ahrav/go-evoprompt/infrastructure/llm"
	"github.com/ahrav/go-evoprompt/infrastructure/telemetry"
	"github.com/ahrav/go-evoprompt/internal/ports"
)

const (
	breakerMaxFailures = 5
	breakerCooldown    = 30 * time.Second
)

// newRegistry builds the LLM client registry with the middleware chain
// every provider gets: tracing, metrics, circuit breaker, rate limit,
// retry, then the per-attempt timeout.
func newRegistry(cfg Env, collector ports.MetricsCollector, defaultProvider string) (*llm.Registry, error) {
	providers := maps.Clone(llm.DefaultProviders)
	ollama := providers["ollama"]
	ollama.BaseURL = cfg.OllamaEndpoint
	providers["ollama"] = ollama

	estimator, err := llm.NewTokenEstimator(cfg.TokenEstimator)
	if err != nil {
		return nil, err
	}

	retry := llm.DefaultRetryConfig()
	retry.MaxRetries = max(cfg.MaxRetries, 0)

	var limiter llm.Middleware
	if cfg.RateLimit > 0 {
		limiter = llm.RateLimitMiddleware(rate.Limit(cfg.RateLimit), max(int(cfg.RateLimit), 1))
	}

	return llm.NewRegistry(llm.RegistryConfig{
		Providers:       providers,
		DefaultProvider: defaultProvider,
		DefaultTimeout:  cfg.LLMTimeout,
		TokenEstimator:  estimator,
		Middleware: func(provider string) []llm.Middleware {
			chain := []llm.Middleware{
				llm.TracingMiddleware(provider),
				llm.MetricsMiddleware(provider, collector),
				llm.CircuitBreakerMiddlewareWithMetrics(breakerMaxFailures, breakerCooldown,
					telemetry.NewBreakerMetrics(collector, provider)),
			}
			if limiter != nil {
				chain = append(chain, limiter)
			}
			return append(chain,
				llm.RetryMiddleware(retry),
				llm.TimeoutMiddleware(cfg.LLMTimeout),
			)
		},
	})
}

// newBackend returns the execution backend named by cfg. The second value
// is non-nil when the backend can be health checked.
func newBackend(cfg Env, collector ports.MetricsCollector, logger *slog.Logger) (ports.ExecutionBackend, ports.HealthChecker, error) {
	spec := cfg.backendSpec()
	if spec == "mock" {
		return backend.NewMockBackend(), nil, nil
	}

	provider, _, _ := strings.Cut(spec, "/")
	registry, err := newRegistry(cfg, collector, provider)
	if err != nil {
		return nil, nil, err
	}
	client, err := registry.GetClient(spec)
	if err != nil {
		return nil, nil, err
	}
	b, err := backend.NewLLMBackend(client, backend.WithTimeout(cfg.LLMTimeout), backend.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return b, b, nil
}

// setupTracing installs a tracer provider. With stdout enabled spans are
// pretty-printed to stderr; otherwise they are sampled out.
func setupTracing(stdout bool) (func(context.Context) error, error) {
	if !stdout {
		tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample()))
		otel.SetTracerProvider(tp)
		return tp.Shutdown, nil
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// serveMetrics exposes reg on addr until ctx ends. An empty addr disables
// the endpoint.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("metrics endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics endpoint failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// newMetrics returns a collector backed by a fresh registry that also
// carries the Go runtime and process collectors.
func newMetrics() (*telemetry.PrometheusMetrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return telemetry.NewPrometheusMetrics(reg), reg
}
