package application

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-evoprompt/internal/domain"
	"github.com/ahrav/go-evoprompt/internal/ports"
)

var _ ports.TaskSource = (*TaskLoader)(nil)

// TaskLoader parses task files into validated TaskDefinitions and resolves
// their metrics through a MetricRegistry.
//
// Parsed tasks are cached by the SHA256 of their normalized configuration,
// and concurrent loads of the same content are collapsed with singleflight.
// Cached definitions are shared and must be treated as read-only.
type TaskLoader struct {
	validator *validator.Validate
	registry  ports.MetricRegistry
	logger    *slog.Logger

	cache   map[string]*domain.TaskDefinition
	cacheMu sync.RWMutex
	sf      singleflight.Group
}

// NewTaskLoader creates a loader that builds metrics with registry.
func NewTaskLoader(registry ports.MetricRegistry, logger *slog.Logger) (*TaskLoader, error) {
	if registry == nil {
		return nil, domain.NewConfigurationError("registry", "metric registry is required",
			domain.ErrInvalidConfiguration)
	}
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New()
	if err := registerCustomValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}

	return &TaskLoader{
		validator: v,
		registry:  registry,
		logger:    logger,
		cache:     make(map[string]*domain.TaskDefinition),
	}, nil
}

// LoadFromFile reads and parses the task file at path.
func (l *TaskLoader) LoadFromFile(ctx context.Context, path string) (*domain.TaskDefinition, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}
	return l.load(ctx, data)
}

// LoadFromReader parses a task definition read from r.
func (l *TaskLoader) LoadFromReader(ctx context.Context, r io.Reader) (*domain.TaskDefinition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read task data: %w", err)
	}
	return l.load(ctx, data)
}

// ClearCache drops every cached task definition.
func (l *TaskLoader) ClearCache() {
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()
	l.cache = make(map[string]*domain.TaskDefinition)
}

// CacheSize returns the number of cached task definitions.
func (l *TaskLoader) CacheSize() int {
	l.cacheMu.RLock()
	defer l.cacheMu.RUnlock()
	return len(l.cache)
}

func (l *TaskLoader) load(ctx context.Context, data []byte) (*domain.TaskDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg, err := parseTaskConfig(data)
	if err != nil {
		return nil, domain.NewConfigurationError("task", "failed to parse task file", err)
	}

	hash, err := configHash(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}

	v, err, shared := l.sf.Do(hash, func() (any, error) {
		if task, ok := l.cached(hash); ok {
			return task, nil
		}

		if err := l.validator.Struct(cfg); err != nil {
			return nil, toConfigurationError("task", err)
		}

		task, err := l.build(cfg)
		if err != nil {
			return nil, err
		}

		l.cacheMu.Lock()
		l.cache[hash] = task
		l.cacheMu.Unlock()
		return task, nil
	})
	if err != nil {
		return nil, err
	}

	task := v.(*domain.TaskDefinition)
	l.logger.DebugContext(ctx, "task loaded",
		"task", task.Name,
		"test_cases", len(task.TestCases),
		"metrics", task.MetricNames(),
		"shared", shared,
	)
	return task, nil
}

func (l *TaskLoader) cached(hash string) (*domain.TaskDefinition, bool) {
	l.cacheMu.RLock()
	defer l.cacheMu.RUnlock()
	task, ok := l.cache[hash]
	return task, ok
}

// build turns a validated TaskConfig into a TaskDefinition.
func (l *TaskLoader) build(cfg *TaskConfig) (*domain.TaskDefinition, error) {
	task := &domain.TaskDefinition{
		Name:          cfg.Name,
		Description:   cfg.Description,
		TestCases:     make([]domain.TestCase, len(cfg.TestCases)),
		Configuration: cfg.Configuration,
	}
	if task.Configuration == nil {
		task.Configuration = make(map[string]any)
	}

	for i, tc := range cfg.TestCases {
		task.TestCases[i] = domain.TestCase{
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			Metadata:       tc.Metadata,
		}
	}

	for i, spec := range cfg.metricSpecs() {
		metric, err := l.registry.CreateMetric(spec.Type, spec.Params)
		if err != nil {
			return nil, domain.NewConfigurationError(
				fmt.Sprintf("evaluation.metrics[%d]", i), "cannot build metric", err)
		}
		task.Metrics = append(task.Metrics, metric)
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}
	return task, nil
}

// parseTaskConfig decodes a task file strictly after rewriting camelCase
// keys to snake_case.
func parseTaskConfig(data []byte) (*TaskConfig, error) {
	var root yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&root); err != nil {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	snakeCaseKeys(&root)
	normalized, err := yaml.Marshal(&root)
	if err != nil {
		return nil, fmt.Errorf("YAML re-encode failed: %w", err)
	}

	var cfg TaskConfig
	dec := yaml.NewDecoder(bytes.NewReader(normalized))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	return &cfg, nil
}

// configHash hashes the re-encoded config so formatting and key order do
// not affect cache hits.
func configHash(cfg *TaskConfig) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config for hashing: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode config for hashing: %w", err)
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}
