package application

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ahrav/go-evoprompt/infrastructure/evaluators"
	"github.com/ahrav/go-evoprompt/internal/domain"
	"github.com/ahrav/go-evoprompt/internal/ports"
)

// Verify interface compliance at compile time.
var _ ports.MetricRegistry = (*DefaultMetricRegistry)(nil)

// DefaultMetricRegistry maps metric type names from task files to metric
// factories. The accuracy, length, content and fuzzy metrics are registered
// on construction; callers may add their own.
type DefaultMetricRegistry struct {
	// factories maps lower-case metric types to their factory functions.
	factories map[string]ports.MetricFactory
	// mu protects concurrent access to the factories map.
	mu sync.RWMutex
}

// NewDefaultMetricRegistry creates a registry with the built-in metrics.
func NewDefaultMetricRegistry() *DefaultMetricRegistry {
	return &DefaultMetricRegistry{
		factories: map[string]ports.MetricFactory{
			evaluators.TypeAccuracy: evaluators.NewAccuracyFromConfig,
			evaluators.TypeLength:   evaluators.NewLengthFromConfig,
			evaluators.TypeContent:  evaluators.NewContentQualityFromConfig,
			evaluators.TypeFuzzy:    evaluators.NewFuzzyFromConfig,
		},
	}
}

// CreateMetric builds a metric of metricType from params. Type lookup is
// case-insensitive. Unknown types return an error wrapping
// domain.ErrUnknownMetric.
func (r *DefaultMetricRegistry) CreateMetric(metricType string, params map[string]any) (domain.EvaluationMetric, error) {
	key := strings.ToLower(strings.TrimSpace(metricType))

	r.mu.RLock()
	factory, exists := r.factories[key]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %q (supported: %s)",
			domain.ErrUnknownMetric, metricType, strings.Join(r.GetSupportedTypes(), ", "))
	}

	if params == nil {
		params = make(map[string]any)
	}

	metric, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric of type %s: %w", key, err)
	}
	return metric, nil
}

// RegisterMetricFactory registers or replaces the factory for metricType.
func (r *DefaultMetricRegistry) RegisterMetricFactory(metricType string, factory ports.MetricFactory) error {
	key := strings.ToLower(strings.TrimSpace(metricType))
	if key == "" {
		return fmt.Errorf("metric type cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory function cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[key] = factory
	return nil
}

// GetSupportedTypes returns the registered metric types in sorted order.
func (r *DefaultMetricRegistry) GetSupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
