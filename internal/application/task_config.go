package application

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultMetricType is used when a task file declares no metrics.
const DefaultMetricType = "accuracy"

// TaskConfig is the on-disk shape of a task file. JSON task files are
// accepted as well since the decoder reads YAML.
type TaskConfig struct {
	// Name identifies the task in results and logs.
	Name string `yaml:"name" json:"name" validate:"required,notblank"`

	// Description is free text shown in reports.
	Description string `yaml:"description" json:"description"`

	// TestCases are the benchmark inputs. At least one is required.
	TestCases []TestCaseConfig `yaml:"test_cases" json:"test_cases" validate:"required,min=1,dive"`

	// Evaluation selects and configures the metrics.
	Evaluation EvaluationConfig `yaml:"evaluation" json:"evaluation"`

	// Configuration carries free-form task settings such as a preferred
	// model or temperature.
	Configuration map[string]any `yaml:"configuration,omitempty" json:"configuration,omitempty"`
}

// TestCaseConfig is one test case in a task file.
type TestCaseConfig struct {
	Input          string         `yaml:"input" json:"input" validate:"required,notblank"`
	ExpectedOutput string         `yaml:"expected_output" json:"expected_output"`
	Metadata       map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// EvaluationConfig lists the task metrics. When Metrics is empty a single
// metric of Type (default "accuracy") is built from Params.
type EvaluationConfig struct {
	Type    string         `yaml:"type,omitempty" json:"type,omitempty"`
	Metrics []MetricConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" validate:"dive"`
	Params  map[string]any `yaml:",inline" json:"-"`
}

// MetricConfig names a metric type; every other key is passed to the
// metric factory as a parameter.
type MetricConfig struct {
	Type   string         `yaml:"type" json:"type" validate:"required,notblank"`
	Params map[string]any `yaml:",inline" json:"-"`
}

// metricSpecs returns the (type, params) pairs the task declares, falling
// back to a single default metric.
func (c *TaskConfig) metricSpecs() []MetricConfig {
	if len(c.Evaluation.Metrics) > 0 {
		return c.Evaluation.Metrics
	}
	t := c.Evaluation.Type
	if strings.TrimSpace(t) == "" {
		t = DefaultMetricType
	}
	return []MetricConfig{{Type: t, Params: c.Evaluation.Params}}
}

// registerCustomValidators adds the task-file validation tags.
func registerCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("notblank", validateNotBlank); err != nil {
		return fmt.Errorf("failed to register notblank validator: %w", err)
	}
	return nil
}

// validateNotBlank rejects strings made only of whitespace.
func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// freeFormKeys name the task sections whose keys are user data and are
// kept verbatim.
var freeFormKeys = map[string]bool{
	"configuration": true,
	"metadata":      true,
}

// snakeCaseKeys rewrites camelCase mapping keys (testCases, expectedOutput,
// minLength) to the snake_case keys of the task schema, so task files
// written in either style load. Free-form sections are left untouched.
func snakeCaseKeys(n *yaml.Node) {
	switch n.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, c := range n.Content {
			snakeCaseKeys(c)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Kind == yaml.ScalarNode {
				k.Value = toSnakeCase(k.Value)
			}
			if !freeFormKeys[k.Value] {
				snakeCaseKeys(v)
			}
		}
	}
}

// toSnakeCase lower-cases s, inserting an underscore before every
// uppercase letter after the first rune.
func toSnakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
