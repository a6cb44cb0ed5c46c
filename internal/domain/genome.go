package domain

import (
	"fmt"
	"strings"
)

// Template placeholders substituted by Genome.RenderPrompt.
const (
	PlaceholderSystemPrompt = "{system_prompt}"
	PlaceholderTask         = "{task}"
)

// InstructionStyle describes how a prompt asks the model to answer.
type InstructionStyle int

// Supported instruction styles. The order defines the locus encoding.
const (
	StyleDirect InstructionStyle = iota
	StyleConcise
	StyleAnalytical
	StyleStepByStep
)

// InstructionStyles lists every style in encoding order.
var InstructionStyles = []InstructionStyle{StyleDirect, StyleConcise, StyleAnalytical, StyleStepByStep}

// String returns the snake_case name of the style.
func (s InstructionStyle) String() string {
	switch s {
	case StyleDirect:
		return "direct"
	case StyleConcise:
		return "concise"
	case StyleAnalytical:
		return "analytical"
	case StyleStepByStep:
		return "step_by_step"
	default:
		return fmt.Sprintf("instruction_style(%d)", int(s))
	}
}

// ToolPolicy describes whether a prompt permits tool usage.
type ToolPolicy int

// Supported tool policies. The order defines the locus encoding.
const (
	ToolNone ToolPolicy = iota
	ToolOptional
	ToolRequired
)

// ToolPolicies lists every policy in encoding order.
var ToolPolicies = []ToolPolicy{ToolNone, ToolOptional, ToolRequired}

// String returns the snake_case name of the policy.
func (p ToolPolicy) String() string {
	switch p {
	case ToolNone:
		return "none"
	case ToolOptional:
		return "optional"
	case ToolRequired:
		return "required"
	default:
		return fmt.Sprintf("tool_policy(%d)", int(p))
	}
}

// Genome is the decoded, typed prompt configuration that an ExecutionBackend
// runs. A Genome is a value; decoding the same Genotype twice yields equal
// Genomes.
type Genome struct {
	SystemPrompt     string           `json:"system_prompt" yaml:"system_prompt"`
	PromptTemplate   string           `json:"prompt_template" yaml:"prompt_template"`
	InstructionStyle InstructionStyle `json:"instruction_style" yaml:"instruction_style"`
	ToolPolicy       ToolPolicy       `json:"tool_policy" yaml:"tool_policy"`
	Temperature      float64          `json:"temperature" yaml:"temperature"`
	MaxTokens        int              `json:"max_tokens" yaml:"max_tokens"`
	TopP             float64          `json:"top_p" yaml:"top_p"`
	TopK             int              `json:"top_k" yaml:"top_k"`
	RepeatPenalty    float64          `json:"repeat_penalty" yaml:"repeat_penalty"`
	ResponseFormat   string           `json:"response_format" yaml:"response_format"`
}

// DefaultGenome returns the hand-written baseline configuration used when no
// evolved genome is available.
func DefaultGenome() Genome {
	return Genome{
		SystemPrompt:     "You are a helpful AI assistant.",
		PromptTemplate:   "{system_prompt}\n\nTask: {task}\n\nPlease provide your response:",
		InstructionStyle: StyleDirect,
		ToolPolicy:       ToolNone,
		Temperature:      0.7,
		MaxTokens:        512,
		TopP:             0.9,
		TopK:             40,
		RepeatPenalty:    1.1,
		ResponseFormat:   "text",
	}
}

// RenderPrompt substitutes the system prompt and the task input into the
// genome's template.
func (g Genome) RenderPrompt(task string) string {
	r := strings.NewReplacer(
		PlaceholderSystemPrompt, g.SystemPrompt,
		PlaceholderTask, task,
	)
	return r.Replace(g.PromptTemplate)
}

// String renders a compact single-line summary for logs.
func (g Genome) String() string {
	return fmt.Sprintf(
		"system=%q style=%s tools=%s temp=%.2f max_tokens=%d top_p=%.2f top_k=%d repeat=%.2f format=%s",
		g.SystemPrompt, g.InstructionStyle, g.ToolPolicy, g.Temperature,
		g.MaxTokens, g.TopP, g.TopK, g.RepeatPenalty, g.ResponseFormat,
	)
}
