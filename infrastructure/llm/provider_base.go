package llm

import (
	"strings"
	"sync"
)

// BaseProvider holds the mutable default model shared by every provider.
type BaseProvider struct {
	mu    sync.RWMutex
	model string
}

// GetModel returns the default model.
func (b *BaseProvider) GetModel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// SetModel replaces the default model.
func (b *BaseProvider) SetModel(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = model
}

// TokenCounter prefers provider-reported counts and falls back to a
// character estimate.
type TokenCounter struct {
	CharactersPerToken float64
}

// NewTokenCounter returns a counter assuming four characters per token.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{CharactersPerToken: 4.0}
}

// EstimateTokens approximates the token count of text.
func (tc *TokenCounter) EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return int(float64(len(text)) / tc.CharactersPerToken)
}

// GetTokenCount returns actualCount when the provider reported one.
func (tc *TokenCounter) GetTokenCount(actualCount int, text string) int {
	if actualCount > 0 {
		return actualCount
	}
	return tc.EstimateTokens(text)
}

// Response formats understood by providers.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// formatDirective returns an instruction appended to the system prompt for
// providers without a native response-format switch.
func formatDirective(format string) string {
	switch strings.ToLower(format) {
	case FormatJSON:
		return "Respond with a single valid JSON document."
	case FormatMarkdown:
		return "Format the response as Markdown."
	default:
		return ""
	}
}

// systemWithFormat joins the system prompt and the format directive.
func systemWithFormat(system, format string) string {
	directive := formatDirective(format)
	switch {
	case directive == "":
		return system
	case system == "":
		return directive
	default:
		return system + "\n\n" + directive
	}
}
