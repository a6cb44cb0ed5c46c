package domain

// GenerationRequest is a provider-neutral text generation call derived from
// a Genome. Zero numeric values mean "provider default".
type GenerationRequest struct {
	Model         string
	System        string
	Prompt        string
	Temperature   *float64
	TopP          *float64
	TopK          int
	MaxTokens     int
	RepeatPenalty *float64
	// Format is the requested response format (text, json, markdown).
	Format string
}

// Generation is the provider's answer to a GenerationRequest.
type Generation struct {
	Text      string
	Model     string
	TokensIn  int
	TokensOut int
}

// NewGenerationRequest maps the decoding parameters of g onto a request for
// prompt.
func NewGenerationRequest(g Genome, prompt string) GenerationRequest {
	temp, topP, repeat := g.Temperature, g.TopP, g.RepeatPenalty
	return GenerationRequest{
		System:        g.SystemPrompt,
		Prompt:        prompt,
		Temperature:   &temp,
		TopP:          &topP,
		TopK:          g.TopK,
		MaxTokens:     g.MaxTokens,
		RepeatPenalty: &repeat,
		Format:        g.ResponseFormat,
	}
}
