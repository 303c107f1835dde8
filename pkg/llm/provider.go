package llm

import "context"

// Request contains the parameters for a text generation call.
type Request struct {
	Model        string
	SystemPrompt string
	Prompt       string
	Temperature  float64
	MaxTokens    int
	// JSONMode asks the model to emit a single JSON object. Providers that
	// support a native response format use it; others rely on the prompt.
	JSONMode bool
}

// Usage tracks token consumption for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// TotalTokens returns input plus output tokens.
func (u Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// Response contains the generated text and usage for one call.
type Response struct {
	Text  string
	Usage Usage
}

// Provider is an interface for LLM API backends.
type Provider interface {
	// GenerateText makes a single text generation call.
	GenerateText(ctx context.Context, request Request) (*Response, error)

	// Name returns the provider name.
	Name() string
}
