package llm

import "fmt"

// NewProvider creates an LLM provider by name.
func NewProvider(provider, apiKey string) (Provider, error) {
	switch provider {
	case "groq":
		return NewGroqProvider(apiKey), nil
	case "openai":
		return NewOpenAIProvider(apiKey), nil
	case "anthropic":
		return NewAnthropicProvider(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}
