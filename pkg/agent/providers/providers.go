package providers

import (
	"context"
	"fmt"

	"agentloop/pkg/agent"
)

// Supported provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
)

// New creates the client for a named provider. host is only used by ollama.
func New(ctx context.Context, provider, apiKey, model, host string) (agent.LLMClient, error) {
	switch provider {
	case ProviderAnthropic:
		return NewClaudeClient(apiKey, model), nil
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey, model), nil
	case ProviderGemini:
		return NewGeminiClient(ctx, apiKey, model)
	case ProviderOllama:
		return NewOllamaClient(host, model), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}
