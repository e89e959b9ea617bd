package providers

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"agentloop/pkg/agent"
	"agentloop/pkg/resilience/retry"
)

// GeminiClient wraps the Google GenAI client behind agent.LLMClient.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a raw Gemini client.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

// Complete implements agent.LLMClient.
func (g *GeminiClient) Complete(ctx context.Context, in agent.CompletionRequest) (agent.CompletionResponse, error) {
	system, conversation := splitSystem(in.Messages)

	var contents []*genai.Content
	for _, msg := range conversation {
		role := "user"
		if msg.Role == agent.RoleAssistant {
			role = "model" // Gemini uses "model" instead of "assistant"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}

	temperature := in.Temperature
	maxTokens := int32(in.MaxTokens)
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: maxTokens,
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return agent.CompletionResponse{}, classifyError("gemini", err)
	}
	if result == nil || result.Text() == "" {
		return agent.CompletionResponse{}, retry.NewTransientError(errEmptyResponse("gemini"))
	}

	return agent.CompletionResponse{Content: result.Text()}, nil
}

// GetModelName implements agent.LLMClient.
func (g *GeminiClient) GetModelName() string { return g.model }
