package providers

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"agentloop/pkg/agent"
	"agentloop/pkg/resilience/retry"
)

// DefaultOllamaHost is used when no host URL is configured.
const DefaultOllamaHost = "http://localhost:11434"

// OllamaClient wraps the Ollama API client behind agent.LLMClient, for
// running the loop against local open-source models.
type OllamaClient struct {
	client *api.Client
	model  string
}

// NewOllamaClient creates a raw Ollama client. An unparsable hostURL falls
// back to DefaultOllamaHost.
func NewOllamaClient(hostURL, model string) *OllamaClient {
	parsed, err := url.Parse(hostURL)
	if err != nil || hostURL == "" {
		parsed, _ = url.Parse(DefaultOllamaHost)
	}
	return &OllamaClient{
		client: api.NewClient(parsed, http.DefaultClient),
		model:  model,
	}
}

// Complete implements agent.LLMClient.
func (o *OllamaClient) Complete(ctx context.Context, in agent.CompletionRequest) (agent.CompletionResponse, error) {
	messages := make([]api.Message, 0, len(in.Messages))
	for _, msg := range in.Messages {
		messages = append(messages, api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}

	var response api.ChatResponse
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return agent.CompletionResponse{}, classifyError("ollama", err)
	}
	if response.Message.Content == "" {
		return agent.CompletionResponse{}, retry.NewTransientError(errEmptyResponse("ollama"))
	}

	return agent.CompletionResponse{
		Content:    response.Message.Content,
		StopReason: response.DoneReason,
	}, nil
}

// GetModelName implements agent.LLMClient.
func (o *OllamaClient) GetModelName() string { return o.model }
