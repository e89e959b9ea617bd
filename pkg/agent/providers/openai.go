package providers

import (
	"context"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"agentloop/pkg/agent"
	"agentloop/pkg/resilience/retry"
)

// OpenAIClient wraps the official OpenAI client (Responses API) behind
// agent.LLMClient.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates a raw OpenAI client.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Complete implements agent.LLMClient. The Responses API takes one flattened
// input string, so roles are folded into labelled sections.
func (o *OpenAIClient) Complete(ctx context.Context, in agent.CompletionRequest) (agent.CompletionResponse, error) {
	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(int64(in.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(flattenMessages(in.Messages))},
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return agent.CompletionResponse{}, classifyError("openai", err)
	}
	if resp == nil {
		return agent.CompletionResponse{}, retry.NewTransientError(errEmptyResponse("openai"))
	}

	content := resp.OutputText()
	if content == "" {
		return agent.CompletionResponse{}, retry.NewTransientError(errEmptyResponse("openai"))
	}

	return agent.CompletionResponse{Content: content}, nil
}

// GetModelName implements agent.LLMClient.
func (o *OpenAIClient) GetModelName() string { return o.model }

func flattenMessages(messages []agent.CompletionMessage) string {
	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch msg.Role {
		case agent.RoleSystem:
			b.WriteString("[System]\n")
		case agent.RoleAssistant:
			b.WriteString("[Assistant]\n")
		case agent.RoleUser:
			// Plain user text needs no label.
		}
		b.WriteString(msg.Content)
	}
	return b.String()
}
