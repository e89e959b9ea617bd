package providers

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"agentloop/pkg/agent"
	"agentloop/pkg/resilience/retry"
)

// ClaudeClient wraps the Anthropic API client behind agent.LLMClient.
type ClaudeClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClaudeClient creates a raw Claude client; reliability wrappers are
// applied by the caller.
func NewClaudeClient(apiKey, model string) *ClaudeClient {
	return &ClaudeClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// Complete implements agent.LLMClient.
func (c *ClaudeClient) Complete(ctx context.Context, in agent.CompletionRequest) (agent.CompletionResponse, error) {
	system, conversation := splitSystem(in.Messages)

	messages := make([]anthropic.MessageParam, 0, len(conversation))
	for _, msg := range conversation {
		messages = append(messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(msg.Role),
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)},
		})
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   int64(in.MaxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system, Type: "text"}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return agent.CompletionResponse{}, classifyError("anthropic", err)
	}
	if resp == nil || len(resp.Content) == 0 {
		// Empty 200s happen under load; treat as retryable.
		return agent.CompletionResponse{}, retry.NewTransientError(errEmptyResponse("anthropic"))
	}

	var text strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	return agent.CompletionResponse{
		Content:    text.String(),
		StopReason: string(resp.StopReason),
	}, nil
}

// GetModelName implements agent.LLMClient.
func (c *ClaudeClient) GetModelName() string { return string(c.model) }

// splitSystem extracts system messages into one system prompt and returns the
// remaining conversation in order.
func splitSystem(messages []agent.CompletionMessage) (string, []agent.CompletionMessage) {
	var systemParts []string
	var rest []agent.CompletionMessage
	for _, msg := range messages {
		if msg.Role == agent.RoleSystem {
			systemParts = append(systemParts, msg.Content)
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(systemParts, "\n\n"), rest
}
