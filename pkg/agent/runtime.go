package agent

import (
	"context"
	"fmt"
	"strings"

	"agentloop/pkg/logx"
)

// Request is one call into the agent runtime on behalf of a workflow phase.
type Request struct {
	AgentName string
	SessionID string
	Prompt    string
	Tools     []string
	Skills    []string
	Options   map[string]any
}

// Response carries the raw model text back to the phase executor, which is
// responsible for JSON extraction and validation.
type Response struct {
	Response string
}

// Runtime is the external agent-runtime boundary. The orchestrator suspends
// until Execute resolves; cancellation flows through ctx.
type Runtime interface {
	Execute(ctx context.Context, req Request) (Response, error)
}

// LLMRuntime adapts an LLMClient to the Runtime boundary. It assembles the
// completion request from the phase prompt and per-call options and returns
// the raw text unparsed.
type LLMRuntime struct {
	client      LLMClient
	systemBase  string
	temperature float32
	maxTokens   int
	logger      *logx.Logger
}

// NewLLMRuntime wraps an LLM client. systemBase, if non-empty, is prepended
// to every call's system message.
func NewLLMRuntime(client LLMClient, systemBase string) *LLMRuntime {
	return &LLMRuntime{
		client:      client,
		systemBase:  systemBase,
		temperature: 0.7,
		maxTokens:   DefaultMaxTokens,
		logger:      logx.NewLogger("runtime"),
	}
}

// Execute implements Runtime.
func (r *LLMRuntime) Execute(ctx context.Context, req Request) (Response, error) {
	in := CompletionRequest{
		Temperature: r.temperature,
		MaxTokens:   r.maxTokens,
	}
	if v, ok := req.Options["temperature"].(float32); ok {
		in.Temperature = v
	}
	if v, ok := req.Options["max_tokens"].(int); ok && v > 0 {
		in.MaxTokens = v
	}

	if system := r.systemPrompt(req); system != "" {
		in.Messages = append(in.Messages, NewSystemMessage(system))
	}
	in.Messages = append(in.Messages, NewUserMessage(req.Prompt))

	r.logger.Debug("executing %s/%s against %s", req.AgentName, req.SessionID, r.client.GetModelName())

	resp, err := r.client.Complete(ctx, in)
	if err != nil {
		return Response{}, fmt.Errorf("agent runtime call failed for %s: %w", req.AgentName, err)
	}
	return Response{Response: resp.Content}, nil
}

// systemPrompt folds the base system text with the tool and skill listings
// the caller allows for this phase.
func (r *LLMRuntime) systemPrompt(req Request) string {
	var parts []string
	if r.systemBase != "" {
		parts = append(parts, r.systemBase)
	}
	if len(req.Tools) > 0 {
		parts = append(parts, "Available tools: "+strings.Join(req.Tools, ", "))
	}
	if len(req.Skills) > 0 {
		parts = append(parts, "Available skills: "+strings.Join(req.Skills, ", "))
	}
	return strings.Join(parts, "\n\n")
}
