package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// RunMetrics aggregates what one workflow run consumed, as recorded in
// Prometheus.
type RunMetrics struct {
	RunID        string  `json:"run_id"`
	LLMRequests  int64   `json:"llm_requests"`
	PromptTokens int64   `json:"prompt_tokens"`
	PhaseSeconds float64 `json:"phase_seconds"`
	Transitions  int64   `json:"transitions"`
}

// QueryService queries aggregated run metrics from a Prometheus server.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a query service against the given Prometheus URL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{Address: prometheusURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetRunMetrics aggregates token, request and duration totals for one run.
func (q *QueryService) GetRunMetrics(ctx context.Context, runID string) (*RunMetrics, error) {
	metrics := &RunMetrics{RunID: runID}

	requests, err := q.sum(ctx, fmt.Sprintf(`sum(agentloop_llm_requests_total{run_id=%q})`, runID))
	if err != nil {
		return nil, fmt.Errorf("failed to query llm requests: %w", err)
	}
	metrics.LLMRequests = int64(requests)

	tokens, err := q.sum(ctx, fmt.Sprintf(`sum(agentloop_llm_prompt_tokens_total{run_id=%q})`, runID))
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	metrics.PromptTokens = int64(tokens)

	seconds, err := q.sum(ctx, fmt.Sprintf(`sum(agentloop_phase_duration_seconds_sum{run_id=%q})`, runID))
	if err != nil {
		return nil, fmt.Errorf("failed to query phase durations: %w", err)
	}
	metrics.PhaseSeconds = seconds

	transitions, err := q.sum(ctx, fmt.Sprintf(`sum(agentloop_transitions_total{fsm_id=%q})`, runID))
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	metrics.Transitions = int64(transitions)

	return metrics, nil
}

// sum runs an instant query and returns the first sample value, or 0 when
// the series does not exist yet.
func (q *QueryService) sum(ctx context.Context, query string) (float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, err //nolint:wrapcheck // callers add the query context
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}
