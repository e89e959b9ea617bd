// Package metrics provides Prometheus-based recording for workflow runs and
// a query service to aggregate a run's totals from a Prometheus server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"agentloop/pkg/events"
	"agentloop/pkg/fsm"
)

// Recorder owns the workflow metric families. Each Recorder carries its own
// registry, so independent instances never collide on registration.
type Recorder struct {
	registry *prometheus.Registry

	transitionsTotal  *prometheus.CounterVec
	phaseDuration     *prometheus.HistogramVec
	llmRequestsTotal  *prometheus.CounterVec
	promptTokensTotal *prometheus.CounterVec
}

// NewRecorder creates a recorder with a fresh registry.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		transitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentloop_transitions_total",
				Help: "Total FSM transitions by edge",
			},
			[]string{"fsm_id", "from_state", "to_state"},
		),
		phaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentloop_phase_duration_seconds",
				Help:    "Duration of workflow phase executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"run_id", "phase"},
		),
		llmRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentloop_llm_requests_total",
				Help: "Total LLM requests by run and phase",
			},
			[]string{"run_id", "phase"},
		),
		promptTokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentloop_llm_prompt_tokens_total",
				Help: "Estimated prompt tokens sent by run and phase",
			},
			[]string{"run_id", "phase"},
		),
	}
}

// Registry exposes the recorder's registry for serving /metrics.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ForRun binds the recorder to one run ID, yielding the per-phase recorder
// the orchestrator consumes.
func (r *Recorder) ForRun(runID string) *RunRecorder {
	return &RunRecorder{recorder: r, runID: runID}
}

// Observer returns an FSM observer that counts transitions.
func (r *Recorder) Observer() fsm.Observer {
	return &transitionObserver{recorder: r}
}

// RunRecorder records phase measurements for a single run.
type RunRecorder struct {
	recorder *Recorder
	runID    string
}

// ObservePhaseDuration records one phase execution.
func (rr *RunRecorder) ObservePhaseDuration(phase string, seconds float64) {
	rr.recorder.phaseDuration.WithLabelValues(rr.runID, phase).Observe(seconds)
}

// RecordLLMRequest counts one runtime call and its estimated prompt tokens.
func (rr *RunRecorder) RecordLLMRequest(phase string, promptTokens int) {
	rr.recorder.llmRequestsTotal.WithLabelValues(rr.runID, phase).Inc()
	rr.recorder.promptTokensTotal.WithLabelValues(rr.runID, phase).Add(float64(promptTokens))
}

type transitionObserver struct {
	recorder *Recorder
}

func (o *transitionObserver) OnTransition(e events.TransitionEvent) error {
	o.recorder.transitionsTotal.WithLabelValues(e.FSMID, e.FromState, e.ToState).Inc()
	return nil
}
