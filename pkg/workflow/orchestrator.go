package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"agentloop/pkg/agent"
	"agentloop/pkg/fsm"
	"agentloop/pkg/logx"
	"agentloop/pkg/resilience/ratelimit"
)

// MetricsRecorder receives phase-level measurements. Implementations must be
// safe for use from multiple orchestrator instances.
type MetricsRecorder interface {
	ObservePhaseDuration(phase string, seconds float64)
	RecordLLMRequest(phase string, promptTokens int)
}

// TokenEstimator estimates the token cost of a prompt, feeding the
// rate limiter.
type TokenEstimator func(text string) int

// Config assembles one orchestrator run.
type Config struct {
	RunID     string // generated when empty
	SessionID string
	Task      string
	Budget    Budget

	Runtime agent.Runtime
	Tools   []string
	Skills  []string

	// Engine collaborators, all optional.
	Machine MachineOptions

	// RateLimiter gates runtime calls by estimated prompt tokens when set.
	RateLimiter     *ratelimit.Limiter
	LimiterResource string
	Estimator       TokenEstimator

	Metrics MetricsRecorder
}

// RunResult summarizes one finished run for the caller.
type RunResult struct {
	StopReason       StopReason     `json:"stop_reason"`
	IterationCount   int            `json:"iteration_count"`
	FinalState       State          `json:"final_state"`
	ContextSummary   string         `json:"context_summary"`
	BudgetConsumed   BudgetConsumed `json:"budget_consumed"`
	PhaseOutputs     map[State]any  `json:"phase_outputs"`
	BlockingQuestion string         `json:"blocking_question,omitempty"`
}

// Orchestrator drives one workflow run: a single logical thread that
// dispatches the current state to its phase executor and transitions the
// underlying FSM until done.
type Orchestrator struct {
	runID   string
	session string
	task    string
	budget  Budget

	machine *fsm.Machine
	context *Context
	runtime agent.Runtime
	tools   []string
	skills  []string

	limiter         *ratelimit.Limiter
	limiterResource string
	estimator       TokenEstimator

	metrics MetricsRecorder
	logger  *logx.Logger

	stopReason       StopReason
	blockingQuestion string
}

// New builds an orchestrator and its workflow FSM. The FSM starts at intake;
// a fresh orchestrator is required for each run.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Runtime == nil {
		return nil, fmt.Errorf("orchestrator requires an agent runtime")
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	machine, err := NewMachine(runID, cfg.Machine)
	if err != nil {
		return nil, fmt.Errorf("building workflow FSM: %w", err)
	}

	budget := cfg.Budget
	if budget == (Budget{}) {
		budget = DefaultBudget
	}

	return &Orchestrator{
		runID:           runID,
		session:         cfg.SessionID,
		task:            cfg.Task,
		budget:          budget,
		machine:         machine,
		context:         NewContext(),
		runtime:         cfg.Runtime,
		tools:           cfg.Tools,
		skills:          cfg.Skills,
		limiter:         cfg.RateLimiter,
		limiterResource: cfg.LimiterResource,
		estimator:       cfg.Estimator,
		metrics:         cfg.Metrics,
		logger:          logx.NewLogger("workflow"),
	}, nil
}

// RunID returns the run's FSM instance ID.
func (o *Orchestrator) RunID() string { return o.runID }

// Context exposes the run context for inspection after Run returns.
func (o *Orchestrator) Context() *Context { return o.context }

// Machine exposes the underlying FSM, mainly for its transition history.
func (o *Orchestrator) Machine() *fsm.Machine { return o.machine }

// Run drives the loop until the FSM reaches done or a safety ceiling trips.
// Phase errors abort the run: the result carries StopFailed and the error is
// returned alongside it.
func (o *Orchestrator) Run(ctx context.Context) (RunResult, error) {
	o.logger.Info("run %s starting: %s", o.runID, o.task)

	for {
		state := o.machine.GetState()
		if state == StateDone {
			break
		}

		// Independent ceiling in case the check phase's own budget logic
		// fails to converge.
		if o.budget.MaxIterations > 0 && o.context.IterationCount > 2*o.budget.MaxIterations {
			o.logger.Error("run %s exceeded 2x iteration ceiling at %d, forcing stop",
				o.runID, o.context.IterationCount)
			o.stopReason = StopSafetyCeiling
			break
		}

		next, err := o.dispatch(ctx, state)
		if err != nil {
			o.logger.Error("run %s phase %s failed: %v", o.runID, state, err)
			o.abortToDone(ctx, state)
			o.stopReason = StopFailed
			return o.result(), fmt.Errorf("phase %s: %w", state, err)
		}

		if _, err := o.machine.TransitionTo(ctx, next, map[string]any{"phase": string(state)}); err != nil {
			o.logger.Error("run %s transition %s -> %s failed: %v", o.runID, state, next, err)
			o.stopReason = StopFailed
			return o.result(), fmt.Errorf("transition %s -> %s: %w", state, next, err)
		}
	}

	if o.stopReason == "" {
		o.stopReason = StopCompleted
	}
	o.logger.Info("run %s finished: %s after %d iterations", o.runID, o.stopReason, o.context.IterationCount)
	return o.result(), nil
}

// dispatch routes the current state to its phase executor. done has no
// executor; reaching here in done is a programming error surfaced as one.
func (o *Orchestrator) dispatch(ctx context.Context, state State) (State, error) {
	start := time.Now()
	defer func() {
		if o.metrics != nil {
			o.metrics.ObservePhaseDuration(string(state), time.Since(start).Seconds())
		}
	}()

	switch state {
	case StateIntake:
		return o.runIntake(ctx)
	case StatePlan:
		return o.runPlan(ctx)
	case StateAct:
		return o.runAct(ctx)
	case StateSynthesize:
		return o.runSynthesize(ctx)
	case StateCheck:
		return o.runCheck(ctx)
	default:
		return "", fmt.Errorf("no phase executor for state %q", state)
	}
}

// invoke calls the agent runtime for one phase, gated by the token-aware
// rate limiter when one is configured.
func (o *Orchestrator) invoke(ctx context.Context, phase State, prompt string) (string, error) {
	tokens := 1
	if o.estimator != nil {
		if estimated := o.estimator(prompt); estimated > 0 {
			tokens = estimated
		}
	}
	if o.limiter != nil {
		if err := o.limiter.TryAcquire(o.limiterResource, tokens); err != nil {
			return "", fmt.Errorf("rate limit for %s phase: %w", phase, err)
		}
	}
	if o.metrics != nil {
		o.metrics.RecordLLMRequest(string(phase), tokens)
	}

	resp, err := o.runtime.Execute(ctx, agent.Request{
		AgentName: string(phase),
		SessionID: o.session,
		Prompt:    prompt,
		Tools:     o.tools,
		Skills:    o.skills,
		Options:   nil,
	})
	if err != nil {
		return "", err //nolint:wrapcheck // runtime errors carry phase context already
	}
	return resp.Response, nil
}

// abortToDone best-effort moves the FSM to done after a phase failure. Not
// every state has a legal edge to done; an invalid abort transition is
// logged and the loop stops anyway.
func (o *Orchestrator) abortToDone(ctx context.Context, from State) {
	if !o.machine.IsTransitionValid(from, StateDone) {
		o.logger.Warn("run %s cannot transition %s -> done for abort, stopping in place", o.runID, from)
		return
	}
	if _, err := o.machine.TransitionTo(ctx, StateDone, map[string]any{"abort": true}); err != nil {
		o.logger.Warn("run %s abort transition failed: %v", o.runID, err)
	}
}

func (o *Orchestrator) result() RunResult {
	o.context.BudgetConsumed.WallTimeSeconds = o.context.ElapsedSeconds()
	return RunResult{
		StopReason:       o.stopReason,
		IterationCount:   o.context.IterationCount,
		FinalState:       o.machine.GetState(),
		ContextSummary:   o.context.Summary(),
		BudgetConsumed:   o.context.BudgetConsumed,
		PhaseOutputs:     o.context.LastOutputs,
		BlockingQuestion: o.blockingQuestion,
	}
}
