package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentloop/pkg/agent"
	"agentloop/pkg/events"
	"agentloop/pkg/fsm"
	"agentloop/pkg/persist"
	"agentloop/pkg/resilience/ratelimit"
)

// scriptedRuntime replays canned responses per phase, recording call order.
type scriptedRuntime struct {
	responses map[string][]string
	errOn     map[string]error
	calls     []string
}

func (s *scriptedRuntime) Execute(_ context.Context, req agent.Request) (agent.Response, error) {
	s.calls = append(s.calls, req.AgentName)
	if err, ok := s.errOn[req.AgentName]; ok {
		return agent.Response{}, err
	}
	queue := s.responses[req.AgentName]
	if len(queue) == 0 {
		return agent.Response{}, fmt.Errorf("no scripted response left for %s", req.AgentName)
	}
	next := queue[0]
	s.responses[req.AgentName] = queue[1:]
	return agent.Response{Response: next}, nil
}

func happyPathRuntime() *scriptedRuntime {
	return &scriptedRuntime{
		responses: map[string][]string{
			"intake": {`{"intent": "audit configs", "constraints": ["read-only"], "initial_evidence": []}`},
			"plan": {
				`{"todos": [{"id": "t1", "description": "inspect configs", "priority": "high"}]}`,
				`{"todos": []}`,
			},
			"act": {
				`{"action": {"tool_name": "grep", "status": "success", "result_summary": "found 3 configs", "artifacts": ["configs.txt"]}, "artifacts": []}`,
			},
			"synthesize": {
				`{"findings": [{"title": "plain creds", "description": "d", "severity": "medium"}]}`,
				`{"findings": []}`,
			},
			"check": {
				`{"current_todo_id": "t1", "todo_complete": true, "next_phase": "plan", "confidence": 0.9, "reasoning": "todo finished"}`,
			},
		},
	}
}

func bigBudget() Budget {
	return Budget{
		MaxIterations:       20,
		MaxToolCalls:        50,
		MaxWallTimeSeconds:  3600,
		StagnationThreshold: 5,
		MaxRiskLevel:        SeverityHigh,
	}
}

func TestRunHappyPath(t *testing.T) {
	rt := happyPathRuntime()
	o, err := New(Config{
		RunID:   "run-e2e",
		Task:    "audit the configs",
		Budget:  bigBudget(),
		Runtime: rt,
	})
	require.NoError(t, err)

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopCompleted, result.StopReason)
	assert.Equal(t, StateDone, result.FinalState)
	assert.Equal(t, 2, result.IterationCount)
	assert.Equal(t, 1, result.BudgetConsumed.ToolCalls)

	// The second check sees no current todo and no pending todos, so it
	// routes to done without a model call.
	assert.Equal(t, []string{"intake", "plan", "act", "synthesize", "check", "plan", "synthesize"}, rt.calls)
	assert.Empty(t, rt.responses["check"], "the scripted check response must be consumed exactly once")

	// The exact 9-edge walk: one full loop through plan, then the exit.
	var walk []string
	for _, rec := range o.Machine().History() {
		walk = append(walk, string(rec.FromState)+">"+string(rec.ToState))
	}
	assert.Equal(t, []string{
		"intake>plan",
		"plan>act",
		"act>synthesize",
		"synthesize>check",
		"check>plan",
		"plan>act",
		"act>synthesize",
		"synthesize>check",
		"check>done",
	}, walk)

	// Todo lifecycle: created, worked, completed.
	todo := o.Context().Todos["t1"]
	require.NotNil(t, todo)
	assert.Equal(t, TodoCompleted, todo.Status)
	assert.Empty(t, o.Context().CurrentTodoID)
	assert.Contains(t, o.Context().Evidence, "grep: found 3 configs")
	assert.Contains(t, o.Context().Artifacts, "configs.txt")
}

func TestRunPersistsStateTransitions(t *testing.T) {
	store := persist.NewMemStore()
	o, err := New(Config{
		RunID:   "run-persist",
		Task:    "t",
		Budget:  bigBudget(),
		Runtime: happyPathRuntime(),
		Machine: MachineOptions{Repo: store},
	})
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	require.NoError(t, err)

	saved, err := store.GetState("run-persist")
	require.NoError(t, err)
	assert.Equal(t, "done", saved)
}

func TestRunActSkippedWithoutCurrentTodo(t *testing.T) {
	rt := &scriptedRuntime{
		responses: map[string][]string{
			"intake":     {`{"intent": "x", "constraints": [], "initial_evidence": []}`},
			"plan":       {`{"todos": []}`},
			"synthesize": {`{"findings": []}`},
		},
	}
	o, err := New(Config{Task: "t", Budget: bigBudget(), Runtime: rt})
	require.NoError(t, err)

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopCompleted, result.StopReason)
	assert.NotContains(t, rt.calls, "act")
	assert.NotContains(t, rt.calls, "check")
	assert.Zero(t, result.BudgetConsumed.ToolCalls)
}

func TestRunAbortsOnRuntimeError(t *testing.T) {
	rt := happyPathRuntime()
	rt.errOn = map[string]error{"plan": errors.New("provider down")}

	o, err := New(Config{Task: "t", Budget: bigBudget(), Runtime: rt})
	require.NoError(t, err)

	result, err := o.Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "plan")
	assert.Equal(t, StopFailed, result.StopReason)
	// plan has a legal edge to done, so the abort lands there.
	assert.Equal(t, StateDone, result.FinalState)
}

func TestRunAbortsOnMalformedPhaseOutput(t *testing.T) {
	rt := happyPathRuntime()
	rt.responses["act"] = []string{"sorry, I cannot produce JSON today"}

	o, err := New(Config{Task: "t", Budget: bigBudget(), Runtime: rt})
	require.NoError(t, err)

	result, err := o.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPhaseOutput)
	assert.Equal(t, StopFailed, result.StopReason)
	// act has no edge to done; the run stops in place.
	assert.Equal(t, StateAct, result.FinalState)
}

func TestRunSafetyCeilingForcesStop(t *testing.T) {
	o, err := New(Config{
		Task:    "t",
		Budget:  Budget{MaxIterations: 1},
		Runtime: happyPathRuntime(),
	})
	require.NoError(t, err)

	// Simulate a check phase whose budget logic failed to converge.
	o.Context().IterationCount = 3

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopSafetyCeiling, result.StopReason)
	assert.Equal(t, StateIntake, result.FinalState)
}

func TestRunRateLimiterGatesPhases(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.Config{Capacity: 1, RefillPerSecond: 0.0001})

	o, err := New(Config{
		Task:            "t",
		Budget:          bigBudget(),
		Runtime:         happyPathRuntime(),
		RateLimiter:     limiter,
		LimiterResource: "anthropic",
		Estimator:       func(string) int { return 100 },
	})
	require.NoError(t, err)

	result, err := o.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ratelimit.ErrRateLimitExceeded)
	assert.Equal(t, StopFailed, result.StopReason)
}

func TestRunBlockingQuestionStops(t *testing.T) {
	rt := happyPathRuntime()
	rt.responses["check"] = []string{
		`{"current_todo_id": "t1", "todo_complete": false, "next_phase": "act", "blocking_question": "which env?", "reasoning": "unclear"}`,
	}

	o, err := New(Config{Task: "t", Budget: bigBudget(), Runtime: rt})
	require.NoError(t, err)

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopBlockingQuestion, result.StopReason)
	assert.Equal(t, "which env?", result.BlockingQuestion)
	// The todo was not completed: the question blocks it.
	assert.Equal(t, TodoRunning, o.Context().Todos["t1"].Status)
}

func TestRunGeneratesRunID(t *testing.T) {
	o, err := New(Config{Task: "t", Runtime: happyPathRuntime()})
	require.NoError(t, err)
	assert.NotEmpty(t, o.RunID())
}

func TestRunRequiresRuntime(t *testing.T) {
	_, err := New(Config{Task: "t"})
	require.Error(t, err)
}

type countingObserver struct {
	transitions []string
}

func (c *countingObserver) OnTransition(e events.TransitionEvent) error {
	c.transitions = append(c.transitions, e.FromState+">"+e.ToState)
	return nil
}

var _ fsm.Observer = (*countingObserver)(nil)

func TestRunNotifiesObservers(t *testing.T) {
	obs := &countingObserver{}
	o, err := New(Config{
		Task:    "t",
		Budget:  bigBudget(),
		Runtime: happyPathRuntime(),
		Machine: MachineOptions{Observers: []fsm.Observer{obs}},
	})
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, obs.transitions, 9)
	assert.Equal(t, "intake>plan", obs.transitions[0])
	assert.Equal(t, "check>done", obs.transitions[8])
}
