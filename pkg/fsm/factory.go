package fsm

import "fmt"

// Canonical lifecycle states for simple managed components.
const (
	StateIdle    State = "IDLE"
	StateRunning State = "RUNNING"
	StatePaused  State = "PAUSED"
	StateStopped State = "STOPPED"
)

// NewLifecycle builds a plain lifecycle machine with no hooks or
// collaborators:
//
//	IDLE -> RUNNING -> PAUSED -> RUNNING
//	RUNNING -> STOPPED, PAUSED -> STOPPED
//
// STOPPED is terminal.
func NewLifecycle(id string) (*Machine, error) {
	return NewBuilder().
		WithTransition(StateIdle, StateRunning).
		WithTransitions(StateRunning, StatePaused, StateStopped).
		WithTransitions(StatePaused, StateRunning, StateStopped).
		Build(id, StateIdle)
}

// NewLinearWorkflow builds a state-only chain where each step transitions to
// the next and the final step is terminal. The machine starts at the first
// step. At least one step is required.
func NewLinearWorkflow(id string, steps ...State) (*Machine, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("linear workflow %s requires at least one step", id)
	}

	b := NewBuilder()
	for i, step := range steps {
		b.WithState(step)
		if i+1 < len(steps) {
			b.WithTransition(step, steps[i+1])
		}
	}
	return b.Build(id, steps[0])
}
