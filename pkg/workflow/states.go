// Package workflow implements the LLM-driven orchestration loop: a 6-state
// cycle built on the FSM engine, with one phase executor per non-terminal
// state, a mutable cross-iteration context, and hard budget enforcement that
// overrides model output before every transition.
package workflow

import (
	"agentloop/pkg/events"
	"agentloop/pkg/fsm"
	"agentloop/pkg/persist"
	"agentloop/pkg/resilience"
)

// State aliases the engine's state type for workflow signatures.
type State = fsm.State

// The six workflow states. done is terminal for one run.
const (
	StateIntake     State = "intake"
	StatePlan       State = "plan"
	StateAct        State = "act"
	StateSynthesize State = "synthesize"
	StateCheck      State = "check"
	StateDone       State = "done"
)

// Transitions is the workflow's allowed-transition table.
//
//nolint:gochecknoglobals // static transition table
var Transitions = map[State][]State{
	StateIntake:     {StatePlan, StateDone},
	StatePlan:       {StateAct, StateDone},
	StateAct:        {StateSynthesize},
	StateSynthesize: {StateCheck},
	StateCheck:      {StateAct, StatePlan, StateDone},
}

// MachineOptions carries the optional FSM collaborators for one run.
type MachineOptions struct {
	Repo        persist.StateRepository
	Mediator    *events.Mediator
	Observers   []fsm.Observer
	Reliability *resilience.Config
}

// NewMachine builds the workflow FSM for one run, starting at intake.
func NewMachine(runID string, opts MachineOptions) (*fsm.Machine, error) {
	b := fsm.NewBuilder()
	for from, targets := range Transitions {
		b.WithTransitions(from, targets...)
	}
	if opts.Repo != nil {
		b.WithPersistence(opts.Repo)
	}
	if opts.Mediator != nil {
		b.WithMediator(opts.Mediator)
	}
	for _, obs := range opts.Observers {
		b.WithObserver(obs)
	}
	if opts.Reliability != nil {
		b.WithReliability(opts.Reliability)
	}
	return b.Build(runID, StateIntake) //nolint:wrapcheck // builder error surfaced as-is
}
