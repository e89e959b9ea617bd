// Package fsm provides a generic finite state machine engine with pluggable
// entry/exit hooks, transition guards, state persistence, event publication
// and observer notification.
package fsm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agentloop/pkg/events"
	"agentloop/pkg/logx"
	"agentloop/pkg/persist"
	"agentloop/pkg/resilience"
)

// State identifies a single FSM state.
type State string

func (s State) String() string { return string(s) }

// TransitionRecord is one entry in the append-only transition history.
type TransitionRecord struct {
	FSMID     string    `json:"fsm_id"`
	FromState State     `json:"from_state"`
	ToState   State     `json:"to_state"`
	Timestamp time.Time `json:"timestamp"`
}

// HookContext carries transition metadata into hooks. It always contains the
// keys "fsm_id" and "state" (the state being left).
type HookContext map[string]any

// Hook runs on entering or exiting a state. Hooks are best-effort: a failing
// hook is logged and never blocks the transition.
type Hook func(ctx context.Context, hctx HookContext) error

// Guard is intended to veto a transition before it happens. Guards are
// accepted by the builder but are NOT evaluated by TransitionTo; they are
// stored and never consulted. See the package tests, which encode this
// behavior deliberately.
type Guard func(hctx HookContext) bool

// Observer is notified after every successful transition. A failing observer
// is logged and does not prevent other observers from being notified.
type Observer interface {
	OnTransition(event events.TransitionEvent) error
}

// transitionKey identifies one edge for guard registration.
type transitionKey struct {
	from State
	to   State
}

// Machine is a generic state container. A Machine is owned by the
// orchestrator that built it; transitions on one instance are totally
// ordered.
type Machine struct {
	id     string
	logger *logx.Logger

	mu      sync.Mutex
	current State
	states  map[State]struct{}
	table   map[State][]State
	history []TransitionRecord

	entryHooks map[State]Hook
	exitHooks  map[State]Hook
	guards     map[transitionKey]Guard // stored, never evaluated

	repo      persist.StateRepository // optional
	mediator  *events.Mediator        // optional
	observers []Observer
	runner    *resilience.Runner
}

// ID returns the FSM instance ID.
func (m *Machine) ID() string { return m.id }

// GetState returns the current state. Never fails.
func (m *Machine) GetState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// IsTransitionValid reports whether from -> to is in the transition map.
func (m *Machine) IsTransitionValid(from, to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isValidLocked(from, to)
}

func (m *Machine) isValidLocked(from, to State) bool {
	for _, candidate := range m.table[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// History returns a copy of the transition history. The history is
// append-only and unbounded for the lifetime of the instance.
func (m *Machine) History() []TransitionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TransitionRecord{}, m.history...)
}

// TransitionTo moves the machine to the target state.
//
// On a valid transition the sequence is strictly: run the exit hook for the
// old state (best-effort), mutate the current state, run the entry hook for
// the new state (best-effort), persist the new state, publish a domain event,
// notify observers, then append and return the TransitionRecord.
//
// A persistence failure returns ErrPersistence even though the in-memory
// state has already changed.
func (m *Machine) TransitionTo(ctx context.Context, to State, metadata map[string]any) (TransitionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.current
	if !m.isValidLocked(from, to) {
		return TransitionRecord{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	// Hook context carries the state being left plus caller metadata.
	hctx := HookContext{
		"fsm_id": m.id,
		"state":  from,
	}
	for k, v := range metadata {
		hctx[k] = v
	}

	if hook, ok := m.exitHooks[from]; ok {
		if err := m.runHook(ctx, hook, hctx); err != nil {
			m.logger.Warn("exit hook for %s failed: %v", from, err)
		}
	}

	m.current = to

	if hook, ok := m.entryHooks[to]; ok {
		if err := m.runHook(ctx, hook, hctx); err != nil {
			m.logger.Warn("entry hook for %s failed: %v", to, err)
		}
	}

	if m.repo != nil {
		if err := m.repo.SetState(m.id, to.String()); err != nil {
			return TransitionRecord{}, fmt.Errorf("%w: %s: %w", ErrPersistence, m.id, err)
		}
	}

	record := TransitionRecord{
		FSMID:     m.id,
		FromState: from,
		ToState:   to,
		Timestamp: time.Now().UTC(),
	}

	event := events.TransitionEvent{
		FSMID:     m.id,
		FromState: from.String(),
		ToState:   to.String(),
		Timestamp: record.Timestamp,
		Category:  events.CategoryDomain,
	}

	if m.mediator != nil {
		if err := m.mediator.Publish(event); err != nil {
			m.logger.Warn("event publish for %s -> %s failed: %v", from, to, err)
		}
	}

	for _, obs := range m.observers {
		m.notifyObserver(obs, event)
	}

	m.history = append(m.history, record)
	m.logger.Debug("transition: %s -> %s", from, to)

	return record, nil
}

// runHook executes a hook through the reliability runner. Hook failures never
// block the transition; they are returned for logging only.
func (m *Machine) runHook(ctx context.Context, hook Hook, hctx HookContext) error {
	return m.runner.Run(ctx, func(ctx context.Context) error {
		return hook(ctx, hctx)
	})
}

// notifyObserver isolates one observer, catching both errors and panics so a
// broken observer cannot starve the rest.
func (m *Machine) notifyObserver(obs Observer, event events.TransitionEvent) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("observer panicked on %s -> %s: %v", event.FromState, event.ToState, r)
		}
	}()
	if err := obs.OnTransition(event); err != nil {
		m.logger.Warn("observer failed on %s -> %s: %v", event.FromState, event.ToState, err)
	}
}
