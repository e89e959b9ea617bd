package fsm

import (
	"fmt"

	"agentloop/pkg/events"
	"agentloop/pkg/logx"
	"agentloop/pkg/persist"
	"agentloop/pkg/resilience"
)

// Builder accumulates states, transitions, hooks, guards and collaborators,
// then produces an immutable Machine. States referenced by WithTransition are
// added automatically; WithState is only needed for isolated states.
type Builder struct {
	states      map[State]struct{}
	transitions map[State][]State
	entryHooks  map[State]Hook
	exitHooks   map[State]Hook
	guards      map[transitionKey]Guard

	repo        persist.StateRepository
	mediator    *events.Mediator
	observers   []Observer
	reliability *resilience.Config
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		states:      make(map[State]struct{}),
		transitions: make(map[State][]State),
		entryHooks:  make(map[State]Hook),
		exitHooks:   make(map[State]Hook),
		guards:      make(map[transitionKey]Guard),
	}
}

// WithState adds a state to the state set.
func (b *Builder) WithState(s State) *Builder {
	b.addState(s)
	return b
}

// WithTransition adds an edge from -> to, auto-adding both states.
func (b *Builder) WithTransition(from, to State) *Builder {
	b.addState(from)
	b.addState(to)
	for _, existing := range b.transitions[from] {
		if existing == to {
			return b
		}
	}
	b.transitions[from] = append(b.transitions[from], to)
	return b
}

// WithTransitions adds edges from one state to several targets.
func (b *Builder) WithTransitions(from State, targets ...State) *Builder {
	for _, to := range targets {
		b.WithTransition(from, to)
	}
	return b
}

// OnEntry registers the entry hook for a state, replacing any previous one.
func (b *Builder) OnEntry(s State, hook Hook) *Builder {
	b.addState(s)
	b.entryHooks[s] = hook
	return b
}

// OnExit registers the exit hook for a state, replacing any previous one.
func (b *Builder) OnExit(s State, hook Hook) *Builder {
	b.addState(s)
	b.exitHooks[s] = hook
	return b
}

// WithGuard registers a guard for the from -> to edge. Guards are stored on
// the machine but transition_to does not evaluate them; see Guard.
func (b *Builder) WithGuard(from, to State, guard Guard) *Builder {
	b.addState(from)
	b.addState(to)
	b.guards[transitionKey{from: from, to: to}] = guard
	return b
}

// WithPersistence attaches a state repository. The machine persists its
// state after every transition.
func (b *Builder) WithPersistence(repo persist.StateRepository) *Builder {
	b.repo = repo
	return b
}

// WithMediator attaches an event mediator for domain event publication.
func (b *Builder) WithMediator(m *events.Mediator) *Builder {
	b.mediator = m
	return b
}

// WithObserver appends a transition observer.
func (b *Builder) WithObserver(obs Observer) *Builder {
	b.observers = append(b.observers, obs)
	return b
}

// WithReliability sets the reliability policy applied to hook execution.
func (b *Builder) WithReliability(cfg *resilience.Config) *Builder {
	b.reliability = cfg
	return b
}

// Build validates the accumulated definition and returns a ready machine in
// the given initial state. The builder can be reused after Build; the machine
// holds its own copies.
func (b *Builder) Build(id string, initial State) (*Machine, error) {
	for from, targets := range b.transitions {
		if _, ok := b.states[from]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUndefinedStateInTransition, from)
		}
		for _, to := range targets {
			if _, ok := b.states[to]; !ok {
				return nil, fmt.Errorf("%w: %s", ErrUndefinedStateInTransition, to)
			}
		}
	}

	if len(b.states) > 0 {
		if _, ok := b.states[initial]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidInitialState, initial)
		}
	}

	states := make(map[State]struct{}, len(b.states))
	for s := range b.states {
		states[s] = struct{}{}
	}
	table := make(map[State][]State, len(b.transitions))
	for from, targets := range b.transitions {
		table[from] = append([]State{}, targets...)
	}
	entry := make(map[State]Hook, len(b.entryHooks))
	for s, h := range b.entryHooks {
		entry[s] = h
	}
	exit := make(map[State]Hook, len(b.exitHooks))
	for s, h := range b.exitHooks {
		exit[s] = h
	}
	guards := make(map[transitionKey]Guard, len(b.guards))
	for k, g := range b.guards {
		guards[k] = g
	}

	return &Machine{
		id:         id,
		logger:     logx.NewLogger("fsm"),
		current:    initial,
		states:     states,
		table:      table,
		entryHooks: entry,
		exitHooks:  exit,
		guards:     guards,
		repo:       b.repo,
		mediator:   b.mediator,
		observers:  append([]Observer{}, b.observers...),
		runner:     resilience.NewRunner(b.reliability),
	}, nil
}

func (b *Builder) addState(s State) {
	b.states[s] = struct{}{}
}
