package fsm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentloop/pkg/events"
	"agentloop/pkg/persist"
)

func newTestMachine(t *testing.T, opts ...func(*Builder)) *Machine {
	t.Helper()
	b := NewBuilder().
		WithTransition("A", "B").
		WithTransition("B", "C")
	for _, opt := range opts {
		opt(b)
	}
	m, err := b.Build("fsm-test", "A")
	require.NoError(t, err)
	return m
}

func TestTransitionToValid(t *testing.T) {
	m := newTestMachine(t)

	record, err := m.TransitionTo(context.Background(), "B", nil)
	require.NoError(t, err)

	assert.Equal(t, State("B"), m.GetState())
	assert.Equal(t, "fsm-test", record.FSMID)
	assert.Equal(t, State("A"), record.FromState)
	assert.Equal(t, State("B"), record.ToState)
	assert.False(t, record.Timestamp.IsZero())
}

func TestTransitionToInvalidLeavesStateUnchanged(t *testing.T) {
	hookRan := false
	m := newTestMachine(t, func(b *Builder) {
		b.OnExit("A", func(context.Context, HookContext) error {
			hookRan = true
			return nil
		})
	})

	_, err := m.TransitionTo(context.Background(), "C", nil)
	require.ErrorIs(t, err, ErrInvalidTransition)

	assert.Equal(t, State("A"), m.GetState())
	assert.False(t, hookRan, "no hooks should run on a rejected transition")
	assert.Empty(t, m.History())
}

func TestIsTransitionValid(t *testing.T) {
	m := newTestMachine(t)

	assert.True(t, m.IsTransitionValid("A", "B"))
	assert.False(t, m.IsTransitionValid("A", "C"))
	assert.False(t, m.IsTransitionValid("C", "A"))
}

func TestHookContextContents(t *testing.T) {
	var exitCtx, entryCtx HookContext
	m := newTestMachine(t, func(b *Builder) {
		b.OnExit("A", func(_ context.Context, hctx HookContext) error {
			exitCtx = hctx
			return nil
		})
		b.OnEntry("B", func(_ context.Context, hctx HookContext) error {
			entryCtx = hctx
			return nil
		})
	})

	_, err := m.TransitionTo(context.Background(), "B", map[string]any{"reason": "advance"})
	require.NoError(t, err)

	for _, hctx := range []HookContext{exitCtx, entryCtx} {
		require.NotNil(t, hctx)
		assert.Equal(t, "fsm-test", hctx["fsm_id"])
		assert.Equal(t, State("A"), hctx["state"], "hook context carries the state being left")
		assert.Equal(t, "advance", hctx["reason"])
	}
}

func TestHookFailureDoesNotBlockTransition(t *testing.T) {
	m := newTestMachine(t, func(b *Builder) {
		b.OnExit("A", func(context.Context, HookContext) error {
			return errors.New("exit hook down")
		})
		b.OnEntry("B", func(context.Context, HookContext) error {
			return errors.New("entry hook down")
		})
	})

	record, err := m.TransitionTo(context.Background(), "B", nil)
	require.NoError(t, err)
	assert.Equal(t, State("B"), m.GetState())
	assert.Equal(t, State("B"), record.ToState)
	assert.Len(t, m.History(), 1)
}

func TestGuardsAreNotConsulted(t *testing.T) {
	guardCalled := false
	m := newTestMachine(t, func(b *Builder) {
		b.WithGuard("A", "B", func(HookContext) bool {
			guardCalled = true
			return false
		})
	})

	_, err := m.TransitionTo(context.Background(), "B", nil)
	require.NoError(t, err, "a vetoing guard must not block the transition")
	assert.Equal(t, State("B"), m.GetState())
	assert.False(t, guardCalled, "guards are stored but never evaluated")
}

func TestPersistenceSuccess(t *testing.T) {
	store := persist.NewMemStore()
	m := newTestMachine(t, func(b *Builder) {
		b.WithPersistence(store)
	})

	_, err := m.TransitionTo(context.Background(), "B", nil)
	require.NoError(t, err)

	saved, err := store.GetState("fsm-test")
	require.NoError(t, err)
	assert.Equal(t, "B", saved)
}

type failingRepo struct{}

func (failingRepo) GetState(string) (string, error) { return "", errors.New("repo down") }
func (failingRepo) SetState(string, string) error   { return errors.New("repo down") }

func TestPersistenceFailureReturnsErrorAfterMutation(t *testing.T) {
	published := 0
	mediator := events.NewMediator()
	mediator.Subscribe(func(events.TransitionEvent) error {
		published++
		return nil
	})

	obs := &recordingObserver{}
	m := newTestMachine(t, func(b *Builder) {
		b.WithPersistence(failingRepo{})
		b.WithMediator(mediator)
		b.WithObserver(obs)
	})

	_, err := m.TransitionTo(context.Background(), "B", nil)
	require.ErrorIs(t, err, ErrPersistence)

	// In-memory state already mutated; events, observers and history are
	// skipped when persistence fails.
	assert.Equal(t, State("B"), m.GetState())
	assert.Zero(t, published)
	assert.Empty(t, obs.events)
	assert.Empty(t, m.History())
}

type recordingObserver struct {
	events []events.TransitionEvent
}

func (o *recordingObserver) OnTransition(e events.TransitionEvent) error {
	o.events = append(o.events, e)
	return nil
}

type failingObserver struct{ panics bool }

func (o *failingObserver) OnTransition(events.TransitionEvent) error {
	if o.panics {
		panic("observer blew up")
	}
	return errors.New("observer down")
}

func TestObserverFailuresAreIsolated(t *testing.T) {
	good := &recordingObserver{}
	m := newTestMachine(t, func(b *Builder) {
		b.WithObserver(&failingObserver{panics: true})
		b.WithObserver(&failingObserver{})
		b.WithObserver(good)
	})

	_, err := m.TransitionTo(context.Background(), "B", nil)
	require.NoError(t, err)
	require.Len(t, good.events, 1)
	assert.Equal(t, "A", good.events[0].FromState)
	assert.Equal(t, "B", good.events[0].ToState)
}

func TestMediatorReceivesDomainEvent(t *testing.T) {
	mediator := events.NewMediator()
	var got events.TransitionEvent
	mediator.Subscribe(func(e events.TransitionEvent) error {
		got = e
		return nil
	})

	m := newTestMachine(t, func(b *Builder) {
		b.WithMediator(mediator)
	})

	_, err := m.TransitionTo(context.Background(), "B", nil)
	require.NoError(t, err)
	assert.Equal(t, "fsm-test", got.FSMID)
	assert.Equal(t, events.CategoryDomain, got.Category)
}

func TestHistoryIsAppendOnlyAndOrdered(t *testing.T) {
	m := newTestMachine(t)

	_, err := m.TransitionTo(context.Background(), "B", nil)
	require.NoError(t, err)
	_, err = m.TransitionTo(context.Background(), "C", nil)
	require.NoError(t, err)

	history := m.History()
	require.Len(t, history, 2)
	assert.Equal(t, State("A"), history[0].FromState)
	assert.Equal(t, State("B"), history[0].ToState)
	assert.Equal(t, State("B"), history[1].FromState)
	assert.Equal(t, State("C"), history[1].ToState)

	// The returned slice is a copy.
	history[0].ToState = "Z"
	assert.Equal(t, State("B"), m.History()[0].ToState)
}

func TestBuildRejectsInvalidInitialState(t *testing.T) {
	_, err := NewBuilder().
		WithTransition("A", "B").
		Build("fsm-bad", "Z")
	require.ErrorIs(t, err, ErrInvalidInitialState)
}

func TestBuildAllowsAnyInitialStateWhenStateSetEmpty(t *testing.T) {
	m, err := NewBuilder().Build("fsm-empty", "ANY")
	require.NoError(t, err)
	assert.Equal(t, State("ANY"), m.GetState())
}

func TestWithTransitionAutoAddsStates(t *testing.T) {
	m, err := NewBuilder().
		WithTransition("X", "Y").
		Build("fsm-auto", "Y")
	require.NoError(t, err)
	assert.Equal(t, State("Y"), m.GetState())
}

func TestBuilderReuseProducesIndependentMachines(t *testing.T) {
	b := NewBuilder().WithTransition("A", "B")

	m1, err := b.Build("fsm-1", "A")
	require.NoError(t, err)
	m2, err := b.Build("fsm-2", "A")
	require.NoError(t, err)

	_, err = m1.TransitionTo(context.Background(), "B", nil)
	require.NoError(t, err)

	assert.Equal(t, State("B"), m1.GetState())
	assert.Equal(t, State("A"), m2.GetState())
	assert.Empty(t, m2.History())
}
