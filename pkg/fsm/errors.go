package fsm

import "errors"

// Sentinel errors for engine and builder failures.
var (
	// ErrInvalidTransition indicates the requested transition is not in the
	// transition map. State is left unchanged and no hooks run.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrPersistence indicates the in-memory state changed but could not be
	// durably saved. In-memory state is authoritative; persistence may lag.
	ErrPersistence = errors.New("failed to persist state")

	// ErrUndefinedStateInTransition indicates a transition references a state
	// missing from the state set at build time.
	ErrUndefinedStateInTransition = errors.New("transition references undefined state")

	// ErrInvalidInitialState indicates the initial state is not in the state
	// set at build time.
	ErrInvalidInitialState = errors.New("initial state not in state set")
)
