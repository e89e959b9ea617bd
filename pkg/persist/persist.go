// Package persist defines the state persistence port for FSM instances and
// provides JSON-file and SQLite backed repositories.
package persist

import "errors"

// Sentinel errors for repository failures.
var (
	// ErrNotFound indicates no state is stored for the requested FSM ID.
	ErrNotFound = errors.New("state not found")

	// ErrInvalidData indicates stored data could not be decoded.
	ErrInvalidData = errors.New("invalid state data")

	// ErrStorage indicates an underlying storage failure.
	ErrStorage = errors.New("storage error")
)

// StateRepository stores only the current state string per FSM ID, not the
// transition history.
type StateRepository interface {
	// GetState returns the persisted state for the FSM ID.
	GetState(fsmID string) (string, error)

	// SetState persists the current state for the FSM ID.
	SetState(fsmID, state string) error
}
