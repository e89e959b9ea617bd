package persist

import (
	"fmt"
	"sync"
)

// MemStore is an in-memory StateRepository, useful for tests and ephemeral
// runs that do not need durability.
type MemStore struct {
	mu     sync.RWMutex
	states map[string]string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{states: make(map[string]string)}
}

// GetState implements StateRepository.
func (s *MemStore) GetState(fsmID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[fsmID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, fsmID)
	}
	return state, nil
}

// SetState implements StateRepository.
func (s *MemStore) SetState(fsmID, state string) error {
	if fsmID == "" || state == "" {
		return fmt.Errorf("%w: fsmID and state must be non-empty", ErrInvalidData)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[fsmID] = state
	return nil
}
