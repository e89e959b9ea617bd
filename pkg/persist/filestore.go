package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// stateRecord is the on-disk JSON document for one FSM instance.
type stateRecord struct {
	State     string    `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileStore persists FSM states as one JSON file per instance under a base
// directory, named STATE_<fsmID>.json.
type FileStore struct {
	baseDir string
}

// NewFileStore creates the base directory if needed and returns a store.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create state directory %s: %w", ErrStorage, baseDir, err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// GetState implements StateRepository.
func (s *FileStore) GetState(fsmID string) (string, error) {
	if fsmID == "" {
		return "", fmt.Errorf("%w: fsmID cannot be empty", ErrInvalidData)
	}

	data, err := os.ReadFile(s.filename(fsmID))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, fsmID)
		}
		return "", fmt.Errorf("%w: reading state for %s: %w", ErrStorage, fsmID, err)
	}

	var rec stateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", fmt.Errorf("%w: decoding state for %s: %w", ErrInvalidData, fsmID, err)
	}
	if rec.State == "" {
		return "", fmt.Errorf("%w: empty state for %s", ErrInvalidData, fsmID)
	}
	return rec.State, nil
}

// SetState implements StateRepository.
func (s *FileStore) SetState(fsmID, state string) error {
	if fsmID == "" || state == "" {
		return fmt.Errorf("%w: fsmID and state must be non-empty", ErrInvalidData)
	}

	rec := stateRecord{State: state, UpdatedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding state for %s: %w", ErrStorage, fsmID, err)
	}

	if err := os.WriteFile(s.filename(fsmID), data, 0o644); err != nil {
		return fmt.Errorf("%w: writing state for %s: %w", ErrStorage, fsmID, err)
	}
	return nil
}

// List returns the FSM IDs with persisted state.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading state directory: %w", ErrStorage, err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "STATE_") && strings.HasSuffix(name, ".json") {
			ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(name, "STATE_"), ".json"))
		}
	}
	return ids, nil
}

func (s *FileStore) filename(fsmID string) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("STATE_%s.json", fsmID))
}
