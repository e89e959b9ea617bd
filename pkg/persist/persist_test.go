package persist

import (
	"errors"
	"path/filepath"
	"testing"
)

// repoTest exercises the StateRepository contract against any implementation.
func repoTest(t *testing.T, repo StateRepository) {
	t.Helper()

	// Unknown ID returns ErrNotFound.
	if _, err := repo.GetState("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}

	// Round trip.
	if err := repo.SetState("wf-1", "PLAN"); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	state, err := repo.GetState("wf-1")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state != "PLAN" {
		t.Errorf("expected PLAN, got %s", state)
	}

	// Overwrite.
	if err := repo.SetState("wf-1", "ACT"); err != nil {
		t.Fatalf("SetState overwrite: %v", err)
	}
	state, err = repo.GetState("wf-1")
	if err != nil {
		t.Fatalf("GetState after overwrite: %v", err)
	}
	if state != "ACT" {
		t.Errorf("expected ACT, got %s", state)
	}

	// Empty inputs rejected.
	if err := repo.SetState("", "PLAN"); !errors.Is(err, ErrInvalidData) {
		t.Errorf("expected ErrInvalidData for empty id, got %v", err)
	}
	if err := repo.SetState("wf-1", ""); !errors.Is(err, ErrInvalidData) {
		t.Errorf("expected ErrInvalidData for empty state, got %v", err)
	}
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	repoTest(t, store)
}

func TestFileStoreList(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if err := store.SetState("a", "INTAKE"); err != nil {
		t.Fatal(err)
	}
	if err := store.SetState("b", "PLAN"); err != nil {
		t.Fatal(err)
	}

	ids, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("expected 2 ids, got %v", ids)
	}
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	}()
	repoTest(t, store)
}

func TestMemStore(t *testing.T) {
	repoTest(t, NewMemStore())
}
