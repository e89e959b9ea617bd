package persist

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // sqlite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS fsm_states (
	fsm_id     TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
`

// SQLiteStore persists FSM states in a SQLite database. Each store owns its
// own connection; there is no process-wide singleton, so independent
// orchestrator instances remain independently constructible and disposable.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath with WAL
// journaling and initializes the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_busy_timeout=5000", dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %w", ErrStorage, err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: pinging database: %w", ErrStorage, err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: initializing schema: %w", ErrStorage, err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &SQLiteStore{db: db}, nil
}

// GetState implements StateRepository.
func (s *SQLiteStore) GetState(fsmID string) (string, error) {
	var state string
	err := s.db.QueryRow(
		`SELECT state FROM fsm_states WHERE fsm_id = ?`, fsmID,
	).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, fsmID)
	}
	if err != nil {
		return "", fmt.Errorf("%w: querying state for %s: %w", ErrStorage, fsmID, err)
	}
	if state == "" {
		return "", fmt.Errorf("%w: empty state for %s", ErrInvalidData, fsmID)
	}
	return state, nil
}

// SetState implements StateRepository.
func (s *SQLiteStore) SetState(fsmID, state string) error {
	if fsmID == "" || state == "" {
		return fmt.Errorf("%w: fsmID and state must be non-empty", ErrInvalidData)
	}

	_, err := s.db.Exec(`
		INSERT INTO fsm_states (fsm_id, state, updated_at)
		VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		ON CONFLICT(fsm_id) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at
	`, fsmID, state)
	if err != nil {
		return fmt.Errorf("%w: upserting state for %s: %w", ErrStorage, fsmID, err)
	}
	return nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: closing database: %w", ErrStorage, err)
	}
	return nil
}
