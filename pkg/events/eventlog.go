package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LogWriter appends transition events to daily JSONL files. Register its
// Handle method with a Mediator to capture every transition.
type LogWriter struct {
	logDir      string
	mu          sync.Mutex
	currentFile *os.File
	currentDate string
}

// NewLogWriter creates the log directory if needed and opens today's file.
func NewLogWriter(logDir string) (*LogWriter, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create event log directory: %w", err)
	}

	w := &LogWriter{logDir: logDir}
	if err := w.rotateIfNeeded(); err != nil {
		return nil, fmt.Errorf("failed to initialize event log file: %w", err)
	}
	return w, nil
}

// Handle writes one event as a JSON line. Implements the Handler signature.
func (w *LogWriter) Handle(event TransitionEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotateIfNeeded(); err != nil {
		return fmt.Errorf("failed to rotate event log: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}
	if _, err := w.currentFile.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if err := w.currentFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync event log: %w", err)
	}
	return nil
}

// Close closes the current log file.
func (w *LogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.currentFile == nil {
		return nil
	}
	err := w.currentFile.Close()
	w.currentFile = nil
	if err != nil {
		return fmt.Errorf("failed to close event log: %w", err)
	}
	return nil
}

// rotateIfNeeded opens a new file when the date changes. Caller holds the lock.
func (w *LogWriter) rotateIfNeeded() error {
	date := time.Now().UTC().Format("2006-01-02")
	if w.currentFile != nil && w.currentDate == date {
		return nil
	}

	if w.currentFile != nil {
		_ = w.currentFile.Close()
	}

	path := filepath.Join(w.logDir, fmt.Sprintf("events-%s.jsonl", date))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open event log file %s: %w", path, err)
	}
	w.currentFile = f
	w.currentDate = date
	return nil
}
