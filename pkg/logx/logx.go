// Package logx provides structured logging with per-component loggers and
// environment-controlled debug domains.
package logx

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level identifies the severity of a log line.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger writes leveled, timestamped log lines tagged with a component ID.
type Logger struct {
	component string
	logger    *log.Logger
}

type debugSettings struct {
	enabled bool
	domains map[string]bool // nil = all domains
}

var (
	debugCfg debugSettings
	debugMu  sync.RWMutex
)

//nolint:gochecknoinits // env var initialization
func init() {
	initDebugFromEnv()
}

func initDebugFromEnv() {
	debugMu.Lock()
	defer debugMu.Unlock()

	if v := os.Getenv("DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		debugCfg.enabled = true
	}
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugCfg.domains = make(map[string]bool)
		for _, d := range strings.Split(domains, ",") {
			debugCfg.domains[strings.TrimSpace(d)] = true
		}
	}
}

// SetDebug enables or disables debug logging globally.
func SetDebug(enabled bool) {
	debugMu.Lock()
	defer debugMu.Unlock()
	debugCfg.enabled = enabled
}

// SetDebugDomains restricts debug output to the given domains. Empty enables all.
func SetDebugDomains(domains []string) {
	debugMu.Lock()
	defer debugMu.Unlock()
	if len(domains) == 0 {
		debugCfg.domains = nil
		return
	}
	debugCfg.domains = make(map[string]bool)
	for _, d := range domains {
		debugCfg.domains[strings.TrimSpace(d)] = true
	}
}

// IsDebugEnabled reports whether debug logging is enabled for the given domain.
func IsDebugEnabled(domain string) bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	if !debugCfg.enabled {
		return false
	}
	if debugCfg.domains == nil {
		return true
	}
	return debugCfg.domains[domain]
}

// NewLogger creates a logger tagged with the given component ID.
func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		logger:    log.New(os.Stderr, "", 0), // stderr keeps stdout free for CLI output
	}
}

func (l *Logger) log(level Level, format string, args ...any) {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] [%s] %s: %s", timestamp, l.component, level, message)
}

// Debug logs a debug message if debug logging is enabled for this component.
func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabled(l.component) {
		return
	}
	l.log(LevelDebug, format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// Errorf logs an error message and returns it as an error for convenient
// log-and-return call sites.
func (l *Logger) Errorf(format string, args ...any) error {
	l.log(LevelError, format, args...)
	return fmt.Errorf(format, args...)
}

// Wrap wraps err with a message. Mirrors fmt.Errorf with %w but keeps call
// sites uniform with Errorf.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}
