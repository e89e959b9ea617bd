// Package circuit provides a circuit breaker for guarding calls to failing
// external services.
package circuit

import (
	"fmt"
	"sync"
	"time"
)

// State represents the current state of a circuit breaker.
type State int

// Circuit breaker states.
const (
	Closed   State = iota // Normal operation
	Open                  // Failing, reject requests
	HalfOpen              // Testing if the service recovered
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config defines circuit breaker behavior.
type Config struct {
	FailureThreshold  int           `yaml:"failure_threshold"`   // Consecutive failures before opening
	HalfOpenThreshold int           `yaml:"half_open_threshold"` // Trial calls allowed in half-open
	Timeout           time.Duration `yaml:"timeout"`             // Time in open before trying half-open
}

// DefaultConfig provides reasonable defaults.
//
//nolint:gochecknoglobals // sensible default config pattern
var DefaultConfig = Config{
	FailureThreshold:  5,
	HalfOpenThreshold: 3,
	Timeout:           30 * time.Second,
}

// Error is returned when the circuit rejects a call.
type Error struct {
	State State
}

func (e *Error) Error() string {
	return fmt.Sprintf("circuit breaker is %s", e.State)
}

// Breaker tracks consecutive failures and short-circuits calls while the
// guarded service is considered unhealthy.
type Breaker struct {
	config          Config
	mu              sync.RWMutex
	state           State
	failureCount    int
	successCount    int
	halfOpenCalls   int
	lastFailureTime time.Time
}

// New creates a circuit breaker in the closed state.
func New(config Config) *Breaker {
	return &Breaker{
		config: config,
		state:  Closed,
	}
}

// Allow reports whether a call may proceed, transitioning open breakers to
// half-open once the timeout has elapsed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return nil

	case Open:
		if time.Since(b.lastFailureTime) >= b.config.Timeout {
			b.state = HalfOpen
			b.halfOpenCalls = 0
			b.successCount = 0
			b.halfOpenCalls++
			return nil
		}
		return &Error{State: Open}

	case HalfOpen:
		if b.halfOpenCalls >= b.config.HalfOpenThreshold {
			return &Error{State: HalfOpen}
		}
		b.halfOpenCalls++
		return nil

	default:
		return &Error{State: b.state}
	}
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failureCount = 0
	case HalfOpen:
		b.successCount++
		if b.successCount >= b.config.HalfOpenThreshold {
			b.close()
		}
	case Open:
		// Stale success from a call issued before the circuit opened; ignored.
	}
}

// RecordFailure records a failed call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailureTime = time.Now()

	switch b.state {
	case Closed:
		if b.failureCount >= b.config.FailureThreshold {
			b.state = Open
		}
	case HalfOpen:
		// Any failure in half-open immediately re-opens the circuit.
		b.state = Open
		b.successCount = 0
	case Open:
	}
}

// IsOpen reports whether the breaker currently rejects calls.
func (b *Breaker) IsOpen() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state == Open
}

// IsClosed reports whether the breaker is in normal operation.
func (b *Breaker) IsClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state == Closed
}

// GetState returns the current state.
func (b *Breaker) GetState() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Open forces the breaker open (manual override).
func (b *Breaker) Open() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Open
	b.lastFailureTime = time.Now()
}

// Close forces the breaker closed and resets its counters (manual override).
func (b *Breaker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.close()
}

// close resets to the closed state. Caller holds the lock.
func (b *Breaker) close() {
	b.state = Closed
	b.failureCount = 0
	b.successCount = 0
	b.halfOpenCalls = 0
}

// Set manages one breaker per provider name, created lazily from a shared
// configuration.
type Set struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	config   Config
}

// NewSet creates an empty provider-keyed breaker set.
func NewSet(config Config) *Set {
	return &Set{
		breakers: make(map[string]*Breaker),
		config:   config,
	}
}

// Get returns the breaker for a provider, creating it if needed.
func (s *Set) Get(provider string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[provider]
	if !ok {
		b = New(s.config)
		s.breakers[provider] = b
	}
	return b
}

// RecordFailure records a failure against the named provider's breaker.
func (s *Set) RecordFailure(provider string) {
	s.Get(provider).RecordFailure()
}
