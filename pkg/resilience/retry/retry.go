// Package retry provides retry execution with configurable backoff for calls
// to unreliable external services.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"agentloop/pkg/resilience/circuit"
)

// ErrMaxRetriesExceeded is returned when all attempts are exhausted.
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Strategy selects how the delay between attempts grows.
type Strategy string

const (
	StrategyExponential Strategy = "exponential"
	StrategyLinear      Strategy = "linear"
	StrategyFixed       Strategy = "fixed"
)

// Config defines retry behavior.
type Config struct {
	MaxAttempts   int           `yaml:"max_attempts"`   // Total attempts, including the first
	InitialDelay  time.Duration `yaml:"initial_delay"`  // Delay before the first retry
	MaxDelay      time.Duration `yaml:"max_delay"`      // Cap on the delay between retries
	BackoffFactor float64       `yaml:"backoff_factor"` // Multiplier for exponential backoff
	Strategy      Strategy      `yaml:"strategy"`       // exponential, linear or fixed
}

// DefaultConfig provides reasonable defaults.
//
//nolint:gochecknoglobals // sensible default config pattern
var DefaultConfig = Config{
	MaxAttempts:   3,
	InitialDelay:  100 * time.Millisecond,
	MaxDelay:      10 * time.Second,
	BackoffFactor: 2.0,
	Strategy:      StrategyExponential,
}

// RetryableError lets errors declare whether the operation may be retried.
type RetryableError interface {
	error
	ShouldRetry() bool
}

// TransientError marks an error as retryable or terminal.
type TransientError struct {
	Underlying error
	Retryable  bool
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error: %v", e.Underlying)
}

func (e *TransientError) ShouldRetry() bool {
	return e.Retryable
}

func (e *TransientError) Unwrap() error {
	return e.Underlying
}

// NewTransientError wraps err as a retryable error.
func NewTransientError(err error) *TransientError {
	return &TransientError{Underlying: err, Retryable: true}
}

// NewTerminalError wraps err as a non-retryable error.
func NewTerminalError(err error) *TransientError {
	return &TransientError{Underlying: err, Retryable: false}
}

// shouldRetry consults the error's own retryable flag; errors that do not
// carry one are treated as terminal.
func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var retryable RetryableError
	if errors.As(err, &retryable) {
		return retryable.ShouldRetry()
	}
	return false
}

// Executor re-invokes operations with backoff between attempts. An optional
// circuit breaker is consulted before each attempt and records the outcome.
type Executor struct {
	config  Config
	breaker *circuit.Breaker // optional
}

// NewExecutor creates a retry executor without a circuit breaker.
func NewExecutor(config Config) *Executor {
	return &Executor{config: config}
}

// NewExecutorWithBreaker creates a retry executor that consults the given
// circuit breaker on every attempt.
func NewExecutorWithBreaker(config Config, breaker *circuit.Breaker) *Executor {
	return &Executor{config: config, breaker: breaker}
}

// Execute invokes op up to MaxAttempts times. Terminal errors stop the loop
// immediately; exhaustion returns ErrMaxRetriesExceeded wrapping the last
// error.
func (e *Executor) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	maxAttempts := e.config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err() //nolint:wrapcheck // context error propagated as-is
			case <-time.After(e.Delay(attempt)):
			}
		}

		if e.breaker != nil {
			if err := e.breaker.Allow(); err != nil {
				// An open circuit is not retryable at this layer.
				return err //nolint:wrapcheck // circuit error surfaced as-is
			}
		}

		err := op(ctx)
		if e.breaker != nil {
			if err == nil {
				e.breaker.RecordSuccess()
			} else {
				e.breaker.RecordFailure()
			}
		}
		if err == nil {
			return nil
		}

		lastErr = err
		if !shouldRetry(err) {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetriesExceeded, maxAttempts, lastErr)
}

// Delay computes the backoff delay preceding the given attempt (attempt >= 2).
func (e *Executor) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	var delay time.Duration
	switch e.config.Strategy {
	case StrategyFixed:
		delay = e.config.InitialDelay
	case StrategyLinear:
		delay = time.Duration(int64(e.config.InitialDelay) * int64(attempt-1))
	case StrategyExponential:
		fallthrough
	default:
		factor := e.config.BackoffFactor
		if factor <= 0 {
			factor = 2.0
		}
		delay = time.Duration(float64(e.config.InitialDelay) * math.Pow(factor, float64(attempt-2)))
	}

	if e.config.MaxDelay > 0 && delay > e.config.MaxDelay {
		delay = e.config.MaxDelay
	}
	return delay
}
