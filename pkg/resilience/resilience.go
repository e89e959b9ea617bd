// Package resilience composes the fault-tolerance primitives (rate limiter,
// retry executor, circuit breaker, bulkhead) into a single execution policy
// applied around external actions such as FSM hooks.
package resilience

import (
	"context"
	"errors"
	"fmt"

	"agentloop/pkg/resilience/bulkhead"
	"agentloop/pkg/resilience/circuit"
	"agentloop/pkg/resilience/ratelimit"
	"agentloop/pkg/resilience/retry"
)

// ErrHook wraps an action failure from a directly-invoked action.
var ErrHook = errors.New("hook execution failed")

// Config collects the wrappers applied to a guarded action. Any field may be
// nil; a nil or disabled config runs actions unwrapped.
//
// Note: Breaker and Bulkhead are accepted here for parity with the full
// wrapper set, but Runner.Run does not consult them - only the rate limiter
// and retry executor participate in the execution path. Callers that need
// circuit breaking or concurrency bounds compose those wrappers around the
// action themselves.
type Config struct {
	Enabled     bool
	Resource    string // rate limiter / bulkhead key, e.g. provider name
	RateLimiter *ratelimit.Limiter
	Retry       *retry.Executor
	Breaker     *circuit.Breaker
	Bulkhead    *bulkhead.Bulkhead
}

// Runner executes actions under a reliability configuration.
type Runner struct {
	config *Config
}

// NewRunner creates a runner for the given configuration. A nil config is
// valid and runs actions unwrapped.
func NewRunner(config *Config) *Runner {
	return &Runner{config: config}
}

// Run executes the action under the configured policy:
//
//  1. If a rate limiter is configured, TryAcquire gates the call; failure
//     short-circuits and the action is never attempted.
//  2. If a retry executor is configured, the action runs through it.
//  3. Otherwise the action runs directly, with any failure wrapped as ErrHook.
func (r *Runner) Run(ctx context.Context, action func(ctx context.Context) error) error {
	if r.config == nil || !r.config.Enabled {
		return r.invoke(ctx, action)
	}

	if r.config.RateLimiter != nil {
		if err := r.config.RateLimiter.TryAcquire(r.config.Resource, 1); err != nil {
			return err //nolint:wrapcheck // rate limit error surfaced as-is
		}
	}

	if r.config.Retry != nil {
		return r.config.Retry.Execute(ctx, action) //nolint:wrapcheck // retry errors surfaced as-is
	}

	return r.invoke(ctx, action)
}

// invoke runs the action directly, wrapping failures as hook errors.
func (r *Runner) invoke(ctx context.Context, action func(ctx context.Context) error) error {
	if err := action(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrHook, err)
	}
	return nil
}
