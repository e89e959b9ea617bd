// Package providers contains the LLM provider adapters. Each adapter
// implements agent.LLMClient and classifies provider failures as retryable
// or terminal for the retry executor above it.
package providers

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"agentloop/pkg/resilience/retry"
)

var statusCodeRe = regexp.MustCompile(`\b([45]\d{2})\b`)

// classifyError maps a provider SDK error to a retry.TransientError so the
// retry executor can distinguish retryable from terminal failures. Rate
// limits (429) and server-side failures (5xx, EOF, resets, timeouts) are
// retryable; auth and malformed-request failures are terminal. Context
// cancellation is terminal: the caller gave up.
func classifyError(provider string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", provider, err)

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.NewTerminalError(wrapped)
	}

	errStr := strings.ToLower(err.Error())
	if code := extractStatusCode(err.Error()); code != 0 {
		switch {
		case code == 429:
			return retry.NewTransientError(wrapped)
		case code >= 500:
			return retry.NewTransientError(wrapped)
		default:
			return retry.NewTerminalError(wrapped)
		}
	}

	for _, marker := range []string{"eof", "connection reset", "connection refused", "timeout", "temporarily unavailable", "overloaded"} {
		if strings.Contains(errStr, marker) {
			return retry.NewTransientError(wrapped)
		}
	}
	return retry.NewTerminalError(wrapped)
}

// errEmptyResponse builds the error for an HTTP-200-but-no-content reply.
func errEmptyResponse(provider string) error {
	return fmt.Errorf("%s: empty response from API", provider)
}

// extractStatusCode pulls an HTTP status code out of an SDK error message.
// Returns 0 when none is present.
func extractStatusCode(errStr string) int {
	match := statusCodeRe.FindString(errStr)
	if match == "" {
		return 0
	}
	code, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return code
}
