package providers

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"agentloop/pkg/resilience/retry"
)

func isRetryable(err error) bool {
	var re retry.RetryableError
	return errors.As(err, &re) && re.ShouldRetry()
}

func TestClassifyErrorRetryable(t *testing.T) {
	cases := []error{
		errors.New("429 Too Many Requests"),
		errors.New("500 Internal Server Error"),
		errors.New("503 Service Unavailable"),
		errors.New("unexpected EOF"),
		errors.New("read: connection reset by peer"),
		errors.New("request timeout"),
		errors.New("model overloaded"),
	}
	for _, cause := range cases {
		err := classifyError("anthropic", cause)
		assert.True(t, isRetryable(err), "expected %q retryable", cause)
	}
}

func TestClassifyErrorTerminal(t *testing.T) {
	cases := []error{
		errors.New("401 Unauthorized"),
		errors.New("403 Forbidden"),
		errors.New("400 Bad Request: prompt too long"),
		errors.New("model does not exist"),
	}
	for _, cause := range cases {
		err := classifyError("openai", cause)
		assert.False(t, isRetryable(err), "expected %q terminal", cause)
	}
}

func TestClassifyErrorContextCancellationIsTerminal(t *testing.T) {
	for _, cause := range []error{context.Canceled, context.DeadlineExceeded} {
		err := classifyError("gemini", fmt.Errorf("call failed: %w", cause))
		assert.False(t, isRetryable(err))
	}
}

func TestClassifyErrorPreservesProviderAndCause(t *testing.T) {
	cause := errors.New("429 rate limited")
	err := classifyError("ollama", cause)
	assert.ErrorContains(t, err, "ollama")
	assert.ErrorContains(t, err, "429")
}

func TestExtractStatusCode(t *testing.T) {
	assert.Equal(t, 429, extractStatusCode("got 429 from upstream"))
	assert.Equal(t, 503, extractStatusCode("POST /v1/messages: 503"))
	assert.Equal(t, 0, extractStatusCode("no code here"))
	assert.Equal(t, 0, extractStatusCode("dialing 10.0.0.1:8080"))
}
