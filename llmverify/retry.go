package llmverify

import (
	"context"
	"errors"
	"strings"
	"time"
)

// retryBaseDelay is the base of the exponential backoff applied to the
// single retry a Complete call gets.
const retryBaseDelay = 500 * time.Millisecond

// retryableSubstrings classifies an error message as transient. This
// mirrors the string-pattern classification style used across the
// pack's LLM-calling code, where provider errors rarely carry a typed
// sentinel the client can check with errors.Is.
var retryableSubstrings = []string{
	"timeout",
	"deadline exceeded",
	"rate limit",
	"rate-limited",
	"too many requests",
	"connection reset",
	"temporarily unavailable",
	"503",
	"502",
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	lower := strings.ToLower(err.Error())
	for _, s := range retryableSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// completeWithRetry calls complete once, and on a retryable error waits
// retryBaseDelay then tries exactly once more. A non-retryable error,
// or ctx cancellation during the wait, returns immediately.
func completeWithRetry(ctx context.Context, complete func(context.Context) (string, error)) (string, error) {
	text, err := complete(ctx)
	if err == nil {
		return text, nil
	}
	if !isRetryable(err) {
		return "", err
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(retryBaseDelay):
	}

	return complete(ctx)
}
