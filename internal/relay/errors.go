package relay

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for relay operations.
var (
	// ErrNotModified reports an edit whose text equals the current message
	// text. The relay treats it as a successful edit.
	ErrNotModified = errors.New("relay: message not modified")

	// ErrTimeout reports a send that timed out before the endpoint answered.
	// It is retriable.
	ErrTimeout = errors.New("relay: send timed out")

	// ErrRetryBudgetExhausted is returned when more consecutive retriable
	// failures occurred than Config.MaxRetries allows.
	ErrRetryBudgetExhausted = errors.New("relay: retry budget exhausted")
)

// RateLimitedError reports that the messaging endpoint asked the caller to
// wait before sending again. It is retriable.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("relay: rate limited, retry after %s", e.RetryAfter)
}

// FatalSendError wraps a create or edit failure that cannot be retried.
type FatalSendError struct {
	Op  string // "create" or "edit"
	Err error
}

func (e *FatalSendError) Error() string {
	return fmt.Sprintf("relay: %s failed: %v", e.Op, e.Err)
}

func (e *FatalSendError) Unwrap() error { return e.Err }

// UpstreamStreamError wraps a failure reported by the LLM stream itself.
type UpstreamStreamError struct {
	Err error
}

func (e *UpstreamStreamError) Error() string {
	return fmt.Sprintf("relay: upstream stream failed: %v", e.Err)
}

func (e *UpstreamStreamError) Unwrap() error { return e.Err }

// IsRetriable reports whether err is a transient transport failure
// (rate limit or timeout).
func IsRetriable(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl) || errors.Is(err, ErrTimeout)
}

// retryDelay returns how long to wait after a retriable failure.
func retryDelay(err error, timeoutPause time.Duration) time.Duration {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return timeoutPause
}
