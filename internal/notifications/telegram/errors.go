package telegram

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitError is returned on Telegram 429 responses. RetryAfter carries the
// server-requested pause.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("telegram rate limited, retry after %s: %s", e.RetryAfter, e.Message)
}

// IsRetryable reports the error is transient.
func (e *RateLimitError) IsRetryable() bool { return true }

// RetryDelay reports the server-requested pause so the delivery backoff can
// honor it.
func (e *RateLimitError) RetryDelay() time.Duration { return e.RetryAfter }

// PermanentError is returned on Telegram errors that a retry cannot fix, such
// as a blocked bot or an unknown chat.
type PermanentError struct {
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("telegram error %d: %s", e.Code, e.Message)
}

// IsRetryable reports the error is permanent.
func (e *PermanentError) IsRetryable() bool { return false }

// RetryableError is returned on transient Telegram failures (5xx, network).
type RetryableError struct {
	Code    int
	Message string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("telegram transient error %d: %s", e.Code, e.Message)
}

// IsRetryable reports the error is transient.
func (e *RetryableError) IsRetryable() bool { return true }

// IsRetryable checks whether an error advertises itself as retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var r interface{ IsRetryable() bool }
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}
