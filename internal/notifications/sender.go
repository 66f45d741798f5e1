package notifications

import (
	"context"

	"github.com/subtrackhq/subtrack/internal/domain"
)

// Notification is a rendered message addressed to a delivery target.
type Notification struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers notifications over a single provider.
type Sender interface {
	Mode() domain.NotificationMode
	Send(ctx context.Context, notification Notification) error
}

// RetryableError wraps an error and marks it as retryable or not.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

// IsRetryable returns whether the error is retryable.
func (e *RetryableError) IsRetryable() bool {
	return e.Retryable
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a retryable error.
func NewRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: true}
}

// NewNonRetryableError creates a non-retryable error.
func NewNonRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: false}
}

// isRetryable checks if an error is retryable. Errors that don't declare
// themselves are treated as transient and fed into the backoff path.
func isRetryable(err error) bool {
	type retryable interface {
		IsRetryable() bool
	}
	if r, ok := err.(retryable); ok {
		return r.IsRetryable()
	}
	return true
}
