// Package notifications implements the reminder delivery pipeline: the
// persisted job store, the dispatcher that drives a cycle, and the deliverer
// that performs a single send attempt with retry bookkeeping.
package notifications

import (
	"context"
	"time"
)

// Repository defines the interface for notification job persistence.
type Repository interface {
	// UpsertPending replaces the job row for job.SubscriptionID with a fresh
	// pending job (attempts reset, errors cleared).
	UpsertPending(ctx context.Context, job *Job) error

	// GetByID loads a job joined with its parent subscription's
	// notification mode, name and service URL.
	GetByID(ctx context.Context, id string) (*Job, error)

	// FetchDueIDs returns ids of pending jobs whose next_attempt_at <= now.
	FetchDueIDs(ctx context.Context, now time.Time, limit int) ([]string, error)

	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkForRetry(ctx context.Context, id string, nextAttempt time.Time, lastError string) error
	MarkFailed(ctx context.Context, id string, lastError string) error

	// DeleteBySubscription removes the job row for a subscription, if any.
	DeleteBySubscription(ctx context.Context, subscriptionID string) error

	GetQueueStats(ctx context.Context) (*QueueStats, error)

	// RecentForUser returns the user's most recent jobs for the monitor view.
	RecentForUser(ctx context.Context, userID string, limit int) ([]Job, error)
}

// ContactResolver looks up delivery targets for a user.
type ContactResolver interface {
	// TelegramChatID returns the linked Telegram chat id for a user.
	// Returns ErrNoRecipient if no contact is linked.
	TelegramChatID(ctx context.Context, userID string) (string, error)

	// EmailAddress returns the account email for a user.
	// Returns ErrNoRecipient if the account has no email.
	EmailAddress(ctx context.Context, userID string) (string, error)
}
