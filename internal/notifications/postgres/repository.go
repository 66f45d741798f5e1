// Package postgres provides PostgreSQL implementation of the notifications repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/subtrackhq/subtrack/internal/notifications"
)

// Repository implements notifications.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const jobColumns = `
	j.id, j.subscription_id, j.scheduled_at, j.next_attempt_at, j.status,
	j.attempts_count, j.max_attempts, COALESCE(j.last_error, ''), j.sent_at,
	j.payload, j.created_at, j.updated_at,
	s.notification_mode, s.name, COALESCE(s.service_url, '')
`

// UpsertPending replaces the subscription's job row with a fresh pending job.
// The unique constraint on subscription_id guarantees at most one row per
// subscription; a conflict resets the retry bookkeeping in place.
func (r *Repository) UpsertPending(ctx context.Context, job *notifications.Job) error {
	query := `
		INSERT INTO notification_jobs (subscription_id, scheduled_at, next_attempt_at, status, max_attempts, payload)
		VALUES ($1, $2, $3, 'pending', $4, $5)
		ON CONFLICT (subscription_id) DO UPDATE SET
			scheduled_at = EXCLUDED.scheduled_at,
			next_attempt_at = EXCLUDED.next_attempt_at,
			status = 'pending',
			max_attempts = EXCLUDED.max_attempts,
			payload = EXCLUDED.payload,
			attempts_count = 0,
			last_error = NULL,
			sent_at = NULL,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		job.SubscriptionID,
		job.ScheduledAt,
		job.NextAttemptAt,
		job.MaxAttempts,
		job.Payload,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert notification job: %w", err)
	}
	return nil
}

// GetByID retrieves a job joined with its parent subscription.
func (r *Repository) GetByID(ctx context.Context, id string) (*notifications.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM notification_jobs j
		JOIN subscriptions s ON s.id = j.subscription_id
		WHERE j.id = $1
	`
	var job notifications.Job
	err := r.db.QueryRow(ctx, query, id).Scan(
		&job.ID,
		&job.SubscriptionID,
		&job.ScheduledAt,
		&job.NextAttemptAt,
		&job.Status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.LastError,
		&job.SentAt,
		&job.Payload,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.Mode,
		&job.SubscriptionName,
		&job.ServiceURL,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notifications.ErrJobNotFound
		}
		return nil, fmt.Errorf("get notification job: %w", err)
	}
	return &job, nil
}

// FetchDueIDs returns ids of pending jobs whose next attempt time has passed.
func (r *Repository) FetchDueIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	query := `
		SELECT id
		FROM notification_jobs
		WHERE status = 'pending' AND next_attempt_at <= $1
		ORDER BY next_attempt_at
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch due jobs: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan job id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// MarkSent transitions a job to sent. The attempt that succeeded still counts.
func (r *Repository) MarkSent(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE notification_jobs
		SET status = 'sent', sent_at = $2, attempts_count = attempts_count + 1,
		    last_error = NULL, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("mark job sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return notifications.ErrJobNotFound
	}
	return nil
}

// MarkForRetry records a failed attempt and schedules the next one. The job
// stays pending so the next dispatch cycle picks it up.
func (r *Repository) MarkForRetry(ctx context.Context, id string, nextAttempt time.Time, lastError string) error {
	query := `
		UPDATE notification_jobs
		SET attempts_count = attempts_count + 1, next_attempt_at = $2,
		    last_error = $3, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, id, nextAttempt, lastError)
	if err != nil {
		return fmt.Errorf("mark job for retry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return notifications.ErrJobNotFound
	}
	return nil
}

// MarkFailed transitions a job to the terminal failed state.
func (r *Repository) MarkFailed(ctx context.Context, id string, lastError string) error {
	query := `
		UPDATE notification_jobs
		SET status = 'failed', attempts_count = attempts_count + 1,
		    last_error = $2, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, id, lastError)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return notifications.ErrJobNotFound
	}
	return nil
}

// DeleteBySubscription removes the job row for a subscription, if any.
func (r *Repository) DeleteBySubscription(ctx context.Context, subscriptionID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM notification_jobs WHERE subscription_id = $1`, subscriptionID)
	if err != nil {
		return fmt.Errorf("delete notification job: %w", err)
	}
	return nil
}

// GetQueueStats returns job counts by status.
func (r *Repository) GetQueueStats(ctx context.Context) (*notifications.QueueStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM notification_jobs
	`
	var stats notifications.QueueStats
	err := r.db.QueryRow(ctx, query).Scan(&stats.Pending, &stats.Sent, &stats.Failed)
	if err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}
	return &stats, nil
}

// RecentForUser returns the user's most recent jobs for the monitor view.
func (r *Repository) RecentForUser(ctx context.Context, userID string, limit int) ([]notifications.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM notification_jobs j
		JOIN subscriptions s ON s.id = j.subscription_id
		WHERE s.user_id = $1
		ORDER BY j.updated_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list user notifications: %w", err)
	}
	defer rows.Close()

	jobs := make([]notifications.Job, 0)
	for rows.Next() {
		var job notifications.Job
		err := rows.Scan(
			&job.ID,
			&job.SubscriptionID,
			&job.ScheduledAt,
			&job.NextAttemptAt,
			&job.Status,
			&job.Attempts,
			&job.MaxAttempts,
			&job.LastError,
			&job.SentAt,
			&job.Payload,
			&job.CreatedAt,
			&job.UpdatedAt,
			&job.Mode,
			&job.SubscriptionName,
			&job.ServiceURL,
		)
		if err != nil {
			return nil, fmt.Errorf("scan notification job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}
