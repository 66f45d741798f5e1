package notifications

import "time"

// JobStatus represents the lifecycle state of a reminder job.
type JobStatus string

// Job statuses. pending persists across retries; sent and failed are terminal.
const (
	JobStatusPending JobStatus = "pending"
	JobStatusSent    JobStatus = "sent"
	JobStatusFailed  JobStatus = "failed"
)

// JobPayload is the rendered message plus recipient-resolution hints, stored
// as jsonb on the job row.
type JobPayload struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	UserID string `json:"user_id"`
	ChatID string `json:"chat_id,omitempty"`
}

// Job is a persisted reminder. There is exactly one row per subscription,
// upserted in place on every reschedule, so at most one job is ever pending
// for a subscription.
type Job struct {
	ID             string     `json:"id"`
	SubscriptionID string     `json:"subscription_id"`
	ScheduledAt    time.Time  `json:"scheduled_at"`
	NextAttemptAt  time.Time  `json:"next_attempt_at"`
	Status         JobStatus  `json:"status"`
	Attempts       int        `json:"attempts_count"`
	MaxAttempts    int        `json:"max_attempts"`
	LastError      string     `json:"last_error,omitempty"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	Payload        JobPayload `json:"payload"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// Joined from the parent subscription.
	Mode             string `json:"mode"`
	SubscriptionName string `json:"subscription_name,omitempty"`
	ServiceURL       string `json:"-"`
}

// QueueStats summarizes job counts by status.
type QueueStats struct {
	Pending int64 `json:"pending"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
}
