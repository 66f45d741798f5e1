package notifications

import (
	"context"
	"fmt"

	"github.com/subtrackhq/subtrack/internal/domain"
	"github.com/subtrackhq/subtrack/internal/schedule"
)

// Scheduler derives a reminder job from a subscription and upserts it. It is
// invoked on every subscription create, update and auto-renewal.
type Scheduler struct {
	repo        Repository
	renderer    *Renderer
	maxAttempts int
}

// NewScheduler creates a job scheduler.
func NewScheduler(repo Repository, renderer *Renderer, maxAttempts int) *Scheduler {
	if maxAttempts <= 0 {
		maxAttempts = DefaultDelivererConfig().MaxAttempts
	}
	return &Scheduler{
		repo:        repo,
		renderer:    renderer,
		maxAttempts: maxAttempts,
	}
}

// Schedule replaces the subscription's job with a fresh pending one scheduled
// per its payment date, timezone and reminder offset.
func (s *Scheduler) Schedule(ctx context.Context, sub *domain.Subscription) error {
	at, err := schedule.ScheduledInstant(sub.NextPaymentDate, sub.Timezone, sub.ReminderOffset)
	if err != nil {
		return fmt.Errorf("compute reminder instant: %w", err)
	}

	title, body, err := s.renderer.RenderReminder(sub)
	if err != nil {
		return fmt.Errorf("render reminder: %w", err)
	}

	job := &Job{
		SubscriptionID: sub.ID,
		ScheduledAt:    at,
		NextAttemptAt:  at,
		Status:         JobStatusPending,
		MaxAttempts:    s.maxAttempts,
		Payload: JobPayload{
			Title:  title,
			Body:   body,
			UserID: sub.UserID,
		},
	}

	if err := s.repo.UpsertPending(ctx, job); err != nil {
		return fmt.Errorf("upsert reminder job: %w", err)
	}
	return nil
}

// Cancel removes the subscription's job, pending or not.
func (s *Scheduler) Cancel(ctx context.Context, subscriptionID string) error {
	if err := s.repo.DeleteBySubscription(ctx, subscriptionID); err != nil {
		return fmt.Errorf("delete reminder job: %w", err)
	}
	return nil
}
