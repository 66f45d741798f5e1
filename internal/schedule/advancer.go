package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/subtrackhq/subtrack/internal/domain"
	"github.com/subtrackhq/subtrack/internal/pkg/ctxlog"
)

// SubscriptionStore is the subscription persistence the advancer needs.
type SubscriptionStore interface {
	// FetchOverdue returns subscriptions whose next payment date, taken as
	// local midnight in the subscription's timezone, is at or before now.
	FetchOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Subscription, error)
	UpdateNextPaymentDate(ctx context.Context, id string, next time.Time) error
}

// JobScheduler replaces the pending reminder job for a subscription.
type JobScheduler interface {
	Schedule(ctx context.Context, sub *domain.Subscription) error
}

// AuditRecorder appends audit entries. Implementations must swallow their own
// failures; the advancer does not check for them.
type AuditRecorder interface {
	Record(ctx context.Context, entry domain.AuditEntry)
}

// AdvancerConfig tunes the renewal pass.
type AdvancerConfig struct {
	BatchSize int
}

// DefaultAdvancerConfig returns default advancer configuration.
func DefaultAdvancerConfig() AdvancerConfig {
	return AdvancerConfig{BatchSize: 50}
}

// Advancer moves overdue subscriptions to their next future occurrence and
// reschedules their reminder jobs. It runs at the start of every dispatch
// cycle.
type Advancer struct {
	config    AdvancerConfig
	subs      SubscriptionStore
	scheduler JobScheduler
	audit     AuditRecorder

	now func() time.Time
}

// NewAdvancer creates a renewal advancer.
func NewAdvancer(config AdvancerConfig, subs SubscriptionStore, scheduler JobScheduler, audit AuditRecorder) *Advancer {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultAdvancerConfig().BatchSize
	}
	return &Advancer{
		config:    config,
		subs:      subs,
		scheduler: scheduler,
		audit:     audit,
		now:       time.Now,
	}
}

// Run advances one batch of overdue subscriptions and returns how many were
// renewed. A failure on an individual subscription is logged and skipped;
// only the batch query itself aborts the pass.
func (a *Advancer) Run(ctx context.Context) (int, error) {
	log := ctxlog.FromContext(ctx)
	now := a.now()

	overdue, err := a.subs.FetchOverdue(ctx, now, a.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch overdue subscriptions: %w", err)
	}

	if len(overdue) == 0 {
		return 0, nil
	}

	log.Info("advancing overdue subscriptions", "count", len(overdue))

	renewed := 0
	for i := range overdue {
		sub := &overdue[i]

		next, err := NextOccurrence(sub.NextPaymentDate, sub.BillingCycle, sub.Timezone, now)
		if err != nil {
			// Bad zone or unknown cycle is a data problem, not transient.
			log.Error("skipping subscription with invalid schedule data",
				"subscription_id", sub.ID,
				"billing_cycle", sub.BillingCycle,
				"timezone", sub.Timezone,
				"error", err,
			)
			continue
		}

		if err := a.subs.UpdateNextPaymentDate(ctx, sub.ID, next); err != nil {
			log.Error("failed to advance subscription", "subscription_id", sub.ID, "error", err)
			continue
		}

		oldDate := sub.NextPaymentDate
		sub.NextPaymentDate = next

		a.audit.Record(ctx, domain.AuditEntry{
			UserID:     sub.UserID,
			Action:     domain.AuditActionAutoRenew,
			EntityType: "subscription",
			EntityID:   sub.ID,
			Diff: map[string]any{
				"old_date": oldDate.Format(time.DateOnly),
				"new_date": next.Format(time.DateOnly),
				"name":     sub.Name,
			},
		})

		// Subscription already advanced; a failed reschedule leaves it without
		// a pending job until the next mutation touches it.
		if err := a.scheduler.Schedule(ctx, sub); err != nil {
			log.Error("failed to reschedule reminder after renewal",
				"subscription_id", sub.ID,
				"error", err,
			)
		}

		renewed++
	}

	return renewed, nil
}
