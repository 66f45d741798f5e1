package subscriptions

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/subtrackhq/subtrack/internal/domain"
	"github.com/subtrackhq/subtrack/internal/pkg/ctxlog"
)

// Scheduler maintains the reminder job tied to a subscription. Implemented by
// notifications.Scheduler.
type Scheduler interface {
	Schedule(ctx context.Context, sub *domain.Subscription) error
	Cancel(ctx context.Context, subscriptionID string) error
}

// AuditRecorder appends audit entries, swallowing its own failures.
type AuditRecorder interface {
	Record(ctx context.Context, entry domain.AuditEntry)
}

// ProfileStore exposes the user's default timezone.
type ProfileStore interface {
	DefaultTimezone(ctx context.Context, userID string) (string, error)
}

// Service implements subscription business logic.
type Service struct {
	repo      Repository
	scheduler Scheduler
	audit     AuditRecorder
	profiles  ProfileStore
}

// NewService creates a new subscriptions service.
func NewService(repo Repository, scheduler Scheduler, audit AuditRecorder, profiles ProfileStore) *Service {
	return &Service{
		repo:      repo,
		scheduler: scheduler,
		audit:     audit,
		profiles:  profiles,
	}
}

// Input contains the caller-supplied subscription fields. Price arrives as an
// already-parsed decimal; NextPaymentDate is a calendar date at midnight UTC.
type Input struct {
	Name             string
	LogoURL          *string
	ServiceURL       *string
	Category         *string
	Price            decimal.Decimal
	Currency         string
	BillingCycle     domain.BillingCycle
	NextPaymentDate  time.Time
	Timezone         string
	NotificationMode domain.NotificationMode
	ReminderOffset   domain.ReminderOffset
	PaymentMethod    *string
	Notes            *string
}

func (s *Service) validate(input *Input) error {
	if !input.BillingCycle.Valid() {
		return ErrInvalidBillingCycle
	}
	if !input.NotificationMode.Valid() {
		return ErrInvalidNotificationMode
	}
	if !input.ReminderOffset.Valid() {
		return ErrInvalidReminderOffset
	}
	if !input.Price.IsPositive() {
		return ErrInvalidPrice
	}
	if input.Timezone != "" {
		if _, err := time.LoadLocation(input.Timezone); err != nil {
			return ErrInvalidTimezone
		}
	}
	return nil
}

// resolveTimezone falls back to the profile default, then UTC.
func (s *Service) resolveTimezone(ctx context.Context, userID, requested string) string {
	if requested != "" {
		return requested
	}
	tz, err := s.profiles.DefaultTimezone(ctx, userID)
	if err != nil || tz == "" {
		return "UTC"
	}
	return tz
}

// Create validates and stores a subscription, then schedules its reminder.
func (s *Service) Create(ctx context.Context, userID string, input Input) (*domain.Subscription, error) {
	if err := s.validate(&input); err != nil {
		return nil, err
	}

	sub := &domain.Subscription{
		UserID:           userID,
		Name:             input.Name,
		LogoURL:          input.LogoURL,
		ServiceURL:       input.ServiceURL,
		Category:         input.Category,
		Price:            input.Price,
		Currency:         input.Currency,
		BillingCycle:     input.BillingCycle,
		NextPaymentDate:  input.NextPaymentDate,
		Timezone:         s.resolveTimezone(ctx, userID, input.Timezone),
		NotificationMode: input.NotificationMode,
		ReminderOffset:   input.ReminderOffset,
		PaymentMethod:    input.PaymentMethod,
		Notes:            input.Notes,
	}

	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	s.audit.Record(ctx, domain.AuditEntry{
		UserID:     userID,
		Action:     domain.AuditActionCreate,
		EntityType: "subscription",
		EntityID:   sub.ID,
		Diff: map[string]any{
			"name":              sub.Name,
			"next_payment_date": sub.NextPaymentDate.Format(time.DateOnly),
		},
	})

	s.reschedule(ctx, sub)

	return sub, nil
}

// Get loads a subscription owned by the user.
func (s *Service) Get(ctx context.Context, userID, id string) (*domain.Subscription, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}

// List returns all of the user's subscriptions ordered by next payment date.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Subscription, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Update replaces a subscription's fields and reschedules its reminder.
func (s *Service) Update(ctx context.Context, userID, id string, input Input) (*domain.Subscription, error) {
	if err := s.validate(&input); err != nil {
		return nil, err
	}

	sub, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	oldDate := sub.NextPaymentDate

	sub.Name = input.Name
	sub.LogoURL = input.LogoURL
	sub.ServiceURL = input.ServiceURL
	sub.Category = input.Category
	sub.Price = input.Price
	sub.Currency = input.Currency
	sub.BillingCycle = input.BillingCycle
	sub.NextPaymentDate = input.NextPaymentDate
	sub.Timezone = s.resolveTimezone(ctx, userID, input.Timezone)
	sub.NotificationMode = input.NotificationMode
	sub.ReminderOffset = input.ReminderOffset
	sub.PaymentMethod = input.PaymentMethod
	sub.Notes = input.Notes

	if err := s.repo.Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}

	s.audit.Record(ctx, domain.AuditEntry{
		UserID:     userID,
		Action:     domain.AuditActionUpdate,
		EntityType: "subscription",
		EntityID:   sub.ID,
		Diff: map[string]any{
			"name":     sub.Name,
			"old_date": oldDate.Format(time.DateOnly),
			"new_date": sub.NextPaymentDate.Format(time.DateOnly),
		},
	})

	s.reschedule(ctx, sub)

	return sub, nil
}

// Delete removes a subscription and its reminder job.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	sub, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := s.scheduler.Cancel(ctx, sub.ID); err != nil {
		ctxlog.FromContext(ctx).Warn("failed to cancel reminder job",
			"subscription_id", sub.ID,
			"error", err,
		)
	}

	if err := s.repo.Delete(ctx, sub.ID); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}

	s.audit.Record(ctx, domain.AuditEntry{
		UserID:     userID,
		Action:     domain.AuditActionDelete,
		EntityType: "subscription",
		EntityID:   sub.ID,
		Diff:       map[string]any{"name": sub.Name},
	})

	return nil
}

// reschedule replaces the reminder job. The mutation has already been
// persisted; a scheduling failure is logged, the next mutation or renewal
// pass will repair the job.
func (s *Service) reschedule(ctx context.Context, sub *domain.Subscription) {
	if err := s.scheduler.Schedule(ctx, sub); err != nil {
		ctxlog.FromContext(ctx).Error("failed to schedule reminder",
			"subscription_id", sub.ID,
			"error", err,
		)
	}
}
