// Package subscriptions implements tracked subscription CRUD and the queries
// the renewal advancer runs on.
package subscriptions

import (
	"context"
	"time"

	"github.com/subtrackhq/subtrack/internal/domain"
)

// Repository defines the interface for subscription persistence.
type Repository interface {
	Create(ctx context.Context, sub *domain.Subscription) error
	GetByID(ctx context.Context, id string) (*domain.Subscription, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Subscription, error)
	Update(ctx context.Context, sub *domain.Subscription) error
	Delete(ctx context.Context, id string) error

	// FetchOverdue returns subscriptions whose next payment date, taken as
	// local midnight in the subscription's timezone, is at or before now.
	// Satisfies schedule.SubscriptionStore.
	FetchOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Subscription, error)
	UpdateNextPaymentDate(ctx context.Context, id string, next time.Time) error
}
