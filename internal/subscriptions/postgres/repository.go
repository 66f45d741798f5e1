// Package postgres provides PostgreSQL implementation of the subscriptions repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/subtrackhq/subtrack/internal/domain"
	"github.com/subtrackhq/subtrack/internal/subscriptions"
)

// Repository implements subscriptions.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const subscriptionColumns = `
	id, user_id, name, logo_url, service_url, category, price, currency,
	billing_cycle, next_payment_date, timezone, notification_mode,
	reminder_offset, payment_method, notes, created_at, updated_at
`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.Name,
		&sub.LogoURL,
		&sub.ServiceURL,
		&sub.Category,
		&sub.Price,
		&sub.Currency,
		&sub.BillingCycle,
		&sub.NextPaymentDate,
		&sub.Timezone,
		&sub.NotificationMode,
		&sub.ReminderOffset,
		&sub.PaymentMethod,
		&sub.Notes,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Create creates a new subscription.
func (r *Repository) Create(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			user_id, name, logo_url, service_url, category, price, currency,
			billing_cycle, next_payment_date, timezone, notification_mode,
			reminder_offset, payment_method, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		sub.UserID,
		sub.Name,
		sub.LogoURL,
		sub.ServiceURL,
		sub.Category,
		sub.Price,
		sub.Currency,
		sub.BillingCycle,
		sub.NextPaymentDate,
		sub.Timezone,
		sub.NotificationMode,
		sub.ReminderOffset,
		sub.PaymentMethod,
		sub.Notes,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

// GetByID retrieves a subscription by id.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, subscriptions.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// ListByUser retrieves a user's subscriptions ordered by next payment date.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]domain.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY next_payment_date, name
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]domain.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}

	return subs, nil
}

// Update replaces a subscription's mutable fields.
func (r *Repository) Update(ctx context.Context, sub *domain.Subscription) error {
	query := `
		UPDATE subscriptions
		SET name = $2, logo_url = $3, service_url = $4, category = $5,
		    price = $6, currency = $7, billing_cycle = $8,
		    next_payment_date = $9, timezone = $10, notification_mode = $11,
		    reminder_offset = $12, payment_method = $13, notes = $14,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		sub.ID,
		sub.Name,
		sub.LogoURL,
		sub.ServiceURL,
		sub.Category,
		sub.Price,
		sub.Currency,
		sub.BillingCycle,
		sub.NextPaymentDate,
		sub.Timezone,
		sub.NotificationMode,
		sub.ReminderOffset,
		sub.PaymentMethod,
		sub.Notes,
	).Scan(&sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return subscriptions.ErrSubscriptionNotFound
		}
		return fmt.Errorf("update subscription: %w", err)
	}
	return nil
}

// Delete removes a subscription. Reminder jobs cascade via FK.
func (r *Repository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if result.RowsAffected() == 0 {
		return subscriptions.ErrSubscriptionNotFound
	}
	return nil
}

// FetchOverdue returns subscriptions whose payment date has passed in their
// own timezone. The comparison interprets the stored DATE at local midnight,
// so a subscription in Tokyo rolls over before one in Los Angeles on the same
// calendar date.
func (r *Repository) FetchOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE (next_payment_date::timestamp AT TIME ZONE timezone) <= $1
		ORDER BY next_payment_date
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch overdue subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]domain.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}

	return subs, nil
}

// UpdateNextPaymentDate advances a subscription's payment date.
func (r *Repository) UpdateNextPaymentDate(ctx context.Context, id string, next time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE subscriptions
		SET next_payment_date = $2, updated_at = NOW()
		WHERE id = $1
	`, id, next)
	if err != nil {
		return fmt.Errorf("update next payment date: %w", err)
	}
	if result.RowsAffected() == 0 {
		return subscriptions.ErrSubscriptionNotFound
	}
	return nil
}
