// Package postgres provides PostgreSQL implementation of the identity repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/subtrackhq/subtrack/internal/domain"
	"github.com/subtrackhq/subtrack/internal/identity"
	"github.com/subtrackhq/subtrack/internal/notifications"
)

// Repository implements identity.Repository using PostgreSQL. It also
// implements notifications.ContactResolver for the delivery worker.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateUser creates a new user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (email, password_hash, timezone)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		user.Email,
		user.PasswordHash,
		user.Timezone,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return identity.ErrEmailExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by id.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getUser(ctx, `WHERE id = $1`, id)
}

// GetUserByEmail retrieves a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getUser(ctx, `WHERE email = $1`, email)
}

func (r *Repository) getUser(ctx context.Context, where string, arg any) (*domain.User, error) {
	query := `
		SELECT id, email, password_hash, timezone, created_at, updated_at
		FROM users ` + where

	var user domain.User
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Timezone,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// UpdateUserTimezone updates the profile default timezone.
func (r *Repository) UpdateUserTimezone(ctx context.Context, id, timezone string) (*domain.User, error) {
	query := `
		UPDATE users
		SET timezone = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING id, email, password_hash, timezone, created_at, updated_at
	`
	var user domain.User
	err := r.db.QueryRow(ctx, query, id, timezone).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Timezone,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("update user timezone: %w", err)
	}
	return &user, nil
}

// SaveRefreshToken persists a refresh token.
func (r *Repository) SaveRefreshToken(ctx context.Context, token *domain.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`
	if _, err := r.db.Exec(ctx, query, token.Token, token.UserID, token.ExpiresAt); err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken retrieves a refresh token.
func (r *Repository) GetRefreshToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	query := `
		SELECT token, user_id, expires_at, created_at
		FROM refresh_tokens
		WHERE token = $1
	`
	var rt domain.RefreshToken
	err := r.db.QueryRow(ctx, query, token).Scan(&rt.Token, &rt.UserID, &rt.ExpiresAt, &rt.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrInvalidToken
		}
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	return &rt, nil
}

// DeleteRefreshToken removes a refresh token.
func (r *Repository) DeleteRefreshToken(ctx context.Context, token string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE token = $1`, token); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

// DeleteUserRefreshTokens removes all refresh tokens for a user.
func (r *Repository) DeleteUserRefreshTokens(ctx context.Context, userID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete user refresh tokens: %w", err)
	}
	return nil
}

// CreateLinkToken stores a telegram link token.
func (r *Repository) CreateLinkToken(ctx context.Context, token *domain.TelegramLinkToken) error {
	query := `
		INSERT INTO telegram_link_tokens (token, user_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query, token.Token, token.UserID, token.ExpiresAt).Scan(&token.CreatedAt)
	if err != nil {
		return fmt.Errorf("create link token: %w", err)
	}
	return nil
}

// ConsumeLinkToken atomically deletes a non-expired link token and returns it.
func (r *Repository) ConsumeLinkToken(ctx context.Context, token string, now time.Time) (*domain.TelegramLinkToken, error) {
	query := `
		DELETE FROM telegram_link_tokens
		WHERE token = $1 AND expires_at > $2
		RETURNING token, user_id, expires_at, created_at
	`
	var lt domain.TelegramLinkToken
	err := r.db.QueryRow(ctx, query, token, now).Scan(&lt.Token, &lt.UserID, &lt.ExpiresAt, &lt.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrLinkTokenNotFound
		}
		return nil, fmt.Errorf("consume link token: %w", err)
	}
	return &lt, nil
}

// UpsertContact creates or replaces a user's contact for a provider.
func (r *Repository) UpsertContact(ctx context.Context, contact *domain.UserContact) error {
	query := `
		INSERT INTO user_contacts (user_id, provider, contact_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			contact_id = EXCLUDED.contact_id
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query, contact.UserID, contact.Provider, contact.ContactID).Scan(&contact.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert contact: %w", err)
	}
	return nil
}

// GetContact retrieves a user's contact for a provider.
func (r *Repository) GetContact(ctx context.Context, userID string, provider domain.ContactProvider) (*domain.UserContact, error) {
	query := `
		SELECT user_id, provider, contact_id, created_at
		FROM user_contacts
		WHERE user_id = $1 AND provider = $2
	`
	var contact domain.UserContact
	err := r.db.QueryRow(ctx, query, userID, provider).Scan(
		&contact.UserID,
		&contact.Provider,
		&contact.ContactID,
		&contact.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notifications.ErrNoRecipient
		}
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return &contact, nil
}

// DefaultTimezone implements subscriptions.ProfileStore.
func (r *Repository) DefaultTimezone(ctx context.Context, userID string) (string, error) {
	var tz string
	err := r.db.QueryRow(ctx, `SELECT timezone FROM users WHERE id = $1`, userID).Scan(&tz)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", identity.ErrUserNotFound
		}
		return "", fmt.Errorf("get user timezone: %w", err)
	}
	return tz, nil
}

// TelegramChatID implements notifications.ContactResolver.
func (r *Repository) TelegramChatID(ctx context.Context, userID string) (string, error) {
	contact, err := r.GetContact(ctx, userID, domain.ContactProviderTelegram)
	if err != nil {
		return "", err
	}
	return contact.ContactID, nil
}

// EmailAddress implements notifications.ContactResolver.
func (r *Repository) EmailAddress(ctx context.Context, userID string) (string, error) {
	var email string
	err := r.db.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", notifications.ErrNoRecipient
		}
		return "", fmt.Errorf("get user email: %w", err)
	}
	return email, nil
}
