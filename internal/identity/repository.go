// Package identity implements accounts, sessions and external contact linking.
package identity

import (
	"context"
	"time"

	"github.com/subtrackhq/subtrack/internal/domain"
)

// Repository defines the interface for identity persistence.
type Repository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateUserTimezone(ctx context.Context, id, timezone string) (*domain.User, error)

	SaveRefreshToken(ctx context.Context, token *domain.RefreshToken) error
	GetRefreshToken(ctx context.Context, token string) (*domain.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, token string) error
	DeleteUserRefreshTokens(ctx context.Context, userID string) error

	// CreateLinkToken stores a single-use telegram link token.
	CreateLinkToken(ctx context.Context, token *domain.TelegramLinkToken) error

	// ConsumeLinkToken atomically deletes a non-expired link token and returns
	// it. Returns ErrLinkTokenNotFound if absent or expired.
	ConsumeLinkToken(ctx context.Context, token string, now time.Time) (*domain.TelegramLinkToken, error)

	// UpsertContact creates or replaces a user's contact for a provider.
	UpsertContact(ctx context.Context, contact *domain.UserContact) error
	GetContact(ctx context.Context, userID string, provider domain.ContactProvider) (*domain.UserContact, error)
}
