package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/subtrackhq/subtrack/internal/domain"
	"github.com/subtrackhq/subtrack/internal/pkg/ctxlog"
)

const defaultLinkTokenTTL = 15 * time.Minute

// TokenPair holds an access token and its refresh counterpart.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Authenticator issues and validates session tokens.
type Authenticator interface {
	GenerateTokens(ctx context.Context, user *domain.User) (*TokenPair, error)
	ValidateAccessToken(ctx context.Context, token string) (userID string, err error)
	RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error)
	RevokeRefreshToken(ctx context.Context, refreshToken string) error
}

// Service implements identity business logic.
type Service struct {
	repo         Repository
	auth         Authenticator
	linkTokenTTL time.Duration

	now func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository, auth Authenticator) *Service {
	return &Service{
		repo:         repo,
		auth:         auth,
		linkTokenTTL: defaultLinkTokenTTL,
		now:          time.Now,
	}
}

// RegisterInput contains registration parameters.
type RegisterInput struct {
	Email    string
	Password string
	Timezone string
}

// Register creates a new account. Timezone defaults to UTC when omitted and
// must name a valid IANA zone otherwise.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	if _, err := s.repo.GetUserByEmail(ctx, input.Email); err == nil {
		return nil, ErrEmailExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("check existing email: %w", err)
	}

	tz := input.Timezone
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, ErrInvalidTimezone
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Email:        input.Email,
		PasswordHash: string(hash),
		Timezone:     tz,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	ctxlog.FromContext(ctx).Info("user registered", "user_id", user.ID)

	return user, nil
}

// LoginInput contains login parameters.
type LoginInput struct {
	Email    string
	Password string
}

// Login verifies credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, input LoginInput) (*domain.User, *TokenPair, error) {
	user, err := s.repo.GetUserByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	tokens, err := s.auth.GenerateTokens(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("generate tokens: %w", err)
	}

	return user, tokens, nil
}

// RefreshTokens exchanges a refresh token for a fresh pair.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	return s.auth.RefreshTokens(ctx, refreshToken)
}

// Logout revokes the refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.auth.RevokeRefreshToken(ctx, refreshToken)
}

// GetUserByID loads a user profile.
func (s *Service) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// UpdateTimezone changes the profile default timezone.
func (s *Service) UpdateTimezone(ctx context.Context, userID, timezone string) (*domain.User, error) {
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, ErrInvalidTimezone
	}
	return s.repo.UpdateUserTimezone(ctx, userID, timezone)
}

// ValidateToken implements httputil.TokenValidator.
func (s *Service) ValidateToken(ctx context.Context, token string) (string, error) {
	return s.auth.ValidateAccessToken(ctx, token)
}

// CreateTelegramLinkToken issues a short-lived token the user passes to the
// bot to bind their chat id.
func (s *Service) CreateTelegramLinkToken(ctx context.Context, userID string) (*domain.TelegramLinkToken, error) {
	token := &domain.TelegramLinkToken{
		Token:     uuid.NewString(),
		UserID:    userID,
		ExpiresAt: s.now().Add(s.linkTokenTTL),
	}
	if err := s.repo.CreateLinkToken(ctx, token); err != nil {
		return nil, fmt.Errorf("create link token: %w", err)
	}
	return token, nil
}

// LinkTelegramContact consumes a link token and binds the chat id to its
// owner. The token is single use.
func (s *Service) LinkTelegramContact(ctx context.Context, token, chatID string) (*domain.UserContact, error) {
	linkToken, err := s.repo.ConsumeLinkToken(ctx, token, s.now())
	if err != nil {
		return nil, err
	}

	contact := &domain.UserContact{
		UserID:    linkToken.UserID,
		Provider:  domain.ContactProviderTelegram,
		ContactID: chatID,
	}
	if err := s.repo.UpsertContact(ctx, contact); err != nil {
		return nil, fmt.Errorf("upsert contact: %w", err)
	}

	ctxlog.FromContext(ctx).Info("telegram contact linked", "user_id", linkToken.UserID)

	return contact, nil
}

// GetTelegramContact returns the user's linked telegram contact, if any.
func (s *Service) GetTelegramContact(ctx context.Context, userID string) (*domain.UserContact, error) {
	return s.repo.GetContact(ctx, userID, domain.ContactProviderTelegram)
}
