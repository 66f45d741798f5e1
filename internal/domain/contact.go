package domain

import "time"

// ContactProvider identifies an external messaging provider.
type ContactProvider string

// Contact providers.
const (
	ContactProviderTelegram ContactProvider = "telegram"
)

// UserContact links a user to an external delivery target, e.g. a Telegram
// chat id. At most one contact per (user, provider).
type UserContact struct {
	UserID    string          `json:"user_id"`
	Provider  ContactProvider `json:"provider"`
	ContactID string          `json:"contact_id"`
	CreatedAt time.Time       `json:"created_at"`
}

// TelegramLinkToken is a short-lived token a user hands to the bot to prove
// ownership of a chat.
type TelegramLinkToken struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
