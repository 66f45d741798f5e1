package subscriptions

import "errors"

// Service errors.
var (
	ErrSubscriptionNotFound    = errors.New("subscription not found")
	ErrInvalidBillingCycle     = errors.New("invalid billing cycle")
	ErrInvalidNotificationMode = errors.New("invalid notification mode")
	ErrInvalidReminderOffset   = errors.New("invalid reminder offset")
	ErrInvalidTimezone         = errors.New("unknown timezone")
	ErrInvalidPrice            = errors.New("price must be a positive decimal")
)
