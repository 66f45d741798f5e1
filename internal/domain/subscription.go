// Package domain contains the core entities shared across the application.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillingCycle is how often a subscription renews.
type BillingCycle string

// Billing cycles.
const (
	BillingCycleWeekly    BillingCycle = "weekly"
	BillingCycleMonthly   BillingCycle = "monthly"
	BillingCycleQuarterly BillingCycle = "quarterly"
	BillingCycleAnnually  BillingCycle = "annually"
)

// Valid reports whether the billing cycle is a known value.
func (c BillingCycle) Valid() bool {
	switch c {
	case BillingCycleWeekly, BillingCycleMonthly, BillingCycleQuarterly, BillingCycleAnnually:
		return true
	}
	return false
}

// NotificationMode is the channel a reminder is delivered through.
type NotificationMode string

// Notification modes.
const (
	NotificationModeTelegram NotificationMode = "telegram"
	NotificationModeEmail    NotificationMode = "email"
)

// Valid reports whether the notification mode is a known value.
func (m NotificationMode) Valid() bool {
	return m == NotificationModeTelegram || m == NotificationModeEmail
}

// ReminderOffset is how far before the payment date a reminder fires.
type ReminderOffset string

// Reminder offsets.
const (
	ReminderOffsetNone    ReminderOffset = "none"
	ReminderOffset15Min   ReminderOffset = "15m"
	ReminderOffset1Hour   ReminderOffset = "1h"
	ReminderOffset1Day    ReminderOffset = "1d"
	ReminderOffset1Week   ReminderOffset = "1w"
)

// Valid reports whether the reminder offset is a known value.
func (o ReminderOffset) Valid() bool {
	switch o {
	case ReminderOffsetNone, ReminderOffset15Min, ReminderOffset1Hour, ReminderOffset1Day, ReminderOffset1Week:
		return true
	}
	return false
}

// Subscription is a recurring payment a user tracks.
// NextPaymentDate is a calendar date (stored as DATE, midnight UTC in Go);
// combined with Timezone it denotes a local-midnight instant.
type Subscription struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	Name             string           `json:"name"`
	LogoURL          *string          `json:"logo_url,omitempty"`
	ServiceURL       *string          `json:"service_url,omitempty"`
	Category         *string          `json:"category,omitempty"`
	Price            decimal.Decimal  `json:"price"`
	Currency         string           `json:"currency"`
	BillingCycle     BillingCycle     `json:"billing_cycle"`
	NextPaymentDate  time.Time        `json:"next_payment_date"`
	Timezone         string           `json:"timezone"`
	NotificationMode NotificationMode `json:"notification_mode"`
	ReminderOffset   ReminderOffset   `json:"reminder_offset"`
	PaymentMethod    *string          `json:"payment_method,omitempty"`
	Notes            *string          `json:"notes,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}
