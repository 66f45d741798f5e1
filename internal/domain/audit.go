package domain

import "time"

// AuditEntry is an append-only record of a mutation. Writing one must never
// fail the operation that produced it.
type AuditEntry struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Diff       map[string]any `json:"diff,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Audit actions.
const (
	AuditActionCreate    = "create"
	AuditActionUpdate    = "update"
	AuditActionDelete    = "delete"
	AuditActionAutoRenew = "auto_renew"
	AuditActionLink      = "link_contact"
)
