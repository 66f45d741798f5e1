// Package audit appends an immutable log of user and system mutations.
package audit

import (
	"context"

	"github.com/subtrackhq/subtrack/internal/domain"
	"github.com/subtrackhq/subtrack/internal/pkg/ctxlog"
)

// Store persists audit entries.
type Store interface {
	Insert(ctx context.Context, entry *domain.AuditEntry) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.AuditEntry, error)
}

// Recorder writes audit entries, swallowing failures. An audit write must
// never fail the operation that produced it.
type Recorder struct {
	store Store
}

// NewRecorder creates an audit recorder.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Record appends an entry. Failures are logged and dropped.
func (r *Recorder) Record(ctx context.Context, entry domain.AuditEntry) {
	if err := r.store.Insert(ctx, &entry); err != nil {
		ctxlog.FromContext(ctx).Warn("failed to write audit entry",
			"action", entry.Action,
			"entity_id", entry.EntityID,
			"error", err,
		)
	}
}

// ListByUser returns the user's most recent entries.
func (r *Recorder) ListByUser(ctx context.Context, userID string, limit int) ([]domain.AuditEntry, error) {
	return r.store.ListByUser(ctx, userID, limit)
}
