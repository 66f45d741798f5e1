package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/subtrackhq/subtrack/internal/domain"
	"github.com/subtrackhq/subtrack/internal/pkg/ctxlog"
)

// DelivererConfig contains delivery and retry configuration.
type DelivererConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
	SendTimeout       time.Duration
}

// DefaultDelivererConfig returns default delivery configuration. The backoff
// ladder for the default five attempts is 2, 4, 8 and 16 minutes.
func DefaultDelivererConfig() DelivererConfig {
	return DelivererConfig{
		MaxAttempts:       5,
		InitialBackoff:    2 * time.Minute,
		BackoffMultiplier: 2.0,
		MaxBackoff:        1 * time.Hour,
		SendTimeout:       10 * time.Second,
	}
}

// OutcomeStatus classifies the result of one delivery invocation.
type OutcomeStatus string

// Outcome statuses.
const (
	OutcomeSent        OutcomeStatus = "sent"
	OutcomeAlreadySent OutcomeStatus = "already_sent"
	OutcomeNotDue      OutcomeStatus = "not_due"
	OutcomeRetrying    OutcomeStatus = "retrying"
	OutcomeFailed      OutcomeStatus = "failed"
	OutcomeNotFound    OutcomeStatus = "not_found"
)

// Outcome is the per-job result of a delivery invocation.
type Outcome struct {
	NotificationID string        `json:"notification_id"`
	Status         OutcomeStatus `json:"status"`
	Method         string        `json:"method,omitempty"`
	Error          string        `json:"error,omitempty"`
}

// Deliverer performs exactly one send attempt per invocation. The retry loop
// lives across dispatch cycles via next_attempt_at, not inside a call.
type Deliverer struct {
	config   DelivererConfig
	repo     Repository
	contacts ContactResolver
	senders  map[domain.NotificationMode]Sender

	now func() time.Time
}

// NewDeliverer creates a delivery worker.
func NewDeliverer(config DelivererConfig, repo Repository, contacts ContactResolver, senders ...Sender) *Deliverer {
	def := DefaultDelivererConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = def.InitialBackoff
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = def.BackoffMultiplier
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = def.MaxBackoff
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = def.SendTimeout
	}

	senderMap := make(map[domain.NotificationMode]Sender)
	for _, s := range senders {
		senderMap[s.Mode()] = s
	}

	return &Deliverer{
		config:   config,
		repo:     repo,
		contacts: contacts,
		senders:  senderMap,
		now:      time.Now,
	}
}

// Deliver loads a job, resolves its recipient and attempts one send, applying
// the job state transitions. The persisted row always reflects the outcome.
func (d *Deliverer) Deliver(ctx context.Context, jobID string) Outcome {
	log := ctxlog.FromContext(ctx)
	start := d.now()

	job, err := d.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return Outcome{NotificationID: jobID, Status: OutcomeNotFound}
		}
		return Outcome{NotificationID: jobID, Status: OutcomeFailed, Error: err.Error()}
	}

	mode := domain.NotificationMode(job.Mode)

	// Idempotent no-op: a sent job is never re-sent.
	if job.Status == JobStatusSent {
		return Outcome{NotificationID: job.ID, Status: OutcomeAlreadySent, Method: job.Mode}
	}

	// Guard against early or duplicate dispatch; the row is left untouched.
	if job.NextAttemptAt.After(d.now()) {
		return Outcome{NotificationID: job.ID, Status: OutcomeNotDue, Method: job.Mode}
	}

	target, err := d.resolveRecipient(ctx, mode, job)
	if err != nil {
		if !errors.Is(err, ErrNoRecipient) {
			// Lookup infrastructure trouble, not an unlinked contact.
			// The job stays on the normal backoff ladder.
			return d.handleSendError(ctx, job, err)
		}
		// A missing contact will never resolve on its own: terminal,
		// regardless of attempts remaining.
		log.Warn("recipient unresolved", "notification_id", job.ID, "mode", job.Mode, "error", err)
		if markErr := d.repo.MarkFailed(ctx, job.ID, ErrNoRecipient.Error()); markErr != nil {
			log.Error("failed to mark job failed", "notification_id", job.ID, "error", markErr)
		}
		recordNotificationSent(job.Mode, "no_recipient")
		return Outcome{NotificationID: job.ID, Status: OutcomeFailed, Method: job.Mode, Error: ErrNoRecipient.Error()}
	}

	sender, ok := d.senders[mode]
	if !ok {
		err := fmt.Errorf("no sender configured for mode %q", job.Mode)
		return d.handleSendError(ctx, job, NewNonRetryableError(err))
	}

	notification := Notification{
		To:      target,
		Subject: job.Payload.Title,
		Body:    MessageText(job.Payload, job.ServiceURL),
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.config.SendTimeout)
	err = sender.Send(sendCtx, notification)
	cancel()

	if err != nil {
		return d.handleSendError(ctx, job, err)
	}

	if err := d.repo.MarkSent(ctx, job.ID, d.now()); err != nil {
		log.Error("failed to mark job sent", "notification_id", job.ID, "error", err)
	}

	recordNotificationSent(job.Mode, "success")
	recordNotificationDuration(job.Mode, d.now().Sub(start))

	log.Info("reminder delivered",
		"notification_id", job.ID,
		"subscription_id", job.SubscriptionID,
		"mode", job.Mode,
	)

	return Outcome{NotificationID: job.ID, Status: OutcomeSent, Method: job.Mode}
}

// resolveRecipient finds the delivery target for a job.
func (d *Deliverer) resolveRecipient(ctx context.Context, mode domain.NotificationMode, job *Job) (string, error) {
	switch mode {
	case domain.NotificationModeTelegram:
		if job.Payload.ChatID != "" {
			return job.Payload.ChatID, nil
		}
		return d.contacts.TelegramChatID(ctx, job.Payload.UserID)
	case domain.NotificationModeEmail:
		return d.contacts.EmailAddress(ctx, job.Payload.UserID)
	default:
		return "", NewNonRetryableError(fmt.Errorf("unknown notification mode %q", mode))
	}
}

func (d *Deliverer) handleSendError(ctx context.Context, job *Job, err error) Outcome {
	log := ctxlog.FromContext(ctx)

	attempt := job.Attempts + 1

	log.Warn("delivery attempt failed",
		"notification_id", job.ID,
		"attempt", attempt,
		"max_attempts", job.MaxAttempts,
		"error", err,
	)

	if !isRetryable(err) {
		lastErr := fmt.Sprintf("permanent delivery error: %v", err)
		if markErr := d.repo.MarkFailed(ctx, job.ID, lastErr); markErr != nil {
			log.Error("failed to mark job failed", "notification_id", job.ID, "error", markErr)
		}
		recordNotificationSent(job.Mode, "failed")
		return Outcome{NotificationID: job.ID, Status: OutcomeFailed, Method: job.Mode, Error: lastErr}
	}

	if attempt >= job.MaxAttempts {
		lastErr := fmt.Sprintf("max attempts (%d) exhausted: %v", job.MaxAttempts, err)
		if markErr := d.repo.MarkFailed(ctx, job.ID, lastErr); markErr != nil {
			log.Error("failed to mark job failed", "notification_id", job.ID, "error", markErr)
		}
		recordNotificationSent(job.Mode, "failed")
		return Outcome{NotificationID: job.ID, Status: OutcomeFailed, Method: job.Mode, Error: lastErr}
	}

	nextAttempt := d.calculateNextAttempt(attempt)
	if delay := retryDelayHint(err); delay > 0 {
		// A provider-requested pause overrides a shorter ladder step.
		if hinted := d.now().Add(delay); hinted.After(nextAttempt) {
			nextAttempt = hinted
		}
	}
	lastErr := fmt.Sprintf("attempt %d/%d failed: %v; next retry at %s",
		attempt, job.MaxAttempts, err, nextAttempt.UTC().Format(time.RFC3339))

	if markErr := d.repo.MarkForRetry(ctx, job.ID, nextAttempt, lastErr); markErr != nil {
		log.Error("failed to mark job for retry", "notification_id", job.ID, "error", markErr)
	}
	recordNotificationSent(job.Mode, "retry")

	log.Info("reminder scheduled for retry",
		"notification_id", job.ID,
		"attempt", attempt,
		"next_attempt", nextAttempt,
	)

	return Outcome{NotificationID: job.ID, Status: OutcomeRetrying, Method: job.Mode, Error: lastErr}
}

// retryDelayHint extracts a provider-requested minimum retry delay, such as
// the retry_after carried by a telegram rate-limit response.
func retryDelayHint(err error) time.Duration {
	var h interface{ RetryDelay() time.Duration }
	if errors.As(err, &h) {
		return h.RetryDelay()
	}
	return 0
}

func (d *Deliverer) calculateNextAttempt(attempt int) time.Time {
	backoff := float64(d.config.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= d.config.BackoffMultiplier
	}

	if backoff > float64(d.config.MaxBackoff) {
		backoff = float64(d.config.MaxBackoff)
	}

	return d.now().Add(time.Duration(backoff))
}
