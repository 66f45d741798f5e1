package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subtrackhq/subtrack/internal/domain"
)

type mockRepository struct {
	jobs map[string]*Job

	sent       map[string]time.Time
	retried    map[string]time.Time
	failed     map[string]string
	retryError map[string]string

	dueIDs   []string
	fetchErr error
	stats    *QueueStats
}

func newMockRepository(jobs ...*Job) *mockRepository {
	m := &mockRepository{
		jobs:       make(map[string]*Job),
		sent:       make(map[string]time.Time),
		retried:    make(map[string]time.Time),
		failed:     make(map[string]string),
		retryError: make(map[string]string),
		stats:      &QueueStats{},
	}
	for _, j := range jobs {
		m.jobs[j.ID] = j
	}
	return m
}

func (m *mockRepository) UpsertPending(_ context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = "job-" + job.SubscriptionID
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *mockRepository) GetByID(_ context.Context, id string) (*Job, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (m *mockRepository) FetchDueIDs(_ context.Context, _ time.Time, _ int) ([]string, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.dueIDs, nil
}

func (m *mockRepository) MarkSent(_ context.Context, id string, at time.Time) error {
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = JobStatusSent
	job.Attempts++
	job.SentAt = &at
	job.LastError = ""
	m.sent[id] = at
	return nil
}

func (m *mockRepository) MarkForRetry(_ context.Context, id string, nextAttempt time.Time, lastError string) error {
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Attempts++
	job.NextAttemptAt = nextAttempt
	job.LastError = lastError
	m.retried[id] = nextAttempt
	m.retryError[id] = lastError
	return nil
}

func (m *mockRepository) MarkFailed(_ context.Context, id string, lastError string) error {
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = JobStatusFailed
	job.Attempts++
	job.LastError = lastError
	m.failed[id] = lastError
	return nil
}

func (m *mockRepository) DeleteBySubscription(_ context.Context, subscriptionID string) error {
	for id, job := range m.jobs {
		if job.SubscriptionID == subscriptionID {
			delete(m.jobs, id)
		}
	}
	return nil
}

func (m *mockRepository) GetQueueStats(_ context.Context) (*QueueStats, error) {
	return m.stats, nil
}

func (m *mockRepository) RecentForUser(_ context.Context, userID string, _ int) ([]Job, error) {
	var out []Job
	for _, job := range m.jobs {
		if job.Payload.UserID == userID {
			out = append(out, *job)
		}
	}
	return out, nil
}

type mockContacts struct {
	chatIDs   map[string]string
	emails    map[string]string
	lookupErr error
}

func (m *mockContacts) TelegramChatID(_ context.Context, userID string) (string, error) {
	if m.lookupErr != nil {
		return "", m.lookupErr
	}
	id, ok := m.chatIDs[userID]
	if !ok {
		return "", ErrNoRecipient
	}
	return id, nil
}

func (m *mockContacts) EmailAddress(_ context.Context, userID string) (string, error) {
	if m.lookupErr != nil {
		return "", m.lookupErr
	}
	addr, ok := m.emails[userID]
	if !ok {
		return "", ErrNoRecipient
	}
	return addr, nil
}

type mockSender struct {
	mode domain.NotificationMode
	err  error

	sent []Notification
}

func (m *mockSender) Mode() domain.NotificationMode { return m.mode }

func (m *mockSender) Send(_ context.Context, n Notification) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, n)
	return nil
}

func pendingJob(id string, mode domain.NotificationMode) *Job {
	return &Job{
		ID:             id,
		SubscriptionID: "sub-1",
		ScheduledAt:    time.Date(2026, time.February, 28, 23, 0, 0, 0, time.UTC),
		NextAttemptAt:  time.Date(2026, time.February, 28, 23, 0, 0, 0, time.UTC),
		Status:         JobStatusPending,
		MaxAttempts:    5,
		Payload: JobPayload{
			Title:  "Subscription renewal — Netflix",
			Body:   "Netflix renews on Mar 1, 2026 (UTC) — Monthly plan, 15.99 USD.",
			UserID: "user-1",
		},
		Mode:       string(mode),
		ServiceURL: "https://netflix.com",
	}
}

func newTestDeliverer(repo Repository, contacts ContactResolver, now time.Time, senders ...Sender) *Deliverer {
	d := NewDeliverer(DelivererConfig{}, repo, contacts, senders...)
	d.now = func() time.Time { return now }
	return d
}

func TestDeliverSuccess(t *testing.T) {
	job := pendingJob("job-1", domain.NotificationModeTelegram)
	repo := newMockRepository(job)
	contacts := &mockContacts{chatIDs: map[string]string{"user-1": "42"}}
	sender := &mockSender{mode: domain.NotificationModeTelegram}

	now := job.NextAttemptAt.Add(time.Minute)
	d := newTestDeliverer(repo, contacts, now, sender)

	outcome := d.Deliver(context.Background(), "job-1")

	assert.Equal(t, OutcomeSent, outcome.Status)
	assert.Equal(t, "telegram", outcome.Method)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "42", sender.sent[0].To)
	assert.Equal(t, "Subscription renewal — Netflix", sender.sent[0].Subject)
	assert.Contains(t, sender.sent[0].Body, "Link: https://netflix.com")

	assert.Contains(t, repo.sent, "job-1")
	assert.Equal(t, JobStatusSent, repo.jobs["job-1"].Status)
	assert.Equal(t, 1, repo.jobs["job-1"].Attempts)
}

func TestDeliverAlreadySentIsIdempotent(t *testing.T) {
	job := pendingJob("job-1", domain.NotificationModeTelegram)
	job.Status = JobStatusSent
	repo := newMockRepository(job)
	sender := &mockSender{mode: domain.NotificationModeTelegram}

	d := newTestDeliverer(repo, &mockContacts{}, job.NextAttemptAt.Add(time.Hour), sender)

	outcome := d.Deliver(context.Background(), "job-1")

	assert.Equal(t, OutcomeAlreadySent, outcome.Status)
	assert.Empty(t, sender.sent)
	assert.Empty(t, repo.sent)
}

func TestDeliverNotDue(t *testing.T) {
	job := pendingJob("job-1", domain.NotificationModeTelegram)
	repo := newMockRepository(job)
	sender := &mockSender{mode: domain.NotificationModeTelegram}

	d := newTestDeliverer(repo, &mockContacts{}, job.NextAttemptAt.Add(-time.Minute), sender)

	outcome := d.Deliver(context.Background(), "job-1")

	assert.Equal(t, OutcomeNotDue, outcome.Status)
	assert.Empty(t, sender.sent)
	assert.Equal(t, 0, repo.jobs["job-1"].Attempts)
}

func TestDeliverNotFound(t *testing.T) {
	d := newTestDeliverer(newMockRepository(), &mockContacts{}, time.Now())

	outcome := d.Deliver(context.Background(), "missing")

	assert.Equal(t, OutcomeNotFound, outcome.Status)
	assert.Equal(t, "missing", outcome.NotificationID)
}

func TestDeliverNoRecipientIsTerminal(t *testing.T) {
	job := pendingJob("job-1", domain.NotificationModeTelegram)
	repo := newMockRepository(job)
	sender := &mockSender{mode: domain.NotificationModeTelegram}

	d := newTestDeliverer(repo, &mockContacts{}, job.NextAttemptAt.Add(time.Minute), sender)

	outcome := d.Deliver(context.Background(), "job-1")

	assert.Equal(t, OutcomeFailed, outcome.Status)
	assert.Equal(t, ErrNoRecipient.Error(), outcome.Error)
	assert.Equal(t, JobStatusFailed, repo.jobs["job-1"].Status)
	assert.Equal(t, 1, repo.jobs["job-1"].Attempts)
	assert.Empty(t, sender.sent)
}

func TestDeliverContactLookupFailureIsRetried(t *testing.T) {
	job := pendingJob("job-1", domain.NotificationModeTelegram)
	repo := newMockRepository(job)
	contacts := &mockContacts{lookupErr: errors.New("get contact: connection refused")}
	sender := &mockSender{mode: domain.NotificationModeTelegram}

	now := job.NextAttemptAt.Add(time.Minute)
	d := newTestDeliverer(repo, contacts, now, sender)

	outcome := d.Deliver(context.Background(), "job-1")

	assert.Equal(t, OutcomeRetrying, outcome.Status)
	assert.Equal(t, JobStatusPending, repo.jobs["job-1"].Status)
	assert.Equal(t, 1, repo.jobs["job-1"].Attempts)
	assert.Equal(t, now.Add(2*time.Minute), repo.retried["job-1"])
	assert.Contains(t, repo.retryError["job-1"], "attempt 1/5 failed")
	assert.Contains(t, repo.retryError["job-1"], "connection refused")
	assert.Empty(t, sender.sent)
	assert.Empty(t, repo.failed)
}

func TestDeliverUnknownModeIsTerminal(t *testing.T) {
	job := pendingJob("job-1", domain.NotificationMode("carrier-pigeon"))
	repo := newMockRepository(job)

	d := newTestDeliverer(repo, &mockContacts{}, job.NextAttemptAt.Add(time.Minute))

	outcome := d.Deliver(context.Background(), "job-1")

	assert.Equal(t, OutcomeFailed, outcome.Status)
	assert.Contains(t, outcome.Error, "permanent delivery error")
	assert.Contains(t, repo.failed["job-1"], "unknown notification mode")
	assert.Equal(t, JobStatusFailed, repo.jobs["job-1"].Status)
}

func TestDeliverChatIDFromPayloadWinsOverContact(t *testing.T) {
	job := pendingJob("job-1", domain.NotificationModeTelegram)
	job.Payload.ChatID = "payload-chat"
	repo := newMockRepository(job)
	contacts := &mockContacts{chatIDs: map[string]string{"user-1": "linked-chat"}}
	sender := &mockSender{mode: domain.NotificationModeTelegram}

	d := newTestDeliverer(repo, contacts, job.NextAttemptAt.Add(time.Minute), sender)
	d.Deliver(context.Background(), "job-1")

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "payload-chat", sender.sent[0].To)
}

func TestDeliverEmailRecipient(t *testing.T) {
	job := pendingJob("job-1", domain.NotificationModeEmail)
	repo := newMockRepository(job)
	contacts := &mockContacts{emails: map[string]string{"user-1": "user@example.com"}}
	sender := &mockSender{mode: domain.NotificationModeEmail}

	d := newTestDeliverer(repo, contacts, job.NextAttemptAt.Add(time.Minute), sender)
	outcome := d.Deliver(context.Background(), "job-1")

	assert.Equal(t, OutcomeSent, outcome.Status)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "user@example.com", sender.sent[0].To)
}

func TestDeliverMissingSenderFailsPermanently(t *testing.T) {
	job := pendingJob("job-1", domain.NotificationModeEmail)
	repo := newMockRepository(job)
	contacts := &mockContacts{emails: map[string]string{"user-1": "user@example.com"}}

	// Only a telegram sender is configured.
	d := newTestDeliverer(repo, contacts, job.NextAttemptAt.Add(time.Minute),
		&mockSender{mode: domain.NotificationModeTelegram})

	outcome := d.Deliver(context.Background(), "job-1")

	assert.Equal(t, OutcomeFailed, outcome.Status)
	assert.Contains(t, repo.failed["job-1"], "permanent delivery error")
	assert.Contains(t, repo.failed["job-1"], "no sender configured")
}

func TestDeliverRetryableFailureBacksOff(t *testing.T) {
	job := pendingJob("job-1", domain.NotificationModeTelegram)
	repo := newMockRepository(job)
	contacts := &mockContacts{chatIDs: map[string]string{"user-1": "42"}}
	sender := &mockSender{mode: domain.NotificationModeTelegram, err: errors.New("connection reset")}

	now := job.NextAttemptAt.Add(time.Minute)
	d := newTestDeliverer(repo, contacts, now, sender)

	outcome := d.Deliver(context.Background(), "job-1")

	assert.Equal(t, OutcomeRetrying, outcome.Status)
	assert.Equal(t, JobStatusPending, repo.jobs["job-1"].Status)
	assert.Equal(t, 1, repo.jobs["job-1"].Attempts)
	assert.True(t, repo.retried["job-1"].Equal(now.Add(2*time.Minute)),
		"first retry should back off 2m, got %s", repo.retried["job-1"].Sub(now))
	assert.Contains(t, repo.retryError["job-1"], "attempt 1/5 failed")
	assert.Contains(t, repo.retryError["job-1"], "connection reset")
}

type rateLimitedError struct {
	delay time.Duration
}

func (e *rateLimitedError) Error() string             { return "rate limited" }
func (e *rateLimitedError) IsRetryable() bool         { return true }
func (e *rateLimitedError) RetryDelay() time.Duration { return e.delay }

func TestDeliverHonorsProviderRetryDelay(t *testing.T) {
	job := pendingJob("job-1", domain.NotificationModeTelegram)
	repo := newMockRepository(job)
	contacts := &mockContacts{chatIDs: map[string]string{"user-1": "42"}}
	sender := &mockSender{mode: domain.NotificationModeTelegram, err: &rateLimitedError{delay: 30 * time.Minute}}

	now := job.NextAttemptAt.Add(time.Minute)
	d := newTestDeliverer(repo, contacts, now, sender)

	outcome := d.Deliver(context.Background(), "job-1")

	assert.Equal(t, OutcomeRetrying, outcome.Status)
	assert.True(t, repo.retried["job-1"].Equal(now.Add(30*time.Minute)),
		"requested pause should override the 2m ladder step, got %s", repo.retried["job-1"].Sub(now))
}

func TestDeliverShortProviderDelayKeepsLadder(t *testing.T) {
	job := pendingJob("job-1", domain.NotificationModeTelegram)
	repo := newMockRepository(job)
	contacts := &mockContacts{chatIDs: map[string]string{"user-1": "42"}}
	sender := &mockSender{mode: domain.NotificationModeTelegram, err: &rateLimitedError{delay: 30 * time.Second}}

	now := job.NextAttemptAt.Add(time.Minute)
	d := newTestDeliverer(repo, contacts, now, sender)

	d.Deliver(context.Background(), "job-1")

	assert.True(t, repo.retried["job-1"].Equal(now.Add(2*time.Minute)),
		"backoff should never shrink below the ladder step, got %s", repo.retried["job-1"].Sub(now))
}

func TestDeliverBackoffLadder(t *testing.T) {
	// 2m, 4m, 8m and 16m between the five attempts, then terminal failure.
	wantBackoffs := []time.Duration{2 * time.Minute, 4 * time.Minute, 8 * time.Minute, 16 * time.Minute}

	job := pendingJob("job-1", domain.NotificationModeTelegram)
	repo := newMockRepository(job)
	contacts := &mockContacts{chatIDs: map[string]string{"user-1": "42"}}
	sender := &mockSender{mode: domain.NotificationModeTelegram, err: errors.New("still down")}

	now := job.NextAttemptAt
	d := newTestDeliverer(repo, contacts, now, sender)

	for i, want := range wantBackoffs {
		outcome := d.Deliver(context.Background(), "job-1")
		require.Equal(t, OutcomeRetrying, outcome.Status, "attempt %d", i+1)
		assert.Equal(t, want, repo.retried["job-1"].Sub(now), "attempt %d", i+1)

		// Advance past the scheduled retry for the next round.
		now = repo.retried["job-1"].Add(time.Second)
		d.now = func() time.Time { return now }
	}

	outcome := d.Deliver(context.Background(), "job-1")
	assert.Equal(t, OutcomeFailed, outcome.Status)
	assert.Equal(t, JobStatusFailed, repo.jobs["job-1"].Status)
	assert.Equal(t, 5, repo.jobs["job-1"].Attempts)
	assert.Contains(t, repo.failed["job-1"], "max attempts (5) exhausted")
}

func TestDeliverNonRetryableFailureIsTerminal(t *testing.T) {
	job := pendingJob("job-1", domain.NotificationModeTelegram)
	repo := newMockRepository(job)
	contacts := &mockContacts{chatIDs: map[string]string{"user-1": "42"}}
	sender := &mockSender{
		mode: domain.NotificationModeTelegram,
		err:  NewNonRetryableError(errors.New("chat not found")),
	}

	d := newTestDeliverer(repo, contacts, job.NextAttemptAt.Add(time.Minute), sender)

	outcome := d.Deliver(context.Background(), "job-1")

	assert.Equal(t, OutcomeFailed, outcome.Status)
	assert.Equal(t, JobStatusFailed, repo.jobs["job-1"].Status)
	assert.Equal(t, 1, repo.jobs["job-1"].Attempts)
	assert.Contains(t, repo.failed["job-1"], "permanent delivery error")
}

func TestCalculateNextAttemptCapped(t *testing.T) {
	now := time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)
	d := NewDeliverer(DelivererConfig{
		MaxAttempts:       10,
		InitialBackoff:    2 * time.Minute,
		BackoffMultiplier: 2.0,
		MaxBackoff:        10 * time.Minute,
	}, newMockRepository(), &mockContacts{})
	d.now = func() time.Time { return now }

	assert.Equal(t, now.Add(2*time.Minute), d.calculateNextAttempt(1))
	assert.Equal(t, now.Add(4*time.Minute), d.calculateNextAttempt(2))
	assert.Equal(t, now.Add(8*time.Minute), d.calculateNextAttempt(3))
	assert.Equal(t, now.Add(10*time.Minute), d.calculateNextAttempt(4))
	assert.Equal(t, now.Add(10*time.Minute), d.calculateNextAttempt(8))
}
