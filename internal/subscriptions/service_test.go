package subscriptions

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subtrackhq/subtrack/internal/domain"
)

// mockRepository implements Repository for testing.
type mockRepository struct {
	subs   map[string]*domain.Subscription
	nextID int
}

func newMockRepository() *mockRepository {
	return &mockRepository{subs: make(map[string]*domain.Subscription)}
}

func (m *mockRepository) Create(_ context.Context, sub *domain.Subscription) error {
	m.nextID++
	sub.ID = string(rune('a' + m.nextID - 1))
	m.subs[sub.ID] = sub
	return nil
}

func (m *mockRepository) GetByID(_ context.Context, id string) (*domain.Subscription, error) {
	if sub, ok := m.subs[id]; ok {
		copied := *sub
		return &copied, nil
	}
	return nil, ErrSubscriptionNotFound
}

func (m *mockRepository) ListByUser(_ context.Context, userID string) ([]domain.Subscription, error) {
	out := make([]domain.Subscription, 0)
	for _, sub := range m.subs {
		if sub.UserID == userID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (m *mockRepository) Update(_ context.Context, sub *domain.Subscription) error {
	if _, ok := m.subs[sub.ID]; !ok {
		return ErrSubscriptionNotFound
	}
	copied := *sub
	m.subs[sub.ID] = &copied
	return nil
}

func (m *mockRepository) Delete(_ context.Context, id string) error {
	if _, ok := m.subs[id]; !ok {
		return ErrSubscriptionNotFound
	}
	delete(m.subs, id)
	return nil
}

func (m *mockRepository) FetchOverdue(_ context.Context, _ time.Time, _ int) ([]domain.Subscription, error) {
	return nil, nil
}

func (m *mockRepository) UpdateNextPaymentDate(_ context.Context, _ string, _ time.Time) error {
	return nil
}

// mockScheduler implements Scheduler for testing.
type mockScheduler struct {
	scheduled []string
	cancelled []string
}

func (m *mockScheduler) Schedule(_ context.Context, sub *domain.Subscription) error {
	m.scheduled = append(m.scheduled, sub.ID)
	return nil
}

func (m *mockScheduler) Cancel(_ context.Context, subscriptionID string) error {
	m.cancelled = append(m.cancelled, subscriptionID)
	return nil
}

// mockAudit implements AuditRecorder for testing.
type mockAudit struct {
	entries []domain.AuditEntry
}

func (m *mockAudit) Record(_ context.Context, entry domain.AuditEntry) {
	m.entries = append(m.entries, entry)
}

// mockProfiles implements ProfileStore for testing.
type mockProfiles struct {
	timezone string
}

func (m *mockProfiles) DefaultTimezone(_ context.Context, _ string) (string, error) {
	return m.timezone, nil
}

func validInput() Input {
	return Input{
		Name:             "Netflix",
		Price:            decimal.RequireFromString("15.99"),
		Currency:         "USD",
		BillingCycle:     domain.BillingCycleMonthly,
		NextPaymentDate:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Timezone:         "Europe/Berlin",
		NotificationMode: domain.NotificationModeTelegram,
		ReminderOffset:   domain.ReminderOffset1Day,
	}
}

func newTestService() (*Service, *mockRepository, *mockScheduler, *mockAudit, *mockProfiles) {
	repo := newMockRepository()
	sched := &mockScheduler{}
	audit := &mockAudit{}
	profiles := &mockProfiles{timezone: "America/New_York"}
	return NewService(repo, sched, audit, profiles), repo, sched, audit, profiles
}

func TestCreate_SchedulesReminderAndAudits(t *testing.T) {
	service, _, sched, audit, _ := newTestService()

	sub, err := service.Create(context.Background(), "user-1", validInput())

	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, "Europe/Berlin", sub.Timezone)
	require.Len(t, sched.scheduled, 1)
	assert.Equal(t, sub.ID, sched.scheduled[0])
	require.Len(t, audit.entries, 1)
	assert.Equal(t, domain.AuditActionCreate, audit.entries[0].Action)
}

func TestCreate_TimezoneFallsBackToProfile(t *testing.T) {
	service, _, _, _, _ := newTestService()

	input := validInput()
	input.Timezone = ""

	sub, err := service.Create(context.Background(), "user-1", input)

	require.NoError(t, err)
	assert.Equal(t, "America/New_York", sub.Timezone)
}

func TestCreate_TimezoneFallsBackToUTC(t *testing.T) {
	service, _, _, _, profiles := newTestService()
	profiles.timezone = ""

	input := validInput()
	input.Timezone = ""

	sub, err := service.Create(context.Background(), "user-1", input)

	require.NoError(t, err)
	assert.Equal(t, "UTC", sub.Timezone)
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Input)
		wantErr error
	}{
		{
			name:    "unknown billing cycle",
			mutate:  func(in *Input) { in.BillingCycle = "fortnightly" },
			wantErr: ErrInvalidBillingCycle,
		},
		{
			name:    "unknown notification mode",
			mutate:  func(in *Input) { in.NotificationMode = "carrier-pigeon" },
			wantErr: ErrInvalidNotificationMode,
		},
		{
			name:    "unknown reminder offset",
			mutate:  func(in *Input) { in.ReminderOffset = "2d" },
			wantErr: ErrInvalidReminderOffset,
		},
		{
			name:    "negative price",
			mutate:  func(in *Input) { in.Price = decimal.RequireFromString("-1") },
			wantErr: ErrInvalidPrice,
		},
		{
			name:    "zero price",
			mutate:  func(in *Input) { in.Price = decimal.Zero },
			wantErr: ErrInvalidPrice,
		},
		{
			name:    "bad timezone",
			mutate:  func(in *Input) { in.Timezone = "Nowhere/Special" },
			wantErr: ErrInvalidTimezone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, _, sched, _, _ := newTestService()

			input := validInput()
			tt.mutate(&input)

			sub, err := service.Create(context.Background(), "user-1", input)

			assert.Nil(t, sub)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, sched.scheduled)
		})
	}
}

func TestGet_OwnershipEnforced(t *testing.T) {
	service, _, _, _, _ := newTestService()

	sub, err := service.Create(context.Background(), "user-1", validInput())
	require.NoError(t, err)

	_, err = service.Get(context.Background(), "user-2", sub.ID)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestUpdate_Reschedules(t *testing.T) {
	service, repo, sched, audit, _ := newTestService()

	sub, err := service.Create(context.Background(), "user-1", validInput())
	require.NoError(t, err)

	input := validInput()
	input.NextPaymentDate = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	updated, err := service.Update(context.Background(), "user-1", sub.ID, input)

	require.NoError(t, err)
	assert.Equal(t, input.NextPaymentDate, updated.NextPaymentDate)
	assert.Equal(t, input.NextPaymentDate, repo.subs[sub.ID].NextPaymentDate)

	// Once for create, once for update.
	assert.Len(t, sched.scheduled, 2)
	require.Len(t, audit.entries, 2)
	assert.Equal(t, domain.AuditActionUpdate, audit.entries[1].Action)
	assert.Equal(t, "2026-03-01", audit.entries[1].Diff["old_date"])
	assert.Equal(t, "2026-04-01", audit.entries[1].Diff["new_date"])
}

func TestDelete_CancelsReminder(t *testing.T) {
	service, repo, sched, audit, _ := newTestService()

	sub, err := service.Create(context.Background(), "user-1", validInput())
	require.NoError(t, err)

	err = service.Delete(context.Background(), "user-1", sub.ID)

	require.NoError(t, err)
	assert.Empty(t, repo.subs)
	assert.Equal(t, []string{sub.ID}, sched.cancelled)
	require.Len(t, audit.entries, 2)
	assert.Equal(t, domain.AuditActionDelete, audit.entries[1].Action)
}

func TestDelete_NotOwned(t *testing.T) {
	service, repo, sched, _, _ := newTestService()

	sub, err := service.Create(context.Background(), "user-1", validInput())
	require.NoError(t, err)

	err = service.Delete(context.Background(), "user-2", sub.ID)

	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
	assert.Len(t, repo.subs, 1)
	assert.Empty(t, sched.cancelled)
}
