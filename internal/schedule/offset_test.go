package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subtrackhq/subtrack/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestScheduledInstant(t *testing.T) {
	tests := []struct {
		name    string
		payment time.Time
		tz      string
		offset  domain.ReminderOffset
		want    time.Time
	}{
		{
			name:    "none fires at local midnight",
			payment: date(2026, time.January, 10),
			tz:      "Europe/Berlin",
			offset:  domain.ReminderOffsetNone,
			want:    time.Date(2026, time.January, 9, 23, 0, 0, 0, time.UTC),
		},
		{
			name:    "15 minutes before midnight",
			payment: date(2026, time.January, 10),
			tz:      "Europe/Berlin",
			offset:  domain.ReminderOffset15Min,
			want:    time.Date(2026, time.January, 9, 22, 45, 0, 0, time.UTC),
		},
		{
			name:    "1 hour before midnight",
			payment: date(2025, time.March, 9),
			tz:      "America/New_York",
			offset:  domain.ReminderOffset1Hour,
			want:    time.Date(2025, time.March, 9, 4, 0, 0, 0, time.UTC),
		},
		{
			name:    "1 day lands on previous local midnight across spring forward",
			payment: date(2025, time.March, 9),
			tz:      "America/New_York",
			offset:  domain.ReminderOffset1Day,
			// March 8 midnight is still EST (UTC-5); a flat -24h from
			// March 9 midnight would miss it.
			want: time.Date(2025, time.March, 8, 5, 0, 0, 0, time.UTC),
		},
		{
			name:    "1 day lands on previous local midnight across fall back",
			payment: date(2025, time.November, 3),
			tz:      "America/New_York",
			offset:  domain.ReminderOffset1Day,
			// November 2 midnight is still EDT (UTC-4).
			want: time.Date(2025, time.November, 2, 4, 0, 0, 0, time.UTC),
		},
		{
			name:    "1 week before payment date",
			payment: date(2026, time.February, 20),
			tz:      "UTC",
			offset:  domain.ReminderOffset1Week,
			want:    date(2026, time.February, 13),
		},
		{
			name:    "empty offset behaves as none",
			payment: date(2026, time.February, 20),
			tz:      "UTC",
			offset:  "",
			want:    date(2026, time.February, 20),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ScheduledInstant(tt.payment, tt.tz, tt.offset)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %s, want %s", got, tt.want)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestScheduledInstantDeterministic(t *testing.T) {
	payment := date(2026, time.July, 1)

	first, err := ScheduledInstant(payment, "Asia/Tokyo", domain.ReminderOffset1Day)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := ScheduledInstant(payment, "Asia/Tokyo", domain.ReminderOffset1Day)
		require.NoError(t, err)
		assert.True(t, first.Equal(again))
	}
}

func TestScheduledInstantInvalidInput(t *testing.T) {
	_, err := ScheduledInstant(date(2026, time.January, 1), "Mars/Olympus_Mons", domain.ReminderOffset1Day)
	assert.Error(t, err)

	_, err = ScheduledInstant(date(2026, time.January, 1), "UTC", "3d")
	assert.ErrorContains(t, err, "unknown reminder offset")
}

func TestNextOccurrence(t *testing.T) {
	tests := []struct {
		name    string
		payment time.Time
		cycle   domain.BillingCycle
		tz      string
		now     time.Time
		want    time.Time
	}{
		{
			name:    "future date returned unchanged",
			payment: date(2026, time.May, 1),
			cycle:   domain.BillingCycleMonthly,
			tz:      "UTC",
			now:     date(2026, time.January, 1),
			want:    date(2026, time.May, 1),
		},
		{
			name:    "weekly advances in seven day steps",
			payment: date(2025, time.January, 1),
			cycle:   domain.BillingCycleWeekly,
			tz:      "UTC",
			now:     date(2025, time.January, 20),
			want:    date(2025, time.January, 22),
		},
		{
			name:    "monthly keeps anchor day after clamped month",
			payment: date(2025, time.January, 31),
			cycle:   domain.BillingCycleMonthly,
			tz:      "UTC",
			now:     date(2025, time.March, 15),
			// Jan 31 -> Feb 28 (clamped, already past) -> Mar 31, not Mar 28.
			want: date(2025, time.March, 31),
		},
		{
			name:    "monthly clamps to end of february",
			payment: date(2025, time.January, 31),
			cycle:   domain.BillingCycleMonthly,
			tz:      "UTC",
			now:     date(2025, time.February, 10),
			want:    date(2025, time.February, 28),
		},
		{
			name:    "quarterly clamps then restores anchor",
			payment: date(2024, time.November, 30),
			cycle:   domain.BillingCycleQuarterly,
			tz:      "UTC",
			now:     date(2025, time.March, 1),
			want:    date(2025, time.May, 30),
		},
		{
			name:    "annual leap day clamps to february 28",
			payment: date(2024, time.February, 29),
			cycle:   domain.BillingCycleAnnually,
			tz:      "UTC",
			now:     date(2025, time.January, 1),
			want:    date(2025, time.February, 28),
		},
		{
			name:    "multiple cycles skipped at once",
			payment: date(2025, time.January, 15),
			cycle:   domain.BillingCycleMonthly,
			tz:      "UTC",
			now:     date(2025, time.June, 1),
			want:    date(2025, time.June, 15),
		},
		{
			name:    "comparison uses local midnight not utc",
			payment: date(2025, time.June, 10),
			cycle:   domain.BillingCycleMonthly,
			tz:      "Asia/Tokyo",
			// 16:00 UTC on June 9 is already 01:00 on June 10 in Tokyo,
			// so the June 10 payment is overdue there.
			now:  time.Date(2025, time.June, 9, 16, 0, 0, 0, time.UTC),
			want: date(2025, time.July, 10),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextOccurrence(tt.payment, tt.cycle, tt.tz, tt.now)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %s, want %s", got, tt.want)
		})
	}
}

func TestNextOccurrenceInvalidInput(t *testing.T) {
	_, err := NextOccurrence(date(2025, time.January, 1), "fortnightly", "UTC", date(2025, time.June, 1))
	assert.ErrorContains(t, err, "unknown billing cycle")

	_, err = NextOccurrence(date(2025, time.January, 1), domain.BillingCycleMonthly, "Nowhere/Special", date(2025, time.June, 1))
	assert.Error(t, err)
}
