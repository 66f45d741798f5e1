// Package schedule computes when subscription reminders fire and advances
// overdue subscriptions to their next billing occurrence.
package schedule

import (
	"fmt"
	"time"

	"github.com/subtrackhq/subtrack/internal/domain"
)

// ScheduledInstant returns the UTC instant a reminder for paymentDate should
// fire: local midnight of the payment date in tz, minus the reminder offset.
// Day-sized offsets subtract calendar days so the result stays on a local
// midnight across DST transitions; sub-day offsets subtract wall-clock
// duration from that midnight.
func ScheduledInstant(paymentDate time.Time, tz string, offset domain.ReminderOffset) (time.Time, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("load timezone %q: %w", tz, err)
	}

	y, m, d := paymentDate.Date()

	var t time.Time
	switch offset {
	case domain.ReminderOffsetNone, "":
		t = time.Date(y, m, d, 0, 0, 0, 0, loc)
	case domain.ReminderOffset15Min:
		t = time.Date(y, m, d, 0, 0, 0, 0, loc).Add(-15 * time.Minute)
	case domain.ReminderOffset1Hour:
		t = time.Date(y, m, d, 0, 0, 0, 0, loc).Add(-1 * time.Hour)
	case domain.ReminderOffset1Day:
		t = time.Date(y, m, d-1, 0, 0, 0, 0, loc)
	case domain.ReminderOffset1Week:
		t = time.Date(y, m, d-7, 0, 0, 0, 0, loc)
	default:
		return time.Time{}, fmt.Errorf("unknown reminder offset %q", offset)
	}

	return t.UTC(), nil
}

// LocalMidnight returns the instant of midnight of the given calendar date in tz.
func LocalMidnight(date time.Time, tz string) (time.Time, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
}

// NextOccurrence advances a payment date by whole billing cycles until its
// local midnight in tz is strictly after now. Month and year steps follow
// calendar rules: the anchor day-of-month is preserved and clamped to the
// last valid day of shorter months (Jan 31 + 1 month = Feb 28/29).
func NextOccurrence(paymentDate time.Time, cycle domain.BillingCycle, tz string, now time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("load timezone %q: %w", tz, err)
	}

	y, m, d := paymentDate.Date()
	anchorDay := d

	var monthsPerStep int
	switch cycle {
	case domain.BillingCycleMonthly:
		monthsPerStep = 1
	case domain.BillingCycleQuarterly:
		monthsPerStep = 3
	case domain.BillingCycleAnnually:
		monthsPerStep = 12
	case domain.BillingCycleWeekly:
		// handled separately below
	default:
		return time.Time{}, fmt.Errorf("unknown billing cycle %q", cycle)
	}

	if cycle == domain.BillingCycleWeekly {
		cur := time.Date(y, m, d, 0, 0, 0, 0, loc)
		for !cur.After(now) {
			cur = cur.AddDate(0, 0, 7)
		}
		return time.Date(cur.Year(), cur.Month(), cur.Day(), 0, 0, 0, 0, time.UTC), nil
	}

	months := 0
	for {
		cy, cm, cd := addMonthsClamped(y, m, anchorDay, months)
		cur := time.Date(cy, cm, cd, 0, 0, 0, 0, loc)
		if cur.After(now) {
			return time.Date(cy, cm, cd, 0, 0, 0, 0, time.UTC), nil
		}
		months += monthsPerStep
	}
}

// addMonthsClamped adds months to (year, month) keeping anchorDay, clamped to
// the month's length. time.AddDate would normalize Jan 31 + 1 month into
// March; billing dates must land on the last day of February instead.
func addMonthsClamped(year int, month time.Month, anchorDay, months int) (int, time.Month, int) {
	total := int(month) - 1 + months
	y := year + total/12
	m := time.Month(total%12 + 1)

	d := anchorDay
	if last := daysInMonth(y, m); d > last {
		d = last
	}
	return y, m, d
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
