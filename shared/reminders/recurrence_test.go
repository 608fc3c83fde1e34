package reminders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvance(t *testing.T) {
	base := time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		at      time.Time
		pattern Recurrence
		want    time.Time
		ok      bool
	}{
		{"none is terminal", base, RecurrenceNone, time.Time{}, false},
		{"unknown is terminal", base, Recurrence("hourly"), time.Time{}, false},
		{"daily", base, RecurrenceDaily, base.AddDate(0, 0, 1), true},
		{"weekly", base, RecurrenceWeekly, time.Date(2024, 3, 17, 9, 30, 0, 0, time.UTC), true},
		{"monthly", base, RecurrenceMonthly, time.Date(2024, 4, 10, 9, 30, 0, 0, time.UTC), true},
		{
			"monthly clamps to leap february",
			time.Date(2024, 1, 31, 8, 0, 0, 0, time.UTC), RecurrenceMonthly,
			time.Date(2024, 2, 29, 8, 0, 0, 0, time.UTC), true,
		},
		{
			"monthly clamps to february",
			time.Date(2023, 1, 31, 8, 0, 0, 0, time.UTC), RecurrenceMonthly,
			time.Date(2023, 2, 28, 8, 0, 0, 0, time.UTC), true,
		},
		{
			"monthly clamps to 30-day month",
			time.Date(2024, 3, 31, 8, 0, 0, 0, time.UTC), RecurrenceMonthly,
			time.Date(2024, 4, 30, 8, 0, 0, 0, time.UTC), true,
		},
		{
			"monthly rolls over the year",
			time.Date(2024, 12, 15, 8, 0, 0, 0, time.UTC), RecurrenceMonthly,
			time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC), true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Advance(tt.at, tt.pattern)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestAdvance_IsMonotonic(t *testing.T) {
	start := time.Date(2024, 1, 31, 23, 59, 0, 0, time.UTC)
	for _, p := range []Recurrence{RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly} {
		at := start
		for i := 0; i < 40; i++ {
			next, ok := Advance(at, p)
			require.True(t, ok)
			require.True(t, next.After(at), "%s step %d: %s not after %s", p, i, next, at)
			at = next
		}
	}
}

// The next instant counts from the previous scheduled instant, never from the
// moment the reminder was processed, even after long downtime.
func TestAdvance_CountsFromScheduledInstant(t *testing.T) {
	scheduled := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	processedAt := scheduled.Add(3*24*time.Hour + 5*time.Hour)

	next, ok := Advance(scheduled, RecurrenceDaily)
	require.True(t, ok)

	assert.Equal(t, time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC), next)
	assert.True(t, next.Before(processedAt), "a reminder behind schedule stays in the past")
}

func TestParseRecurrence(t *testing.T) {
	r, err := ParseRecurrence("")
	require.NoError(t, err)
	assert.Equal(t, RecurrenceNone, r)

	r, err = ParseRecurrence("weekly")
	require.NoError(t, err)
	assert.Equal(t, RecurrenceWeekly, r)

	_, err = ParseRecurrence("yearly")
	assert.ErrorIs(t, err, ErrInvalidReminder)
}

func TestReminderValidate(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	ok := Reminder{UserID: 1, ItemID: int64Ptr(2), ScheduledAt: at, Recurrence: RecurrenceDaily}
	assert.NoError(t, ok.Validate())

	noParent := Reminder{UserID: 1, ScheduledAt: at, Recurrence: RecurrenceNone}
	assert.NoError(t, noParent.Validate())

	twoParents := Reminder{UserID: 1, ItemID: int64Ptr(2), TaskID: int64Ptr(3), ScheduledAt: at}
	assert.ErrorIs(t, twoParents.Validate(), ErrInvalidReminder)

	badRecurrence := Reminder{UserID: 1, ScheduledAt: at, Recurrence: "hourly"}
	assert.ErrorIs(t, badRecurrence.Validate(), ErrInvalidReminder)

	noTime := Reminder{UserID: 1}
	assert.ErrorIs(t, noTime.Validate(), ErrInvalidReminder)
}
