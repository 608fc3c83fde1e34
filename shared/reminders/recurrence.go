package reminders

import "time"

// Advance returns the instant a recurring reminder fires next, counted from
// its previous scheduledAt (never from the processing time). ok is false for
// RecurrenceNone and unknown patterns: the caller deletes the reminder.
//
// The result may still be in the past after downtime; the reminder then fires
// again on the next pass until it catches up.
func Advance(scheduledAt time.Time, pattern Recurrence) (next time.Time, ok bool) {
	switch pattern {
	case RecurrenceDaily:
		return scheduledAt.AddDate(0, 0, 1), true
	case RecurrenceWeekly:
		return scheduledAt.AddDate(0, 0, 7), true
	case RecurrenceMonthly:
		return addMonthClamped(scheduledAt), true
	default:
		return time.Time{}, false
	}
}

// addMonthClamped adds one calendar month keeping the day of month, clamped to
// the last day of the target month. time.AddDate would normalise Jan 31 to Mar 3.
func addMonthClamped(t time.Time) time.Time {
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+1, 1, 0, 0, 0, 0, t.Location())
	last := daysIn(firstOfTarget.Year(), firstOfTarget.Month(), t.Location())
	if d > last {
		d = last
	}
	hh, mm, ss := t.Clock()
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
