package reminders

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMeetingOffsets are the lead times every meeting gets a reminder for.
var DefaultMeetingOffsets = []time.Duration{
	24 * time.Hour,
	time.Hour,
	30 * time.Minute,
	10 * time.Minute,
	5 * time.Minute,
	2 * time.Minute,
}

// MeetingCreated is the payload of the meeting-created event.
type MeetingCreated struct {
	MeetingID     int64           `json:"meeting_id"`
	UserID        int64           `json:"user_id"`
	Title         string          `json:"title"`
	StartAt       time.Time       `json:"start_at"`
	CustomOffsets []time.Duration `json:"custom_offsets,omitempty"`
}

// Expander turns a new meeting into one-shot reminders at fixed lead times.
type Expander struct {
	store   ReminderStore
	offsets []time.Duration
	logger  zerolog.Logger
}

// NewExpander creates an expander. A nil offsets slice selects DefaultMeetingOffsets.
func NewExpander(store ReminderStore, offsets []time.Duration, logger zerolog.Logger) *Expander {
	if offsets == nil {
		offsets = DefaultMeetingOffsets
	}
	return &Expander{
		store:   store,
		offsets: offsets,
		logger:  logger.With().Str("component", "meeting-expander").Logger(),
	}
}

// ExpandMeeting creates one reminder per distinct lead time whose instant is
// strictly after now. Lead times landing at or before now are dropped silently.
// Reminders created before a store failure are returned along with the error.
func (e *Expander) ExpandMeeting(ctx context.Context, m MeetingCreated, now time.Time) ([]Reminder, error) {
	if m.MeetingID == 0 || m.UserID == 0 {
		return nil, fmt.Errorf("%w: meeting and user ids are required", ErrInvalidReminder)
	}
	if m.StartAt.IsZero() {
		return nil, fmt.Errorf("%w: meeting start is required", ErrInvalidReminder)
	}

	offsets := mergeOffsets(e.offsets, m.CustomOffsets)
	created := make([]Reminder, 0, len(offsets))
	for _, off := range offsets {
		at := m.StartAt.Add(-off)
		if !at.After(now) {
			continue
		}

		meetingID := m.MeetingID
		r := Reminder{
			UserID:      m.UserID,
			MeetingID:   &meetingID,
			Title:       meetingReminderTitle(m.Title, off),
			ScheduledAt: at,
			Recurrence:  RecurrenceNone,
		}
		if err := e.store.CreateReminder(ctx, &r); err != nil {
			return created, fmt.Errorf("create reminder for meeting %d offset %s: %w", m.MeetingID, off, err)
		}
		created = append(created, r)
	}

	e.logger.Info().
		Int64("meeting_id", m.MeetingID).
		Int64("user_id", m.UserID).
		Int("offsets", len(offsets)).
		Int("created", len(created)).
		Msg("meeting reminders expanded")

	return created, nil
}

// mergeOffsets unions both sets, drops non-positive values and duplicates,
// and orders the result longest-first so reminders are created earliest-first.
func mergeOffsets(defaults, custom []time.Duration) []time.Duration {
	seen := make(map[time.Duration]struct{}, len(defaults)+len(custom))
	out := make([]time.Duration, 0, len(defaults)+len(custom))
	for _, set := range [][]time.Duration{defaults, custom} {
		for _, off := range set {
			if off <= 0 {
				continue
			}
			if _, dup := seen[off]; dup {
				continue
			}
			seen[off] = struct{}{}
			out = append(out, off)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}

func meetingReminderTitle(title string, off time.Duration) string {
	if title == "" {
		title = "Meeting"
	}
	return fmt.Sprintf("%s starts in %s", title, humanizeOffset(off))
}

func humanizeOffset(d time.Duration) string {
	switch {
	case d%(24*time.Hour) == 0:
		return plural(int(d/(24*time.Hour)), "day")
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
