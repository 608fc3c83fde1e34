package reminders

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LinkBuilder builds deep links into the web app.
type LinkBuilder struct {
	baseURL string
}

// NewLinkBuilder creates a link builder rooted at baseURL.
func NewLinkBuilder(baseURL string) LinkBuilder {
	return LinkBuilder{baseURL: strings.TrimRight(baseURL, "/")}
}

func (b LinkBuilder) Item(id int64) string    { return fmt.Sprintf("%s/items/%d", b.baseURL, id) }
func (b LinkBuilder) Task(id int64) string    { return fmt.Sprintf("%s/tasks/%d", b.baseURL, id) }
func (b LinkBuilder) Meeting(id int64) string { return fmt.Sprintf("%s/meetings/%d", b.baseURL, id) }
func (b LinkBuilder) Reminders() string       { return b.baseURL + "/reminders" }

// ForReminder links to the reminder's parent, or to the reminder list.
func (b LinkBuilder) ForReminder(r Reminder) string {
	switch {
	case r.ItemID != nil:
		return b.Item(*r.ItemID)
	case r.TaskID != nil:
		return b.Task(*r.TaskID)
	case r.MeetingID != nil:
		return b.Meeting(*r.MeetingID)
	default:
		return b.Reminders()
	}
}

// Resolver merges due items and due reminders into one notification list.
type Resolver struct {
	items     ItemStore
	reminders ReminderStore
	links     LinkBuilder
	logger    zerolog.Logger
}

// NewResolver creates a resolver.
func NewResolver(items ItemStore, reminders ReminderStore, links LinkBuilder, logger zerolog.Logger) *Resolver {
	return &Resolver{
		items:     items,
		reminders: reminders,
		links:     links,
		logger:    logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve returns everything due at now. It does not modify state.
// The result is ordered by scheduled instant, then origin, then entity id.
func (r *Resolver) Resolve(ctx context.Context, now time.Time) ([]DueNotification, error) {
	items, err := r.items.DueItems(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("load due items: %w", err)
	}
	rems, err := r.reminders.DueReminders(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("load due reminders: %w", err)
	}

	out := make([]DueNotification, 0, len(items)+len(rems))
	for _, it := range items {
		if it.ReminderAt == nil {
			continue
		}
		title := it.Title
		if title == "" {
			title = it.URL
		}
		out = append(out, DueNotification{
			Origin:      OriginItem,
			EntityID:    it.ID,
			UserID:      it.UserID,
			Title:       title,
			Link:        r.links.Item(it.ID),
			Recurrence:  RecurrenceNone,
			ScheduledAt: *it.ReminderAt,
		})
	}

	for _, dr := range rems {
		if dr.ParentMissing {
			r.logger.Warn().
				Int64("reminder_id", dr.ID).
				Int64("user_id", dr.UserID).
				Msg("reminder parent no longer exists, skipping")
			continue
		}
		rec, err := ParseRecurrence(string(dr.Recurrence))
		if err != nil {
			r.logger.Warn().Err(err).
				Int64("reminder_id", dr.ID).
				Msg("reminder has invalid recurrence, treating as one-shot")
			rec = RecurrenceNone
		}
		out = append(out, DueNotification{
			Origin:      OriginReminder,
			EntityID:    dr.ID,
			UserID:      dr.UserID,
			Title:       dr.Title,
			Link:        r.links.ForReminder(dr.Reminder),
			Recurrence:  rec,
			ScheduledAt: dr.ScheduledAt,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.ScheduledAt.Equal(b.ScheduledAt) {
			return a.ScheduledAt.Before(b.ScheduledAt)
		}
		if a.Origin != b.Origin {
			return a.Origin < b.Origin
		}
		return a.EntityID < b.EntityID
	})

	return out, nil
}
