package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrUnsupportedAction    = errors.New("unsupported notification action")
	ErrInvalidReminder      = errors.New("invalid reminder")
	ErrChannelNotConfigured = errors.New("channel not configured")
)

// Recurrence defines how a reminder re-arms itself after firing.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// ParseRecurrence validates a stored recurrence value. Empty means none.
func ParseRecurrence(s string) (Recurrence, error) {
	switch r := Recurrence(s); r {
	case "":
		return RecurrenceNone, nil
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return r, nil
	default:
		return "", fmt.Errorf("%w: unknown recurrence %q", ErrInvalidReminder, s)
	}
}

// Origin tells which storage shape a due notification came from.
type Origin string

const (
	OriginItem     Origin = "item"
	OriginReminder Origin = "reminder"
)

// Reminder is a standalone schedulable entity.
type Reminder struct {
	ID          int64
	UserID      int64
	ItemID      *int64
	TaskID      *int64
	MeetingID   *int64
	Title       string
	ScheduledAt time.Time
	Recurrence  Recurrence
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks the parent reference and recurrence invariants.
func (r *Reminder) Validate() error {
	parents := 0
	for _, p := range []*int64{r.ItemID, r.TaskID, r.MeetingID} {
		if p != nil {
			parents++
		}
	}
	if parents > 1 {
		return fmt.Errorf("%w: at most one of item, task or meeting may be set", ErrInvalidReminder)
	}
	if _, err := ParseRecurrence(string(r.Recurrence)); err != nil {
		return err
	}
	if r.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduled_at is required", ErrInvalidReminder)
	}
	return nil
}

// DueReminder is a due Reminder as read by the store. ParentMissing is set when
// the referenced item, task or meeting row no longer exists.
type DueReminder struct {
	Reminder
	ParentMissing bool
}

// Item is a saved link carrying an optional embedded one-shot reminder.
type Item struct {
	ID         int64
	UserID     int64
	URL        string
	Title      string
	Read       bool
	ReminderAt *time.Time
	CreatedAt  time.Time
}

// DueNotification is the origin-tagged unit flowing from the resolver to the
// dispatcher. Only the resolver and the post-dispatch mutation look at Origin.
type DueNotification struct {
	Origin      Origin
	EntityID    int64
	UserID      int64
	Title       string
	Link        string
	Recurrence  Recurrence
	ScheduledAt time.Time
}

// PushSubscription is a browser push endpoint registered by a user's client.
type PushSubscription struct {
	ID       int64
	UserID   int64
	Endpoint string
	P256dh   string
	Auth     string
}

// NotificationProfile holds a user's channel opt-ins and digest bookkeeping.
type NotificationProfile struct {
	UserID           int64
	Email            string
	EmailEnabled     bool
	PushEnabled      bool
	LastDigestSentAt *time.Time
}

// DefaultProfile returns the profile used when a user never saved preferences.
func DefaultProfile(userID int64) *NotificationProfile {
	return &NotificationProfile{
		UserID:       userID,
		EmailEnabled: false,
		PushEnabled:  true,
	}
}

// DigestEntry is one line of the daily digest.
type DigestEntry struct {
	ID    int64
	Title string
	At    time.Time
	Link  string
}

// DeliveryRecord is one persisted dispatch attempt.
type DeliveryRecord struct {
	ID          string
	RunID       string
	UserID      int64
	Channel     Channel
	Target      string
	EntityType  Origin
	EntityID    int64
	Status      DeliveryStatus
	Error       string
	AttemptedAt time.Time
	Duration    time.Duration
}

// Channel identifies a delivery mechanism.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
)

// DeliveryStatus is the outcome of a single delivery attempt.
type DeliveryStatus string

const (
	DeliveryStatusSent   DeliveryStatus = "sent"
	DeliveryStatusFailed DeliveryStatus = "failed"
)

// ReminderStore provides access to standalone reminders.
type ReminderStore interface {
	// DueReminders returns reminders with scheduled_at <= now.
	DueReminders(ctx context.Context, now time.Time) ([]DueReminder, error)

	// CreateReminder inserts r and sets its ID.
	CreateReminder(ctx context.Context, r *Reminder) error

	// RescheduleReminder moves scheduled_at of the user's reminder in place.
	RescheduleReminder(ctx context.Context, userID, id int64, at time.Time) error

	// DeleteReminder removes the user's reminder.
	DeleteReminder(ctx context.Context, userID, id int64) error
}

// ItemStore provides access to the reminder fields of saved items.
type ItemStore interface {
	// DueItems returns items with reminder_at <= now.
	DueItems(ctx context.Context, now time.Time) ([]Item, error)

	// SetItemReminder sets or, with a nil instant, clears reminder_at.
	SetItemReminder(ctx context.Context, userID, id int64, at *time.Time) error

	// MarkItemDone marks the item read and clears reminder_at.
	MarkItemDone(ctx context.Context, userID, id int64) error

	// DeleteItem removes the saved item entirely.
	DeleteItem(ctx context.Context, userID, id int64) error
}

// SubscriptionStore lists push subscriptions.
type SubscriptionStore interface {
	ListPushSubscriptions(ctx context.Context, userID int64) ([]PushSubscription, error)
}

// ProfileStore provides access to notification profiles.
type ProfileStore interface {
	// GetProfile returns the user's profile, or defaults when none is stored.
	GetProfile(ctx context.Context, userID int64) (*NotificationProfile, error)

	// ListDigestRecipients returns all profiles with the email channel enabled.
	ListDigestRecipients(ctx context.Context) ([]NotificationProfile, error)

	// MarkDigestSent records a successful digest send.
	MarkDigestSent(ctx context.Context, userID int64, at time.Time) error
}

// DigestSource gathers digest content for one user.
type DigestSource interface {
	UpcomingMeetings(ctx context.Context, userID int64, from, to time.Time, limit int) ([]DigestEntry, error)
	UpcomingReminders(ctx context.Context, userID int64, until time.Time, limit int) ([]DigestEntry, error)
	RecentItems(ctx context.Context, userID int64, since time.Time, limit int) ([]DigestEntry, error)
}

// DeliveryRecorder persists dispatch attempts.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, rec DeliveryRecord) error
}

// PushSender delivers one JSON payload to one subscription.
type PushSender interface {
	SendPush(ctx context.Context, sub PushSubscription, payload []byte) error
}

// EmailSender delivers one plain-text message.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}
