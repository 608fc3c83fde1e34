package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"recall/shared/reminders"
)

// TopicMeetingCreated is published when a meeting is saved.
const TopicMeetingCreated = "meeting.created"

// Event represents a lightweight domain event.
type Event struct {
	ID        string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(ctx context.Context, event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      zerolog.Logger
}

// NewEventBus constructs an empty bus.
func NewEventBus(logger zerolog.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string][]EventHandler),
		logger:      logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs every subscriber of the event type in registration order and
// returns their joined errors. A failing handler does not stop the others.
func (b *EventBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if len(handlers) == 0 {
		b.logger.Debug().Str("type", event.Type).Msg("event has no subscribers")
		return nil
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			b.logger.Error().Err(err).Str("type", event.Type).Str("event_id", event.ID).Msg("event handler failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishMeetingCreated encodes m and publishes it on TopicMeetingCreated.
func (b *EventBus) PublishMeetingCreated(ctx context.Context, m reminders.MeetingCreated) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode meeting event: %w", err)
	}
	return b.Publish(ctx, Event{Type: TopicMeetingCreated, Payload: payload})
}

// MeetingExpander is the part of reminders.Expander the bus drives.
type MeetingExpander interface {
	ExpandMeeting(ctx context.Context, m reminders.MeetingCreated, now time.Time) ([]reminders.Reminder, error)
}

// SubscribeMeetingReminders wires meeting-created events to the expander.
func SubscribeMeetingReminders(bus *EventBus, expander MeetingExpander, now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	bus.Subscribe(TopicMeetingCreated, func(ctx context.Context, event Event) error {
		var m reminders.MeetingCreated
		if err := json.Unmarshal(event.Payload, &m); err != nil {
			return fmt.Errorf("decode meeting event %s: %w", event.ID, err)
		}
		created, err := expander.ExpandMeeting(ctx, m, now())
		if err != nil {
			return fmt.Errorf("expand meeting %d: %w", m.MeetingID, err)
		}
		bus.logger.Info().
			Int64("meeting_id", m.MeetingID).
			Int("reminders", len(created)).
			Msg("meeting reminders created")
		return nil
	})
}
