package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recall/shared/reminders"
)

type fakeExpander struct {
	got []reminders.MeetingCreated
	at  []time.Time
	err error
}

func (f *fakeExpander) ExpandMeeting(ctx context.Context, m reminders.MeetingCreated, now time.Time) ([]reminders.Reminder, error) {
	f.got = append(f.got, m)
	f.at = append(f.at, now)
	if f.err != nil {
		return nil, f.err
	}
	return []reminders.Reminder{{ID: 1}, {ID: 2}}, nil
}

func TestPublish_RunsAllHandlersAndJoinsErrors(t *testing.T) {
	bus := NewEventBus(zerolog.Nop())
	boom := errors.New("boom")
	var order []int

	bus.Subscribe("x", func(ctx context.Context, e Event) error { order = append(order, 1); return boom })
	bus.Subscribe("x", func(ctx context.Context, e Event) error {
		order = append(order, 2)
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.CreatedAt.IsZero())
		return nil
	})

	err := bus.Publish(context.Background(), Event{Type: "x"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{1, 2}, order)

	assert.NoError(t, bus.Publish(context.Background(), Event{Type: "nobody"}))
}

func TestMeetingCreated_ReachesExpander(t *testing.T) {
	bus := NewEventBus(zerolog.Nop())
	exp := &fakeExpander{}
	now := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	SubscribeMeetingReminders(bus, exp, func() time.Time { return now })

	start := now.Add(2 * time.Hour)
	err := bus.PublishMeetingCreated(context.Background(), reminders.MeetingCreated{
		MeetingID:     5,
		UserID:        9,
		Title:         "Sync",
		StartAt:       start,
		CustomOffsets: []time.Duration{15 * time.Minute},
	})
	require.NoError(t, err)

	require.Len(t, exp.got, 1)
	assert.Equal(t, int64(5), exp.got[0].MeetingID)
	assert.True(t, start.Equal(exp.got[0].StartAt))
	assert.Equal(t, []time.Duration{15 * time.Minute}, exp.got[0].CustomOffsets)
	assert.Equal(t, now, exp.at[0])
}

func TestMeetingCreated_ExpanderErrorSurfaces(t *testing.T) {
	bus := NewEventBus(zerolog.Nop())
	SubscribeMeetingReminders(bus, &fakeExpander{err: reminders.ErrInvalidReminder}, nil)

	err := bus.PublishMeetingCreated(context.Background(), reminders.MeetingCreated{MeetingID: 1, UserID: 1})
	assert.ErrorIs(t, err, reminders.ErrInvalidReminder)
}

func TestMeetingCreated_BadPayload(t *testing.T) {
	bus := NewEventBus(zerolog.Nop())
	SubscribeMeetingReminders(bus, &fakeExpander{}, nil)

	err := bus.Publish(context.Background(), Event{Type: TopicMeetingCreated, Payload: []byte("{")})
	assert.Error(t, err)
}
