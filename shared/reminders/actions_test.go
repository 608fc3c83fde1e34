package reminders

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionHandler_Transitions(t *testing.T) {
	tests := []struct {
		name     string
		action   string
		entity   Origin
		wantCall string
		check    func(t *testing.T, store *MemoryStore, itemID, remID int64)
	}{
		{
			name: "snooze reminder", action: ActionSnooze, entity: OriginReminder, wantCall: "reschedule-reminder",
			check: func(t *testing.T, store *MemoryStore, _, remID int64) {
				r, ok := store.Reminder(remID)
				require.True(t, ok)
				assert.Equal(t, testNow.Add(time.Hour), r.ScheduledAt)
			},
		},
		{
			name: "mark-done reminder", action: ActionMarkDone, entity: OriginReminder, wantCall: "delete-reminder",
			check: func(t *testing.T, store *MemoryStore, itemID, remID int64) {
				_, ok := store.Reminder(remID)
				assert.False(t, ok)
				_, ok = store.Item(itemID)
				assert.True(t, ok)
			},
		},
		{
			name: "delete reminder keeps item", action: ActionDelete, entity: OriginReminder, wantCall: "delete-reminder",
			check: func(t *testing.T, store *MemoryStore, itemID, remID int64) {
				_, ok := store.Reminder(remID)
				assert.False(t, ok)
				it, ok := store.Item(itemID)
				require.True(t, ok)
				assert.NotNil(t, it.ReminderAt)
			},
		},
		{
			name: "snooze item", action: ActionSnooze, entity: OriginItem, wantCall: "set-item-reminder",
			check: func(t *testing.T, store *MemoryStore, itemID, _ int64) {
				it, ok := store.Item(itemID)
				require.True(t, ok)
				require.NotNil(t, it.ReminderAt)
				assert.Equal(t, testNow.Add(time.Hour), *it.ReminderAt)
			},
		},
		{
			name: "mark-done item", action: ActionMarkDone, entity: OriginItem, wantCall: "mark-item-done",
			check: func(t *testing.T, store *MemoryStore, itemID, _ int64) {
				it, ok := store.Item(itemID)
				require.True(t, ok)
				assert.True(t, it.Read)
				assert.Nil(t, it.ReminderAt)
			},
		},
		{
			name: "delete item removes it", action: ActionDelete, entity: OriginItem, wantCall: "delete-item",
			check: func(t *testing.T, store *MemoryStore, itemID, remID int64) {
				_, ok := store.Item(itemID)
				assert.False(t, ok)
				_, ok = store.Reminder(remID)
				assert.True(t, ok)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			itemID := store.AddItem(Item{UserID: 1, URL: "https://x", ReminderAt: timePtr(testNow)})
			remID := store.AddReminder(Reminder{UserID: 1, ItemID: &itemID, ScheduledAt: testNow})

			h := NewActionHandler(store, store, 0, zerolog.Nop())
			entityID := remID
			if tt.entity == OriginItem {
				entityID = itemID
			}

			err := h.Handle(context.Background(), ActionRequest{UserID: 1, Action: tt.action, EntityType: tt.entity, EntityID: entityID}, testNow)
			require.NoError(t, err)
			assert.Equal(t, []string{tt.wantCall}, store.Calls(), "exactly one store call")
			tt.check(t, store, itemID, remID)
		})
	}
}

func TestActionHandler_UnsupportedAction(t *testing.T) {
	store := NewMemoryStore()
	h := NewActionHandler(store, store, time.Hour, zerolog.Nop())

	err := h.Handle(context.Background(), ActionRequest{UserID: 1, Action: "archive", EntityType: OriginItem, EntityID: 1}, testNow)
	assert.ErrorIs(t, err, ErrUnsupportedAction)

	err = h.Handle(context.Background(), ActionRequest{UserID: 1, Action: ActionSnooze, EntityType: "task", EntityID: 1}, testNow)
	assert.ErrorIs(t, err, ErrUnsupportedAction)
	assert.Empty(t, store.Calls())

	assert.True(t, CanHandle(ActionDelete, OriginItem))
	assert.False(t, CanHandle("archive", OriginItem))
}

func TestActionHandler_OtherUsersRowIsNotFound(t *testing.T) {
	store := NewMemoryStore()
	remID := store.AddReminder(Reminder{UserID: 1, ScheduledAt: testNow})
	h := NewActionHandler(store, store, time.Hour, zerolog.Nop())

	err := h.Handle(context.Background(), ActionRequest{UserID: 2, Action: ActionDelete, EntityType: OriginReminder, EntityID: remID}, testNow)
	assert.ErrorIs(t, err, ErrNotFound)

	_, ok := store.Reminder(remID)
	assert.True(t, ok)
}
