package reminders

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements every store interface in memory for tests.
type MemoryStore struct {
	mu         sync.Mutex
	reminders  map[int64]*Reminder
	items      map[int64]*Item
	subs       map[int64][]PushSubscription
	profiles   map[int64]*NotificationProfile
	deliveries []DeliveryRecord
	missing    map[int64]bool // reminder ids whose parent is gone
	nextID     int64

	meetings []DigestEntry
	upcoming []DigestEntry
	recent   []DigestEntry

	profileErr  error
	mutationErr map[int64]error
	calls       []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reminders:   make(map[int64]*Reminder),
		items:       make(map[int64]*Item),
		subs:        make(map[int64][]PushSubscription),
		profiles:    make(map[int64]*NotificationProfile),
		missing:     make(map[int64]bool),
		mutationErr: make(map[int64]error),
		nextID:      1,
	}
}

func (m *MemoryStore) track(call string) {
	m.calls = append(m.calls, call)
}

func (m *MemoryStore) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MemoryStore) AddReminder(r Reminder) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == 0 {
		r.ID = m.nextID
		m.nextID++
	}
	m.reminders[r.ID] = &r
	return r.ID
}

func (m *MemoryStore) AddItem(it Item) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it.ID == 0 {
		it.ID = m.nextID
		m.nextID++
	}
	m.items[it.ID] = &it
	return it.ID
}

func (m *MemoryStore) Reminder(id int64) (Reminder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return Reminder{}, false
	}
	return *r, true
}

func (m *MemoryStore) Item(id int64) (Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return Item{}, false
	}
	return *it, true
}

func (m *MemoryStore) Deliveries() []DeliveryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DeliveryRecord(nil), m.deliveries...)
}

// ReminderStore

func (m *MemoryStore) DueReminders(ctx context.Context, now time.Time) ([]DueReminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []DueReminder
	for _, r := range m.reminders {
		if !r.ScheduledAt.After(now) {
			out = append(out, DueReminder{Reminder: *r, ParentMissing: m.missing[r.ID]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) CreateReminder(ctx context.Context, r *Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := r.Validate(); err != nil {
		return err
	}
	r.ID = m.nextID
	m.nextID++
	cp := *r
	m.reminders[r.ID] = &cp
	m.track("create-reminder")
	return nil
}

func (m *MemoryStore) RescheduleReminder(ctx context.Context, userID, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.track("reschedule-reminder")
	if err := m.mutationErr[id]; err != nil {
		return err
	}
	r, ok := m.reminders[id]
	if !ok || r.UserID != userID {
		return ErrNotFound
	}
	r.ScheduledAt = at
	return nil
}

func (m *MemoryStore) DeleteReminder(ctx context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.track("delete-reminder")
	if err := m.mutationErr[id]; err != nil {
		return err
	}
	r, ok := m.reminders[id]
	if !ok || r.UserID != userID {
		return ErrNotFound
	}
	delete(m.reminders, id)
	return nil
}

// ItemStore

func (m *MemoryStore) DueItems(ctx context.Context, now time.Time) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Item
	for _, it := range m.items {
		if it.ReminderAt != nil && !it.ReminderAt.After(now) {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) SetItemReminder(ctx context.Context, userID, id int64, at *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.track("set-item-reminder")
	if err := m.mutationErr[id]; err != nil {
		return err
	}
	it, ok := m.items[id]
	if !ok || it.UserID != userID {
		return ErrNotFound
	}
	it.ReminderAt = at
	return nil
}

func (m *MemoryStore) MarkItemDone(ctx context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.track("mark-item-done")
	it, ok := m.items[id]
	if !ok || it.UserID != userID {
		return ErrNotFound
	}
	it.Read = true
	it.ReminderAt = nil
	return nil
}

func (m *MemoryStore) DeleteItem(ctx context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.track("delete-item")
	it, ok := m.items[id]
	if !ok || it.UserID != userID {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

// SubscriptionStore

func (m *MemoryStore) ListPushSubscriptions(ctx context.Context, userID int64) ([]PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PushSubscription(nil), m.subs[userID]...), nil
}

// ProfileStore

func (m *MemoryStore) GetProfile(ctx context.Context, userID int64) (*NotificationProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profileErr != nil {
		return nil, m.profileErr
	}
	if p, ok := m.profiles[userID]; ok {
		cp := *p
		return &cp, nil
	}
	return DefaultProfile(userID), nil
}

func (m *MemoryStore) ListDigestRecipients(ctx context.Context) ([]NotificationProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []NotificationProfile
	for _, p := range m.profiles {
		if p.EmailEnabled {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *MemoryStore) MarkDigestSent(ctx context.Context, userID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return ErrNotFound
	}
	p.LastDigestSentAt = &at
	return nil
}

// DigestSource

func (m *MemoryStore) UpcomingMeetings(ctx context.Context, userID int64, from, to time.Time, limit int) ([]DigestEntry, error) {
	return limitEntries(m.meetings, limit), nil
}

func (m *MemoryStore) UpcomingReminders(ctx context.Context, userID int64, until time.Time, limit int) ([]DigestEntry, error) {
	return limitEntries(m.upcoming, limit), nil
}

func (m *MemoryStore) RecentItems(ctx context.Context, userID int64, since time.Time, limit int) ([]DigestEntry, error) {
	return limitEntries(m.recent, limit), nil
}

func limitEntries(e []DigestEntry, limit int) []DigestEntry {
	if len(e) > limit {
		return e[:limit]
	}
	return e
}

// DeliveryRecorder

func (m *MemoryStore) RecordDelivery(ctx context.Context, rec DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries = append(m.deliveries, rec)
	return nil
}

// MockPushSender records calls and fails for configured endpoints.
type MockPushSender struct {
	mu       sync.Mutex
	calls    map[string]int
	payloads [][]byte
	failFor  map[string]error
}

func NewMockPushSender() *MockPushSender {
	return &MockPushSender{
		calls:   make(map[string]int),
		failFor: make(map[string]error),
	}
}

func (m *MockPushSender) SendPush(ctx context.Context, sub PushSubscription, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[sub.Endpoint]++
	m.payloads = append(m.payloads, payload)
	return m.failFor[sub.Endpoint]
}

func (m *MockPushSender) CallCount(endpoint string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[endpoint]
}

func (m *MockPushSender) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func (m *MockPushSender) Payloads() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.payloads...)
}

var errDeliveryFailed = errors.New("endpoint gone")

func int64Ptr(v int64) *int64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }
