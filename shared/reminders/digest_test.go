package reminders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}

func newDigestService(t *testing.T, store *MemoryStore, email EmailSender) *DigestService {
	t.Helper()
	svc, err := NewDigestService(DigestConfig{Timezone: "UTC"}, store, store, email, store, nil, zerolog.Nop())
	require.NoError(t, err)
	return svc
}

func digestStore() *MemoryStore {
	store := NewMemoryStore()
	store.profiles[1] = &NotificationProfile{UserID: 1, Email: "ada@example.com", EmailEnabled: true}
	store.profiles[2] = &NotificationProfile{UserID: 2, Email: "bob@example.com", EmailEnabled: false, PushEnabled: true}
	store.meetings = []DigestEntry{{ID: 1, Title: "Design review", At: testNow.Add(3 * time.Hour)}}
	return store
}

func TestSendDailyDigests_SameDayTwiceSendsOnce(t *testing.T) {
	store := digestStore()
	email := new(MockEmailSender)
	email.On("SendEmail", mock.Anything, "ada@example.com", "Your daily digest", mock.AnythingOfType("string")).Return(nil).Once()

	svc := newDigestService(t, store, email)

	first, err := svc.SendDailyDigests(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Recipients)
	assert.Equal(t, 1, first.Sent)

	second, err := svc.SendDailyDigests(context.Background(), testNow.Add(6*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, second.Sent)
	assert.Equal(t, 1, second.SkippedSameDay)

	email.AssertExpectations(t)
	email.AssertNumberOfCalls(t, "SendEmail", 1)

	recs := store.Deliveries()
	require.Len(t, recs, 1)
	assert.Equal(t, ChannelEmail, recs[0].Channel)
	assert.Equal(t, DeliveryStatusSent, recs[0].Status)
}

func TestSendDailyDigests_ConsecutiveDaysSendTwice(t *testing.T) {
	store := digestStore()
	email := new(MockEmailSender)
	email.On("SendEmail", mock.Anything, "ada@example.com", mock.Anything, mock.Anything).Return(nil)

	svc := newDigestService(t, store, email)

	_, err := svc.SendDailyDigests(context.Background(), testNow)
	require.NoError(t, err)
	report, err := svc.SendDailyDigests(context.Background(), testNow.Add(24*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Sent)
	email.AssertNumberOfCalls(t, "SendEmail", 2)

	p, _ := store.GetProfile(context.Background(), 1)
	require.NotNil(t, p.LastDigestSentAt)
	assert.Equal(t, testNow.Add(24*time.Hour), *p.LastDigestSentAt)
}

func TestSendDailyDigests_EmptyContentNotMarked(t *testing.T) {
	store := digestStore()
	store.meetings = nil
	email := new(MockEmailSender)

	svc := newDigestService(t, store, email)

	report, err := svc.SendDailyDigests(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, report.SkippedEmpty)
	email.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	p, _ := store.GetProfile(context.Background(), 1)
	assert.Nil(t, p.LastDigestSentAt)

	// Content shows up later the same day: the digest still goes out once.
	store.recent = []DigestEntry{{ID: 9, Title: "Saved article", At: testNow}}
	email.On("SendEmail", mock.Anything, "ada@example.com", mock.Anything, mock.Anything).Return(nil)

	report, err = svc.SendDailyDigests(context.Background(), testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
}

func TestSendDailyDigests_FailedSendNotMarked(t *testing.T) {
	store := digestStore()
	email := new(MockEmailSender)
	email.On("SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp: 421")).Once()

	svc := newDigestService(t, store, email)

	report, err := svc.SendDailyDigests(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	p, _ := store.GetProfile(context.Background(), 1)
	assert.Nil(t, p.LastDigestSentAt)
	email.AssertNumberOfCalls(t, "SendEmail", 1)
}

func TestSendDailyDigests_NoEmailSenderSkipsChannel(t *testing.T) {
	store := digestStore()
	svc := newDigestService(t, store, nil)

	report, err := svc.SendDailyDigests(context.Background(), testNow)
	require.NoError(t, err)
	assert.Zero(t, report.Recipients)
	assert.Empty(t, store.Deliveries())
}

func TestSendDailyDigests_CalendarDayFollowsTimezone(t *testing.T) {
	store := digestStore()
	// 23:30 UTC on June 2 is already June 3 in Berlin.
	store.profiles[1].LastDigestSentAt = timePtr(time.Date(2024, 6, 2, 23, 30, 0, 0, time.UTC))

	email := new(MockEmailSender)
	svc, err := NewDigestService(DigestConfig{Timezone: "Europe/Berlin"}, store, store, email, nil, nil, zerolog.Nop())
	require.NoError(t, err)

	report, err := svc.SendDailyDigests(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, report.SkippedSameDay)
	email.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestComposeDigest(t *testing.T) {
	body := ComposeDigest(DigestContent{
		Meetings: []DigestEntry{{Title: "Design review", At: testNow, Link: "https://app/meetings/1"}},
		Items:    []DigestEntry{{Title: "Go memory model", At: testNow}},
	}, time.UTC)

	assert.Contains(t, body, "Upcoming meetings\n- Design review (Mon Jun 3 09:00) https://app/meetings/1\n")
	assert.Contains(t, body, "Recently saved\n- Go memory model (Mon Jun 3 09:00)\n")
	assert.NotContains(t, body, "Reminders")
}
