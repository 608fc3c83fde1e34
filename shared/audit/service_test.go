package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"recall/shared/reminders"
)

type fakeSource struct {
	records  []reminders.DeliveryRecord
	from, to time.Time
	err      error
}

func (f *fakeSource) ListDeliveries(ctx context.Context, from, to time.Time) ([]reminders.DeliveryRecord, error) {
	f.from, f.to = from, to
	return f.records, f.err
}

type fakeCleaner struct {
	calls     int
	olderThan time.Duration
}

func (f *fakeCleaner) DeleteOldDeliveries(ctx context.Context, olderThan time.Duration) (int64, error) {
	f.calls++
	f.olderThan = olderThan
	return 4, nil
}

func TestPreviousMonth(t *testing.T) {
	start, end := PreviousMonth(time.Date(2024, 3, 1, 0, 30, 0, 0, time.UTC), time.UTC)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), end)

	start, _ = PreviousMonth(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC), time.UTC)
	assert.Equal(t, time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, "deliveries_2023-12.xlsx", GenerateFilename(start))
}

func TestRunExportAndCleanup(t *testing.T) {
	at := time.Date(2024, 5, 20, 8, 0, 0, 0, time.UTC)
	source := &fakeSource{records: []reminders.DeliveryRecord{
		{ID: "a", RunID: "r1", UserID: 1, Channel: reminders.ChannelPush, Target: "https://push/1", EntityType: reminders.OriginReminder, EntityID: 3, Status: reminders.DeliveryStatusSent, AttemptedAt: at, Duration: 120 * time.Millisecond},
		{ID: "b", RunID: "r1", UserID: 1, Channel: reminders.ChannelPush, Target: "https://push/2", EntityType: reminders.OriginReminder, EntityID: 3, Status: reminders.DeliveryStatusFailed, Error: "410 gone", AttemptedAt: at},
		{ID: "c", UserID: 2, Channel: reminders.ChannelEmail, Target: "b@example.com", Status: reminders.DeliveryStatusSent, AttemptedAt: at},
	}}
	cleaner := &fakeCleaner{}
	dir := t.TempDir()

	svc, err := NewService(Config{ExportDir: dir, DataRetentionDays: 30}, source, nil, cleaner, zerolog.Nop())
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 0, 1, 0, 0, time.UTC) }

	require.NoError(t, svc.RunExportAndCleanup(context.Background()))

	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), source.from)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), source.to)
	assert.Equal(t, 1, cleaner.calls)
	assert.Equal(t, 30*24*time.Hour, cleaner.olderThan)

	f, err := excelize.OpenFile(filepath.Join(dir, "deliveries_2024-05.xlsx"))
	require.NoError(t, err)
	defer f.Close()

	summary, err := f.GetRows("Summary")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		SummaryColumns,
		{"email", "sent", "1"},
		{"push", "failed", "1"},
		{"push", "sent", "1"},
	}, summary)

	rows, err := f.GetRows("Deliveries")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, DeliveryColumns, rows[0])
	assert.Equal(t, "2024-05-20 08:00:00", rows[1][0])
	assert.Equal(t, "120", rows[1][8])
	assert.Equal(t, "410 gone", rows[2][9])
}

func TestRunExportAndCleanup_ExportFailureSkipsCleanup(t *testing.T) {
	source := &fakeSource{err: errors.New("db locked")}
	cleaner := &fakeCleaner{}

	svc, err := NewService(Config{ExportDir: t.TempDir()}, source, nil, cleaner, zerolog.Nop())
	require.NoError(t, err)

	assert.Error(t, svc.RunExportAndCleanup(context.Background()))
	assert.Equal(t, 0, cleaner.calls)
}

func TestNewService_BadTimezone(t *testing.T) {
	_, err := NewService(Config{Timezone: "Mars/Olympus"}, &fakeSource{}, nil, nil, zerolog.Nop())
	assert.Error(t, err)
}
