package audit

import (
	"context"
	"fmt"
	"io"
	"time"

	"recall/shared/reminders"
)

// DeliverySource reads the delivery log.
type DeliverySource interface {
	// ListDeliveries returns attempts with from <= attempted_at < to, oldest first.
	ListDeliveries(ctx context.Context, from, to time.Time) ([]reminders.DeliveryRecord, error)
}

// DataCleaner prunes the delivery log.
type DataCleaner interface {
	// DeleteOldDeliveries deletes attempts older than the duration.
	DeleteOldDeliveries(ctx context.Context, olderThan time.Duration) (int64, error)
}

// ExcelWriter writes data to Excel format.
type ExcelWriter interface {
	// AddSheet adds a new sheet with the given name.
	AddSheet(name string) error

	// WriteHeader writes column headers to current sheet.
	WriteHeader(columns []string) error

	// WriteRow writes a data row to current sheet.
	WriteRow(row []interface{}) error

	// Save writes the Excel file to the writer.
	Save(w io.Writer) error

	// SaveToFile writes the Excel file to disk.
	SaveToFile(path string) error
}

// DeliveryColumns are the headers of the delivery sheet.
var DeliveryColumns = []string{
	"attempted_at", "run_id", "user_id", "channel", "target",
	"entity_type", "entity_id", "status", "duration_ms", "error",
}

// SummaryColumns are the headers of the summary sheet.
var SummaryColumns = []string{"channel", "status", "count"}

func deliveryRow(rec reminders.DeliveryRecord, loc *time.Location) []interface{} {
	var entityID interface{}
	if rec.EntityID != 0 {
		entityID = rec.EntityID
	}
	return []interface{}{
		rec.AttemptedAt.In(loc).Format("2006-01-02 15:04:05"),
		rec.RunID,
		rec.UserID,
		string(rec.Channel),
		rec.Target,
		string(rec.EntityType),
		entityID,
		string(rec.Status),
		rec.Duration.Milliseconds(),
		rec.Error,
	}
}

// GenerateFilename creates a filename like "deliveries_2026-01.xlsx".
func GenerateFilename(month time.Time) string {
	return fmt.Sprintf("deliveries_%04d-%02d.xlsx", month.Year(), int(month.Month()))
}

// PreviousMonth returns the bounds [start, end) of the calendar month before now in loc.
func PreviousMonth(now time.Time, loc *time.Location) (start, end time.Time) {
	now = now.In(loc)
	end = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	start = end.AddDate(0, -1, 0)
	return start, end
}
