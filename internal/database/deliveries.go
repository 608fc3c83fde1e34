package database

import (
	"context"
	"fmt"
	"time"

	"recall/shared/reminders"
)

// RecordDelivery persists one dispatch attempt.
func (db *DB) RecordDelivery(ctx context.Context, rec reminders.DeliveryRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO notification_deliveries
			(id, run_id, user_id, channel, target, entity_type, entity_id, status, error, attempted_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RunID, rec.UserID, string(rec.Channel), rec.Target, string(rec.EntityType), rec.EntityID,
		string(rec.Status), rec.Error, dbTime(rec.AttemptedAt), rec.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert delivery %s: %w", rec.ID, err)
	}
	return nil
}

// ListDeliveries returns attempts made in [from, to), oldest first.
func (db *DB) ListDeliveries(ctx context.Context, from, to time.Time) ([]reminders.DeliveryRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, run_id, user_id, channel, target, entity_type, entity_id, status, error, attempted_at, duration_ms
		FROM notification_deliveries
		WHERE attempted_at >= ? AND attempted_at < ?
		ORDER BY attempted_at, id`, dbTime(from), dbTime(to))
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	var out []reminders.DeliveryRecord
	for rows.Next() {
		var (
			rec                         reminders.DeliveryRecord
			channel, entityType, status string
			durationMS                  int64
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.UserID, &channel, &rec.Target, &entityType, &rec.EntityID,
			&status, &rec.Error, &rec.AttemptedAt, &durationMS); err != nil {
			return nil, err
		}
		rec.Channel = reminders.Channel(channel)
		rec.EntityType = reminders.Origin(entityType)
		rec.Status = reminders.DeliveryStatus(status)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteOldDeliveries removes attempts older than olderThan.
func (db *DB) DeleteOldDeliveries(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := db.ExecContext(ctx, `DELETE FROM notification_deliveries WHERE attempted_at < ?`, dbTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete old deliveries: %w", err)
	}
	return res.RowsAffected()
}
