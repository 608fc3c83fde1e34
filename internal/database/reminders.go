package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"recall/shared/reminders"
)

// DueReminders returns reminders with scheduled_at <= now. A reminder whose
// parent row is gone comes back with ParentMissing set.
func (db *DB) DueReminders(ctx context.Context, now time.Time) ([]reminders.DueReminder, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT r.id, r.user_id, r.item_id, r.task_id, r.meeting_id, r.title,
		       r.scheduled_at, r.recurrence, r.created_at, r.updated_at,
		       (r.item_id IS NOT NULL AND i.id IS NULL)
		       OR (r.task_id IS NOT NULL AND t.id IS NULL)
		       OR (r.meeting_id IS NOT NULL AND m.id IS NULL) AS parent_missing
		FROM reminders r
		LEFT JOIN items i ON i.id = r.item_id
		LEFT JOIN tasks t ON t.id = r.task_id
		LEFT JOIN meetings m ON m.id = r.meeting_id
		WHERE r.scheduled_at <= ?
		ORDER BY r.scheduled_at, r.id`, dbTime(now))
	if err != nil {
		return nil, fmt.Errorf("query due reminders: %w", err)
	}
	defer rows.Close()

	var out []reminders.DueReminder
	for rows.Next() {
		var (
			dr                     reminders.DueReminder
			itemID, taskID, meetID sql.NullInt64
			recurrence             string
		)
		if err := rows.Scan(&dr.ID, &dr.UserID, &itemID, &taskID, &meetID, &dr.Title,
			&dr.ScheduledAt, &recurrence, &dr.CreatedAt, &dr.UpdatedAt, &dr.ParentMissing); err != nil {
			return nil, err
		}
		dr.ItemID = nullInt64Ptr(itemID)
		dr.TaskID = nullInt64Ptr(taskID)
		dr.MeetingID = nullInt64Ptr(meetID)
		dr.Recurrence = reminders.Recurrence(recurrence)
		out = append(out, dr)
	}
	return out, rows.Err()
}

// CreateReminder inserts r and sets its ID and timestamps.
func (db *DB) CreateReminder(ctx context.Context, r *reminders.Reminder) error {
	if r.Recurrence == "" {
		r.Recurrence = reminders.RecurrenceNone
	}
	if err := r.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	res, err := db.ExecContext(ctx, `
		INSERT INTO reminders (user_id, item_id, task_id, meeting_id, title, scheduled_at, recurrence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.UserID, r.ItemID, r.TaskID, r.MeetingID, r.Title, dbTime(r.ScheduledAt), string(r.Recurrence),
		dbTime(now), dbTime(now))
	if err != nil {
		return fmt.Errorf("insert reminder: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

// GetReminder returns the user's reminder.
func (db *DB) GetReminder(ctx context.Context, userID, id int64) (*reminders.Reminder, error) {
	var (
		r                      reminders.Reminder
		itemID, taskID, meetID sql.NullInt64
		recurrence             string
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, item_id, task_id, meeting_id, title, scheduled_at, recurrence, created_at, updated_at
		FROM reminders WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&r.ID, &r.UserID, &itemID, &taskID, &meetID, &r.Title, &r.ScheduledAt, &recurrence, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, reminders.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.ItemID = nullInt64Ptr(itemID)
	r.TaskID = nullInt64Ptr(taskID)
	r.MeetingID = nullInt64Ptr(meetID)
	r.Recurrence = reminders.Recurrence(recurrence)
	return &r, nil
}

// RescheduleReminder moves the reminder to at, keeping its id.
func (db *DB) RescheduleReminder(ctx context.Context, userID, id int64, at time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE reminders SET scheduled_at = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		dbTime(at), dbTime(time.Now()), id, userID)
	if err != nil {
		return fmt.Errorf("reschedule reminder %d: %w", id, err)
	}
	return expectOne(res, reminders.ErrNotFound)
}

// DeleteReminder removes the user's reminder.
func (db *DB) DeleteReminder(ctx context.Context, userID, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete reminder %d: %w", id, err)
	}
	return expectOne(res, reminders.ErrNotFound)
}

// UpcomingReminders lists standalone and item-embedded reminders firing no
// later than until, earliest first.
func (db *DB) UpcomingReminders(ctx context.Context, userID int64, until time.Time, limit int) ([]reminders.DigestEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, title, at, kind FROM (
			SELECT id, title, scheduled_at AS at, 'reminder' AS kind
			FROM reminders WHERE user_id = ? AND scheduled_at <= ?
			UNION ALL
			SELECT id, CASE WHEN title = '' THEN url ELSE title END, reminder_at, 'item'
			FROM items WHERE user_id = ? AND reminder_at IS NOT NULL AND reminder_at <= ?
		)
		ORDER BY at, kind, id
		LIMIT ?`,
		userID, dbTime(until), userID, dbTime(until), limit)
	if err != nil {
		return nil, fmt.Errorf("query upcoming reminders: %w", err)
	}
	defer rows.Close()

	var out []reminders.DigestEntry
	for rows.Next() {
		var (
			e    reminders.DigestEntry
			at   string
			kind string
		)
		if err := rows.Scan(&e.ID, &e.Title, &at, &kind); err != nil {
			return nil, err
		}
		// The union column may or may not keep its declared type; read it as text.
		if e.At, err = parseDBTime(at); err != nil {
			return nil, err
		}
		if kind == "item" {
			e.Title = "Read: " + e.Title
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func parseDBTime(s string) (time.Time, error) {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

func nullInt64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
