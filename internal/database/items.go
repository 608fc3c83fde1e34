package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"recall/shared/reminders"
)

// CreateItem inserts a saved link.
func (db *DB) CreateItem(ctx context.Context, it *reminders.Item) error {
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO items (user_id, url, title, read, reminder_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		it.UserID, it.URL, it.Title, it.Read, dbTimePtr(it.ReminderAt), dbTime(it.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	it.ID, err = res.LastInsertId()
	return err
}

// GetItem returns the user's item.
func (db *DB) GetItem(ctx context.Context, userID, id int64) (*reminders.Item, error) {
	var (
		it         reminders.Item
		reminderAt sql.NullTime
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, url, title, read, reminder_at, created_at
		FROM items WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&it.ID, &it.UserID, &it.URL, &it.Title, &it.Read, &reminderAt, &it.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, reminders.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	it.ReminderAt = nullTimePtr(reminderAt)
	return &it, nil
}

// DueItems returns items whose embedded reminder is due at now.
func (db *DB) DueItems(ctx context.Context, now time.Time) ([]reminders.Item, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, url, title, read, reminder_at, created_at
		FROM items
		WHERE reminder_at IS NOT NULL AND reminder_at <= ?
		ORDER BY reminder_at, id`, dbTime(now))
	if err != nil {
		return nil, fmt.Errorf("query due items: %w", err)
	}
	defer rows.Close()

	var out []reminders.Item
	for rows.Next() {
		var (
			it         reminders.Item
			reminderAt sql.NullTime
		)
		if err := rows.Scan(&it.ID, &it.UserID, &it.URL, &it.Title, &it.Read, &reminderAt, &it.CreatedAt); err != nil {
			return nil, err
		}
		it.ReminderAt = nullTimePtr(reminderAt)
		out = append(out, it)
	}
	return out, rows.Err()
}

// SetItemReminder sets reminder_at, or clears it when at is nil.
func (db *DB) SetItemReminder(ctx context.Context, userID, id int64, at *time.Time) error {
	res, err := db.ExecContext(ctx, `UPDATE items SET reminder_at = ? WHERE id = ? AND user_id = ?`,
		dbTimePtr(at), id, userID)
	if err != nil {
		return fmt.Errorf("set item %d reminder: %w", id, err)
	}
	return expectOne(res, reminders.ErrNotFound)
}

// MarkItemDone marks the item read and clears its reminder.
func (db *DB) MarkItemDone(ctx context.Context, userID, id int64) error {
	res, err := db.ExecContext(ctx, `UPDATE items SET read = 1, reminder_at = NULL WHERE id = ? AND user_id = ?`,
		id, userID)
	if err != nil {
		return fmt.Errorf("mark item %d done: %w", id, err)
	}
	return expectOne(res, reminders.ErrNotFound)
}

// DeleteItem removes the item; reminders attached to it cascade.
func (db *DB) DeleteItem(ctx context.Context, userID, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM items WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete item %d: %w", id, err)
	}
	return expectOne(res, reminders.ErrNotFound)
}

// RecentItems lists unread items saved at or after since, newest first.
func (db *DB) RecentItems(ctx context.Context, userID int64, since time.Time, limit int) ([]reminders.DigestEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, CASE WHEN title = '' THEN url ELSE title END, url, created_at
		FROM items
		WHERE user_id = ? AND created_at >= ? AND read = 0
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, userID, dbTime(since), limit)
	if err != nil {
		return nil, fmt.Errorf("query recent items: %w", err)
	}
	defer rows.Close()

	var out []reminders.DigestEntry
	for rows.Next() {
		var e reminders.DigestEntry
		if err := rows.Scan(&e.ID, &e.Title, &e.Link, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
