package database

import (
	"context"
	"fmt"
	"time"

	"recall/shared/reminders"
)

// CreateUser inserts a user row and returns its id.
func (db *DB) CreateUser(ctx context.Context, email string) (int64, error) {
	res, err := db.ExecContext(ctx, `INSERT INTO users (email, created_at) VALUES (?, ?)`,
		email, dbTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return res.LastInsertId()
}

// CreateTask inserts a task and returns its id.
func (db *DB) CreateTask(ctx context.Context, userID int64, title string, dueAt *time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `INSERT INTO tasks (user_id, title, due_at, created_at) VALUES (?, ?, ?, ?)`,
		userID, title, dbTimePtr(dueAt), dbTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return res.LastInsertId()
}

// DeleteTask removes a task; its reminders cascade.
func (db *DB) DeleteTask(ctx context.Context, userID, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return expectOne(res, reminders.ErrNotFound)
}

// CreateMeeting inserts a meeting and returns its id.
func (db *DB) CreateMeeting(ctx context.Context, userID int64, title string, startAt time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `INSERT INTO meetings (user_id, title, start_at, created_at) VALUES (?, ?, ?, ?)`,
		userID, title, dbTime(startAt), dbTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("insert meeting: %w", err)
	}
	return res.LastInsertId()
}

// UpcomingMeetings lists meetings starting within [from, to], earliest first.
func (db *DB) UpcomingMeetings(ctx context.Context, userID int64, from, to time.Time, limit int) ([]reminders.DigestEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, title, start_at
		FROM meetings
		WHERE user_id = ? AND start_at >= ? AND start_at <= ?
		ORDER BY start_at, id
		LIMIT ?`, userID, dbTime(from), dbTime(to), limit)
	if err != nil {
		return nil, fmt.Errorf("query upcoming meetings: %w", err)
	}
	defer rows.Close()

	var out []reminders.DigestEntry
	for rows.Next() {
		var e reminders.DigestEntry
		if err := rows.Scan(&e.ID, &e.Title, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
