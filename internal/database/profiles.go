package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"recall/shared/reminders"
)

// GetProfile returns the user's notification profile.
// If no profile exists, returns default settings.
func (db *DB) GetProfile(ctx context.Context, userID int64) (*reminders.NotificationProfile, error) {
	var (
		p        reminders.NotificationProfile
		lastSent sql.NullTime
	)
	err := db.QueryRowContext(ctx, `
		SELECT user_id, email, email_enabled, push_enabled, last_digest_sent_at
		FROM notification_profiles
		WHERE user_id = ?`, userID).
		Scan(&p.UserID, &p.Email, &p.EmailEnabled, &p.PushEnabled, &lastSent)
	if err == sql.ErrNoRows {
		return reminders.DefaultProfile(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %d: %w", userID, err)
	}
	p.LastDigestSentAt = nullTimePtr(lastSent)
	return &p, nil
}

// UpsertProfile creates or updates the user's channel preferences. The digest
// marker is left untouched.
func (db *DB) UpsertProfile(ctx context.Context, p reminders.NotificationProfile) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO notification_profiles (user_id, email, email_enabled, push_enabled, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			email = excluded.email,
			email_enabled = excluded.email_enabled,
			push_enabled = excluded.push_enabled,
			updated_at = excluded.updated_at`,
		p.UserID, p.Email, p.EmailEnabled, p.PushEnabled, dbTime(time.Now()))
	if err != nil {
		return fmt.Errorf("upsert profile %d: %w", p.UserID, err)
	}
	return nil
}

// ListDigestRecipients returns every profile with the email channel on.
func (db *DB) ListDigestRecipients(ctx context.Context) ([]reminders.NotificationProfile, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT user_id, email, email_enabled, push_enabled, last_digest_sent_at
		FROM notification_profiles
		WHERE email_enabled = 1
		ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query digest recipients: %w", err)
	}
	defer rows.Close()

	var out []reminders.NotificationProfile
	for rows.Next() {
		var (
			p        reminders.NotificationProfile
			lastSent sql.NullTime
		)
		if err := rows.Scan(&p.UserID, &p.Email, &p.EmailEnabled, &p.PushEnabled, &lastSent); err != nil {
			return nil, err
		}
		p.LastDigestSentAt = nullTimePtr(lastSent)
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkDigestSent records the instant of a successful digest send.
func (db *DB) MarkDigestSent(ctx context.Context, userID int64, at time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE notification_profiles SET last_digest_sent_at = ?, updated_at = ?
		WHERE user_id = ?`, dbTime(at), dbTime(time.Now()), userID)
	if err != nil {
		return fmt.Errorf("mark digest sent for %d: %w", userID, err)
	}
	return expectOne(res, reminders.ErrNotFound)
}
