package database

import (
	"context"
	"fmt"
	"time"

	"recall/shared/reminders"
)

// SavePushSubscription registers a browser endpoint for the user. Re-registering
// an endpoint refreshes its keys.
func (db *DB) SavePushSubscription(ctx context.Context, sub *reminders.PushSubscription) error {
	err := db.QueryRowContext(ctx, `
		INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
			user_id = excluded.user_id,
			p256dh = excluded.p256dh,
			auth = excluded.auth
		RETURNING id`,
		sub.UserID, sub.Endpoint, sub.P256dh, sub.Auth, dbTime(time.Now())).Scan(&sub.ID)
	if err != nil {
		return fmt.Errorf("save push subscription: %w", err)
	}
	return nil
}

// ListPushSubscriptions returns all endpoints registered by the user.
func (db *DB) ListPushSubscriptions(ctx context.Context, userID int64) ([]reminders.PushSubscription, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, endpoint, p256dh, auth
		FROM push_subscriptions
		WHERE user_id = ?
		ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query push subscriptions: %w", err)
	}
	defer rows.Close()

	var out []reminders.PushSubscription
	for rows.Next() {
		var s reminders.PushSubscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.Endpoint, &s.P256dh, &s.Auth); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
