package reminders

import (
	"context"

	"github.com/rs/zerolog"
)

// UserAggregate is everything due for one user in one pass.
type UserAggregate struct {
	UserID        int64
	Profile       NotificationProfile
	Notifications []DueNotification
}

// Aggregate groups due notifications by user, keeping first-seen user order
// and the input order within each user. A profile that cannot be loaded falls
// back to DefaultProfile.
func Aggregate(ctx context.Context, profiles ProfileStore, due []DueNotification, logger zerolog.Logger) []UserAggregate {
	index := make(map[int64]int)
	var out []UserAggregate

	for _, n := range due {
		i, ok := index[n.UserID]
		if !ok {
			i = len(out)
			index[n.UserID] = i
			out = append(out, UserAggregate{
				UserID:  n.UserID,
				Profile: loadProfile(ctx, profiles, n.UserID, logger),
			})
		}
		out[i].Notifications = append(out[i].Notifications, n)
	}

	return out
}

func loadProfile(ctx context.Context, profiles ProfileStore, userID int64, logger zerolog.Logger) NotificationProfile {
	p, err := profiles.GetProfile(ctx, userID)
	if err != nil || p == nil {
		logger.Warn().Err(err).Int64("user_id", userID).Msg("profile lookup failed, using defaults")
		return *DefaultProfile(userID)
	}
	return *p
}
