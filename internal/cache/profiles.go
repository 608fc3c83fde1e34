package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"recall/shared/reminders"
)

// ProfileCache is a read-through Redis cache in front of a ProfileStore.
// Redis failures fall through to the store; they never fail a lookup.
type ProfileCache struct {
	store  reminders.ProfileStore
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewProfileCache wraps store. A nil client or non-positive ttl disables caching.
func NewProfileCache(store reminders.ProfileStore, client *redis.Client, ttl time.Duration, logger zerolog.Logger) *ProfileCache {
	return &ProfileCache{
		store:  store,
		redis:  client,
		ttl:    ttl,
		logger: logger.With().Str("component", "profile-cache").Logger(),
	}
}

func profileKey(userID int64) string {
	return fmt.Sprintf("notify:profile:%d", userID)
}

// GetProfile returns the cached profile or loads and caches it.
func (c *ProfileCache) GetProfile(ctx context.Context, userID int64) (*reminders.NotificationProfile, error) {
	var p reminders.NotificationProfile
	if c.readCache(ctx, profileKey(userID), &p) {
		return &p, nil
	}

	loaded, err := c.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.writeCache(ctx, profileKey(userID), loaded)
	return loaded, nil
}

// ListDigestRecipients always reads the store: the digest needs fresh markers.
func (c *ProfileCache) ListDigestRecipients(ctx context.Context) ([]reminders.NotificationProfile, error) {
	return c.store.ListDigestRecipients(ctx)
}

// MarkDigestSent updates the store and drops the cached profile.
func (c *ProfileCache) MarkDigestSent(ctx context.Context, userID int64, at time.Time) error {
	if err := c.store.MarkDigestSent(ctx, userID, at); err != nil {
		return err
	}
	c.Invalidate(ctx, userID)
	return nil
}

// Invalidate drops the cached profile, e.g. after a preference change.
func (c *ProfileCache) Invalidate(ctx context.Context, userID int64) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, profileKey(userID)).Err(); err != nil {
		c.logger.Warn().Err(err).Int64("user_id", userID).Msg("failed to invalidate cached profile")
	}
}

// Ping checks the Redis connection.
func (c *ProfileCache) Ping(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Ping(ctx).Err()
}

func (c *ProfileCache) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.ttl <= 0 {
		return false
	}

	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug().Err(err).Str("key", key).Msg("cache read failed")
		}
		return false
	}

	if err := json.Unmarshal([]byte(val), out); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("cache entry undecodable")
		return false
	}
	return true
}

func (c *ProfileCache) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.ttl <= 0 {
		return
	}

	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("cache write failed")
	}
}
