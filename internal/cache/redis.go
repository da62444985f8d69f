// Package cache wraps a go-redis client with the small set of helpers the
// messaging core needs: JSON values, unread-counter caching for the
// notification hub, and per-platform rate-limit backoff hints for the
// dispatcher. Every consumer treats the cache as optional: a nil *Redis
// disables caching without any behavioral change.
package cache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis wraps a go-redis client with logging helpers.
type Redis struct {
	client *redis.Client
	logger zerolog.Logger
}

// Config defines connection parameters for Redis.
type Config struct {
	Addr     string
	Password string
	DB       int
	UseTLS   bool
}

// New returns a Redis client based on provided configuration.
func New(cfg Config, logger zerolog.Logger) *Redis {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return &Redis{
		client: redis.NewClient(opts),
		logger: logger.With().Str("component", "redis").Logger(),
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// SetJSON caches a value as JSON with the provided TTL.
func (r *Redis) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

// GetJSON retrieves a JSON value and unmarshals into dest. The boolean
// reports whether the key existed.
func (r *Redis) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	res, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(res), dest); err != nil {
		return false, fmt.Errorf("json unmarshal: %w", err)
	}
	return true, nil
}

// SetUnreadCount caches a user's unread notification count.
func (r *Redis) SetUnreadCount(ctx context.Context, userID string, count int64, ttl time.Duration) error {
	return r.client.Set(ctx, unreadKey(userID), count, ttl).Err()
}

// UnreadCount returns the cached unread count for userID. The boolean
// reports whether a cached value existed.
func (r *Redis) UnreadCount(ctx context.Context, userID string) (int64, bool, error) {
	n, err := r.client.Get(ctx, unreadKey(userID)).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("redis get %s: %w", unreadKey(userID), err)
	}
	return n, true, nil
}

// InvalidateUnreadCount drops the cached unread count for userID.
func (r *Redis) InvalidateUnreadCount(ctx context.Context, userID string) error {
	return r.client.Del(ctx, unreadKey(userID)).Err()
}

// SetBackoff records a rate-limit backoff hint for a platform. The key
// expires with the hint, so a zero remaining TTL means "clear to send".
func (r *Redis) SetBackoff(ctx context.Context, platform string, d time.Duration) error {
	return r.client.Set(ctx, backoffKey(platform), d.Milliseconds(), d).Err()
}

// Backoff returns the remaining backoff window for a platform, zero when
// the platform is not rate limited.
func (r *Redis) Backoff(ctx context.Context, platform string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, backoffKey(platform)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ttl %s: %w", backoffKey(platform), err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Close releases Redis resources.
func (r *Redis) Close() error {
	return r.client.Close()
}

func unreadKey(userID string) string    { return "notify:unread:" + userID }
func backoffKey(platform string) string { return "dispatch:backoff:" + platform }
