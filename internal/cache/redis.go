package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Claim sets key only if absent. The first caller wins until ttl expires.
func (c *RedisCache) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, claimKey(key), "claimed", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim %s: %w", key, err)
	}
	return ok, nil
}

// Hit counts one request against a fixed one-minute window and returns the
// running count for that window.
func (c *RedisCache) Hit(ctx context.Context, subject string, now time.Time) (int64, error) {
	key := rateLimitKey(subject, now)

	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		c.client.Expire(ctx, key, time.Minute)
	}
	return count, nil
}

func claimKey(key string) string {
	return "claim:" + key
}

func rateLimitKey(subject string, now time.Time) string {
	return fmt.Sprintf("rate_limit:%s:%s", subject, now.UTC().Format("2006-01-02-15-04"))
}
