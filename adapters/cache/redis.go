// Package cache provides the read-through/write-through cache
// implementations in front of the SQLite stores. The cache is an
// optimization only: services fall back to the store on any error.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CoachCoe/polkadot-sso-sub002/ports"
)

// RedisCache is a Redis implementation of ports.Cache. All keys share
// one service-level prefix so multiple deployments can share a Redis
// instance.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache creates a cache on an existing Redis client.
func NewRedisCache(client *redis.Client) ports.Cache {
	return &RedisCache{
		client: client,
		prefix: "sso:",
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Result()
	if err == redis.Nil {
		return "", ports.ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("cache get: %w", err)
	}
	return val, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}
