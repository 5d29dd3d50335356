package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"profilehub/internal/profile/models"
)

const keyPrefix = "profilehub:cache:"

// RedisCache stores encoded profiles in Redis so every instance shares one
// view. Entries expire after the configured TTL.
type RedisCache struct {
	client redis.UniversalClient
	name   string
	ttl    time.Duration
}

func NewRedisCache(client redis.UniversalClient, name string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, name: name, ttl: ttl}
}

func (c *RedisCache) Name() string {
	return c.name
}

func (c *RedisCache) key(key string) string {
	return keyPrefix + c.name + ":" + key
}

func (c *RedisCache) Get(ctx context.Context, key string) (*models.Profile, error) {
	profile, err := c.get(ctx, key)
	recordLookup(c.name, err)
	return profile, err
}

func (c *RedisCache) get(ctx context.Context, key string) (*models.Profile, error) {
	payload, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var profile models.Profile
	if err := json.Unmarshal(payload, &profile); err != nil {
		return nil, fmt.Errorf("decode cached profile: %w", err)
	}
	return &profile, nil
}

// Put stores a profile with SET EX. A nil profile is a no-op.
func (c *RedisCache) Put(ctx context.Context, key string, profile *models.Profile) error {
	if profile == nil {
		return nil
	}
	payload, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode cached profile: %w", err)
	}
	if err := c.client.Set(ctx, c.key(key), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Evict(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	recordEviction(c.name)
	return nil
}
