package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"profilehub/internal/profile/models"
)

type cachedProfile struct {
	payload  []byte
	storedAt time.Time
}

// InMemoryCache keeps encoded profiles in process memory with TTL expiration.
// A zero TTL keeps entries until evicted.
type InMemoryCache struct {
	name    string
	ttl     time.Duration
	clock   func() time.Time
	mu      sync.RWMutex
	entries map[string]cachedProfile
}

// InMemoryOption configures an InMemoryCache.
type InMemoryOption func(*InMemoryCache)

// WithClock overrides the time source used for expiry.
func WithClock(clock func() time.Time) InMemoryOption {
	return func(c *InMemoryCache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func NewInMemoryCache(name string, ttl time.Duration, opts ...InMemoryOption) *InMemoryCache {
	c := &InMemoryCache{
		name:    name,
		ttl:     ttl,
		clock:   time.Now,
		entries: make(map[string]cachedProfile),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *InMemoryCache) Name() string {
	return c.name
}

func (c *InMemoryCache) Get(_ context.Context, key string) (*models.Profile, error) {
	profile, err := c.get(key)
	recordLookup(c.name, err)
	return profile, err
}

func (c *InMemoryCache) get(key string) (*models.Profile, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrMiss
	}
	if c.ttl > 0 && c.clock().Sub(entry.storedAt) >= c.ttl {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, ErrMiss
	}
	var profile models.Profile
	if err := json.Unmarshal(entry.payload, &profile); err != nil {
		return nil, fmt.Errorf("decode cached profile: %w", err)
	}
	return &profile, nil
}

// Put stores a profile. A nil profile is a no-op.
func (c *InMemoryCache) Put(_ context.Context, key string, profile *models.Profile) error {
	if profile == nil {
		return nil
	}
	payload, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode cached profile: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cachedProfile{payload: payload, storedAt: c.clock()}
	return nil
}

func (c *InMemoryCache) Evict(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	recordEviction(c.name)
	return nil
}
