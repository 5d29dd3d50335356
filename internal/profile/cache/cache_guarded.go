package cache

import (
	"context"
	"errors"
	"log/slog"

	"profilehub/internal/profile/models"
	"profilehub/pkg/platform/circuit"
)

// ErrUnavailable is returned while the backend circuit is open.
var ErrUnavailable = errors.New("cache backend unavailable")

// GuardedCache short-circuits reads and writes to a failing backend. While
// the breaker is open Get reports a miss and Put is skipped, so callers fall
// through to the store without paying the backend timeout on every request.
// Evict is always attempted.
type GuardedCache struct {
	next    Cache
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewGuardedCache(next Cache, breaker *circuit.Breaker, logger *slog.Logger) *GuardedCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &GuardedCache{next: next, breaker: breaker, logger: logger}
}

func (c *GuardedCache) Name() string {
	return c.next.Name()
}

func (c *GuardedCache) Get(ctx context.Context, key string) (*models.Profile, error) {
	if !c.breaker.Allow() {
		return nil, ErrMiss
	}
	profile, err := c.next.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrMiss) {
		c.failure(ctx, err)
		return nil, err
	}
	c.success(ctx)
	return profile, err
}

func (c *GuardedCache) Put(ctx context.Context, key string, profile *models.Profile) error {
	if !c.breaker.Allow() {
		return nil
	}
	if err := c.next.Put(ctx, key, profile); err != nil {
		c.failure(ctx, err)
		return err
	}
	c.success(ctx)
	return nil
}

func (c *GuardedCache) Evict(ctx context.Context, key string) error {
	if err := c.next.Evict(ctx, key); err != nil {
		c.failure(ctx, err)
		if c.breaker.IsOpen() {
			return errors.Join(ErrUnavailable, err)
		}
		return err
	}
	c.success(ctx)
	return nil
}

func (c *GuardedCache) failure(ctx context.Context, err error) {
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "cache circuit opened", "cache", c.Name(), "error", err)
	}
}

func (c *GuardedCache) success(ctx context.Context) {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "cache circuit closed", "cache", c.Name())
	}
}
