// Package cache holds the read-through profile cache and the registry used
// by the cache administration endpoints.
package cache

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"profilehub/internal/profile/models"
)

// DefaultName is the registered name of the profile cache.
const DefaultName = "userProfileCache"

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

var (
	lookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "profilehub_cache_lookups_total",
		Help: "Profile cache lookups by cache name and result",
	}, []string{"cache", "result"})
	evictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "profilehub_cache_evictions_total",
		Help: "Profile cache evictions by cache name",
	}, []string{"cache"})
)

// Cache maps a user id to the last profile read from the store.
// Implementations must return independent copies from Get.
type Cache interface {
	Name() string
	Get(ctx context.Context, key string) (*models.Profile, error)
	Put(ctx context.Context, key string, profile *models.Profile) error
	Evict(ctx context.Context, key string) error
}

func recordLookup(name string, err error) {
	switch {
	case err == nil:
		lookups.WithLabelValues(name, "hit").Inc()
	case errors.Is(err, ErrMiss):
		lookups.WithLabelValues(name, "miss").Inc()
	default:
		lookups.WithLabelValues(name, "error").Inc()
	}
}

func recordEviction(name string) {
	evictions.WithLabelValues(name).Inc()
}

// Registry resolves caches by name for administration.
type Registry struct {
	mu     sync.RWMutex
	caches map[string]Cache
}

func NewRegistry(caches ...Cache) *Registry {
	r := &Registry{caches: make(map[string]Cache, len(caches))}
	for _, c := range caches {
		r.Register(c)
	}
	return r
}

func (r *Registry) Register(c Cache) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caches[c.Name()] = c
}

func (r *Registry) Lookup(name string) (Cache, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caches[name]
	return c, ok
}

// Names returns the registered cache names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.caches))
	for name := range r.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
