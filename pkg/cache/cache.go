// Package cache provides a small TTL cache for read models fetched from the
// external services. Expiry uses an injected clock, invalidation is explicit
// and concurrent loads of the same key share one call.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-rentreport/pkg/clock"
)

// DefaultTTL applies when no TTL is configured.
const DefaultTTL = 5 * time.Minute

// Invalidator drops cached entries. Submissions use it to make later reads
// reflect their writes.
type Invalidator interface {
	Invalidate(key string)
	InvalidatePrefix(prefix string)
}

// Loader fetches the value for a key on a miss.
type Loader[V any] func(ctx context.Context) (V, error)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Cache is a TTL cache keyed by string.
type Cache[V any] struct {
	name   string
	ttl    time.Duration
	clock  clock.Clock
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]entry[V]
	group   singleflight.Group
	// generation bumps on invalidation so loads started before it do not
	// store stale values.
	generation map[string]uint64
}

// Option customises a Cache.
type Option func(*options)

type options struct {
	ttl    time.Duration
	clock  clock.Clock
	logger *zap.Logger
}

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock sets the time source used for expiry.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates a cache. The name appears in logs.
func New[V any](name string, opts ...Option) *Cache[V] {
	cfg := options{ttl: DefaultTTL, clock: clock.System(), logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Cache[V]{
		name:       name,
		ttl:        cfg.ttl,
		clock:      cfg.clock,
		logger:     cfg.logger.With(zap.String("cache", name)),
		entries:    make(map[string]entry[V]),
		generation: make(map[string]uint64),
	}
}

// Get returns a fresh value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(key)
}

func (c *Cache[V]) lookup(key string) (V, bool) {
	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.clock.Now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, storedAt: c.clock.Now()}
}

// GetOrLoad returns the cached value or calls load once for all concurrent
// callers of the same key. Load errors are returned and not cached.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load Loader[V]) (V, error) {
	c.mu.Lock()
	if value, ok := c.lookup(key); ok {
		c.mu.Unlock()
		return value, nil
	}
	gen, tracked := c.generation[key]
	if !tracked {
		c.generation[key] = 0
	}
	c.mu.Unlock()

	if load == nil {
		var zero V
		return zero, errors.New("cache: loader is required")
	}

	result, err, shared := c.group.Do(key, func() (any, error) {
		value, err := load(ctx)
		if err != nil {
			return value, err
		}
		c.mu.Lock()
		if c.generation[key] == gen {
			c.entries[key] = entry[V]{value: value, storedAt: c.clock.Now()}
		}
		c.mu.Unlock()
		return value, nil
	})
	if err != nil {
		c.logger.Debug("cache load failed", zap.String("key", key), zap.Error(err))
		var zero V
		return zero, fmt.Errorf("cache: %s %q: %w", c.name, key, err)
	}
	if shared {
		c.logger.Debug("cache load shared", zap.String("key", key))
	}
	value, _ := result.(V)
	return value, nil
}

// Invalidate drops key.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.generation[key]++
	c.group.Forget(key)
}

// InvalidatePrefix drops every key starting with prefix.
func (c *Cache[V]) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	for key := range c.generation {
		if strings.HasPrefix(key, prefix) {
			c.generation[key]++
			c.group.Forget(key)
		}
	}
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		c.generation[key]++
		c.group.Forget(key)
	}
	c.entries = make(map[string]entry[V])
}

// Len reports the number of stored entries, fresh or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Invalidators fans invalidation out to several caches.
type Invalidators []Invalidator

// Invalidate drops key from every cache.
func (list Invalidators) Invalidate(key string) {
	for _, inv := range list {
		if inv != nil {
			inv.Invalidate(key)
		}
	}
}

// InvalidatePrefix drops prefix from every cache.
func (list Invalidators) InvalidatePrefix(prefix string) {
	for _, inv := range list {
		if inv != nil {
			inv.InvalidatePrefix(prefix)
		}
	}
}
