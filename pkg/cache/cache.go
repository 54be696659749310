package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Options configures a Cache.
type Options struct {
	TTL                  time.Duration
	StaleWhileRevalidate time.Duration
	MaxEntries           int
}

// MetricsHooks are optional callbacks fired on cache events.
type MetricsHooks struct {
	OnHit   func(key string)
	OnMiss  func(key string)
	OnStale func(key string)
	OnStore func(key string)
}

type entry struct {
	value     interface{}
	expiresAt time.Time
	staleAt   time.Time
}

// Cache is an in-process TTL cache with stale-while-revalidate semantics.
// Concurrent loads for the same key are collapsed via singleflight.
type Cache struct {
	mu      sync.RWMutex
	items   map[string]*entry
	order   []string
	opts    Options
	metrics MetricsHooks
	sf      singleflight.Group
}

func New(opts Options, hooks MetricsHooks) *Cache {
	return &Cache{
		items:   make(map[string]*entry),
		order:   make([]string, 0, 64),
		opts:    opts,
		metrics: hooks,
	}
}

// Loader fetches the value for a key on miss.
type Loader func(ctx context.Context, key string) (interface{}, error)

// Get returns the cached value for key, loading it on miss. A stale entry is
// returned immediately while one background refresh runs.
func (c *Cache) Get(ctx context.Context, key string, loader Loader) (interface{}, error) {
	now := time.Now()
	c.mu.RLock()
	if e, ok := c.items[key]; ok {
		if now.Before(e.expiresAt) {
			val := e.value
			c.mu.RUnlock()
			if c.metrics.OnHit != nil {
				c.metrics.OnHit(key)
			}
			return val, nil
		}
		if now.Before(e.staleAt) {
			val := e.value
			c.mu.RUnlock()
			if c.metrics.OnStale != nil {
				c.metrics.OnStale(key)
			}
			go func() {
				_, _, _ = c.sf.Do("refresh:"+key, func() (interface{}, error) {
					if v, err := loader(context.WithoutCancel(ctx), key); err == nil {
						c.Set(key, v)
					}
					return nil, nil
				})
			}()
			return val, nil
		}
		c.mu.RUnlock()
		c.Delete(key)
	} else {
		c.mu.RUnlock()
	}

	if c.metrics.OnMiss != nil {
		c.metrics.OnMiss(key)
	}
	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		val, err := loader(ctx, key)
		if err != nil {
			return nil, err
		}
		c.Set(key, val)
		return val, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Set stores a value under key using the configured TTL.
func (c *Cache) Set(key string, val interface{}) {
	now := time.Now()
	e := &entry{
		value:     val,
		expiresAt: now.Add(c.opts.TTL),
		staleAt:   now.Add(c.opts.TTL).Add(c.opts.StaleWhileRevalidate),
	}
	c.mu.Lock()
	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
	}
	c.items[key] = e
	c.evictIfNeeded()
	c.mu.Unlock()
	if c.metrics.OnStore != nil {
		c.metrics.OnStore(key)
	}
}

// Peek returns a cached value without triggering a load. Stale entries are allowed.
func (c *Cache) Peek(key string) (interface{}, bool) {
	now := time.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[key]
	if !ok || now.After(e.staleAt) {
		return nil, false
	}
	return e.value, true
}

// Delete removes a single key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.removeFromOrder(key)
	c.mu.Unlock()
}

// InvalidatePrefix drops every entry whose key starts with prefix. Callers use
// key schemes like "range:{teamID}:..." so a mutation can invalidate all
// cached windows for one tenant.
func (c *Cache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	kept := c.order[:0]
	for _, k := range c.order {
		if strings.HasPrefix(k, prefix) {
			delete(c.items, k)
			dropped++
			continue
		}
		kept = append(kept, k)
	}
	c.order = kept
	return dropped
}

func (c *Cache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func (c *Cache) evictIfNeeded() {
	if c.opts.MaxEntries <= 0 || len(c.items) <= c.opts.MaxEntries {
		return
	}
	// FIFO eviction
	excess := len(c.items) - c.opts.MaxEntries
	for excess > 0 && len(c.order) > 0 {
		victim := c.order[0]
		c.order = c.order[1:]
		delete(c.items, victim)
		excess--
	}
}
