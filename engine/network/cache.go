package network

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/WessleyAI/wessley-routing/engine/domain"
	"github.com/WessleyAI/wessley-routing/pkg/resilience"
)

// CacheOptions configures a Cache.
type CacheOptions struct {
	TTL        time.Duration
	MaxEntries int
	// Precision is the number of decimal places bbox corners are rounded to
	// when forming keys.
	Precision int
	Retry     resilience.RetryOpts
	// FetchTimeout bounds a shared fetch, including retries. It runs apart
	// from any single caller's cancellation.
	FetchTimeout time.Duration
}

// DefaultCacheOptions returns the defaults used by the routing API.
func DefaultCacheOptions() CacheOptions {
	return CacheOptions{
		TTL:          30 * time.Minute,
		MaxEntries:   64,
		Precision:    3,
		Retry:        resilience.DefaultRetry,
		FetchTimeout: 30 * time.Second,
	}
}

type cacheEntry struct {
	net      *Network
	loadedAt time.Time
	usedAt   time.Time
}

// Cache memoizes provider results per bounding box. Cached networks are
// immutable, so entries can be shared by concurrent requests without
// locking beyond the map itself.
type Cache struct {
	provider Provider
	opts     CacheOptions
	logger   *slog.Logger

	mu      sync.Mutex
	entries map[string]*cacheEntry
	group   singleflight.Group
	now     func() time.Time
}

// NewCache wraps provider with a bbox-keyed cache.
func NewCache(provider Provider, opts CacheOptions, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultCacheOptions().MaxEntries
	}
	if opts.Precision <= 0 {
		opts.Precision = DefaultCacheOptions().Precision
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultCacheOptions().FetchTimeout
	}
	return &Cache{
		provider: provider,
		opts:     opts,
		logger:   logger,
		entries:  make(map[string]*cacheEntry),
		now:      time.Now,
	}
}

// Key returns the cache key for bbox.
func (c *Cache) Key(bbox domain.BoundingBox) string {
	scale := math.Pow(10, float64(c.opts.Precision))
	r := func(v float64) float64 { return math.Round(v*scale) / scale }
	return fmt.Sprintf("%.*f,%.*f,%.*f,%.*f",
		c.opts.Precision, r(bbox.MinLat), c.opts.Precision, r(bbox.MinLon),
		c.opts.Precision, r(bbox.MaxLat), c.opts.Precision, r(bbox.MaxLon))
}

// Get returns the network for bbox, fetching it on a miss. Concurrent misses
// for the same key share one fetch; a caller that gives up does not cancel
// it for the others.
func (c *Cache) Get(ctx context.Context, bbox domain.BoundingBox) (*Network, error) {
	key := c.Key(bbox)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && !c.expired(e) {
		e.usedAt = c.now()
		c.mu.Unlock()
		return e.net, nil
	}
	c.mu.Unlock()

	ch := c.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.FetchTimeout)
		defer cancel()
		net, err := resilience.Retry(fetchCtx, c.opts.Retry, func(ctx context.Context) (*Network, error) {
			return c.provider.Fetch(ctx, bbox)
		})
		if err != nil {
			return nil, err
		}
		c.put(key, net)
		c.logger.Info("network cached", "key", key, "nodes", net.NumNodes(), "edges", net.NumEdges())
		return net, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("network: fetch %s: %w", key, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("network: fetch %s: %w", key, res.Err)
		}
		return res.Val.(*Network), nil
	}
}

func (c *Cache) expired(e *cacheEntry) bool {
	return c.opts.TTL > 0 && c.now().Sub(e.loadedAt) > c.opts.TTL
}

func (c *Cache) put(key string, net *Network) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.entries[key] = &cacheEntry{net: net, loadedAt: now, usedAt: now}
	c.evictLocked()
}

// evictLocked drops expired entries, then the least recently used until
// the size bound holds. Must hold mu.
func (c *Cache) evictLocked() int {
	removed := 0
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
			removed++
		}
	}
	if len(c.entries) <= c.opts.MaxEntries {
		return removed
	}
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].usedAt.Before(c.entries[keys[j]].usedAt)
	})
	for _, k := range keys[:len(keys)-c.opts.MaxEntries] {
		delete(c.entries, k)
		removed++
	}
	return removed
}

// Evict removes expired entries and returns how many were dropped.
func (c *Cache) Evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictLocked()
}

// Len returns the number of cached networks.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
