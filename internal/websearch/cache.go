package websearch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/corvuslabs/spyglass/internal/metrics"
)

// CachedConfig configures the query cache decorator.
type CachedConfig struct {
	Logger   *slog.Logger
	Provider Provider
	TTL      time.Duration
}

func (c *CachedConfig) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Provider == nil {
		return fmt.Errorf("provider is required")
	}
	if c.TTL <= 0 {
		return fmt.Errorf("ttl must be > 0")
	}
	return nil
}

// cached memoizes recent query results so repeated sub-queries within one
// invocation, or across close invocations, skip the network.
type cached struct {
	log   *slog.Logger
	cfg   CachedConfig
	inner Provider

	cache   *ttlcache.Cache[string, []Result]
	cacheMu sync.RWMutex
}

// NewCached wraps a provider in a TTL query cache.
func NewCached(cfg CachedConfig) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cache := ttlcache.New(
		ttlcache.WithTTL[string, []Result](cfg.TTL),
	)

	return &cached{
		log:   cfg.Logger,
		cfg:   cfg,
		inner: cfg.Provider,
		cache: cache,
	}, nil
}

func (c *cached) Name() string { return c.inner.Name() }

func (c *cached) Search(ctx context.Context, query string) ([]Result, error) {
	if results := c.getCached(query); results != nil {
		metrics.SearchCacheHits.Inc()
		c.log.Debug("websearch: query served from cache", "query", query)
		return results, nil
	}

	results, err := c.inner.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	c.setCached(query, results)
	return results, nil
}

func (c *cached) getCached(query string) []Result {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	item := c.cache.Get(query)
	if item == nil {
		return nil
	}
	return item.Value()
}

func (c *cached) setCached(query string, results []Result) {
	if results == nil {
		// Keep zero-hit queries distinguishable from cache misses.
		results = []Result{}
	}
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache.Set(query, results, c.cfg.TTL)
}
