package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/automatacontrols/bms-core/internal/equipment"
)

// DefaultEquipmentListTTL is how long a site's equipment list is cached
// before the next tick refetches it from the config store.
const DefaultEquipmentListTTL = 5 * time.Minute

// DefaultCachedSites bounds how many sites' equipment lists the cache
// holds at once; a deployment with more sites than this evicts the
// least-recently-used and refetches it on the next tick, same as any LRU.
const DefaultCachedSites = 256

type equipmentListEntry struct {
	list      []equipment.Config
	fetchedAt time.Time
}

// CachedConfigProvider decorates a ConfigProvider with an LRU+TTL cache, so
// a deployment with many sites doesn't hit the config store once per site
// per tick. One instance is constructed by the orchestrator and shared by
// every site's Scheduler — simpler than the teacher's two-tier
// (LRU-then-Redis) template cache since an equipment list has nowhere
// else worth caching it between ticks.
type CachedConfigProvider struct {
	inner ConfigProvider
	ttl   time.Duration

	mu    sync.Mutex
	cache *lru.Cache[string, *equipmentListEntry]
}

// NewCachedConfigProvider wraps inner with an LRU cache of up to maxSites
// entries (DefaultCachedSites if maxSites <= 0), each refreshed after ttl
// (DefaultEquipmentListTTL if ttl <= 0).
func NewCachedConfigProvider(inner ConfigProvider, maxSites int, ttl time.Duration) (*CachedConfigProvider, error) {
	if maxSites <= 0 {
		maxSites = DefaultCachedSites
	}
	if ttl <= 0 {
		ttl = DefaultEquipmentListTTL
	}

	cache, err := lru.New[string, *equipmentListEntry](maxSites)
	if err != nil {
		return nil, fmt.Errorf("create equipment list cache: %w", err)
	}

	return &CachedConfigProvider{inner: inner, ttl: ttl, cache: cache}, nil
}

// ListEquipment returns the cached list for siteID if it was fetched less
// than ttl ago, otherwise refetches and repopulates the cache.
func (c *CachedConfigProvider) ListEquipment(ctx context.Context, siteID string) ([]equipment.Config, error) {
	c.mu.Lock()
	entry, ok := c.cache.Get(siteID)
	c.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < c.ttl {
		return entry.list, nil
	}

	list, err := c.inner.ListEquipment(ctx, siteID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache.Add(siteID, &equipmentListEntry{list: list, fetchedAt: time.Now()})
	c.mu.Unlock()
	return list, nil
}

// Invalidate drops a site's cached list, forcing the next ListEquipment
// call to refetch immediately — used by operator tooling after a known
// config change rather than waiting out the TTL.
func (c *CachedConfigProvider) Invalidate(siteID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(siteID)
}
