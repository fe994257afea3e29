// Package proxycache implements component 4.C: a per-endpoint cache of
// short-lived ProxyInfo credentials with expiry-driven refresh, coalescing
// concurrent refreshes for the same endpoint into a single network call
// (spec.md §8 invariant 6).
package proxycache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/colabcli/colab/internal/colabapi"
)

// Refresher performs the network call that mints a fresh ProxyInfo for an
// endpoint. In production this is Client.RefreshConnection; tests supply a
// fake to assert the single-flight contract without a network.
type Refresher interface {
	RefreshConnection(ctx context.Context, endpoint string) (colabapi.ProxyInfo, error)
}

// Cache is safe for concurrent use.
type Cache struct {
	refresher Refresher
	group     singleflight.Group

	mu      sync.RWMutex
	entries map[string]colabapi.ProxyInfo

	// disk, when non-nil, is consulted for a warm entry before the first
	// network refresh for an endpoint (component 4.P).
	disk *DiskCache

	now func() time.Time
}

// New builds a Cache backed by refresher. disk may be nil to disable the
// on-disk warm cache.
func New(refresher Refresher, disk *DiskCache) *Cache {
	return &Cache{
		refresher: refresher,
		entries:   make(map[string]colabapi.ProxyInfo),
		disk:      disk,
		now:       time.Now,
	}
}

// Get returns a valid ProxyInfo for endpoint, refreshing it if the cached
// (or disk-cached) entry is missing or expired. Concurrent callers racing
// on the same endpoint share one in-flight refresh.
func (c *Cache) Get(ctx context.Context, endpoint string) (colabapi.ProxyInfo, error) {
	if cached, ok := c.lookup(endpoint); ok {
		return cached, nil
	}

	v, err, _ := c.group.Do(endpoint, func() (any, error) {
		// Re-check under the singleflight key: another caller may have
		// populated the cache between our lookup and entering Do.
		if cached, ok := c.lookup(endpoint); ok {
			return cached, nil
		}
		info, err := c.refresher.RefreshConnection(ctx, endpoint)
		if err != nil {
			return colabapi.ProxyInfo{}, err
		}
		c.store(endpoint, info)
		return info, nil
	})
	if err != nil {
		return colabapi.ProxyInfo{}, err
	}
	return v.(colabapi.ProxyInfo), nil
}

func (c *Cache) lookup(endpoint string) (colabapi.ProxyInfo, bool) {
	c.mu.RLock()
	info, ok := c.entries[endpoint]
	c.mu.RUnlock()
	if ok && info.Valid(c.now()) {
		return info, true
	}

	if c.disk != nil {
		if info, ok := c.disk.Load(endpoint); ok && info.Valid(c.now()) {
			c.mu.Lock()
			c.entries[endpoint] = info
			c.mu.Unlock()
			return info, true
		}
	}
	return colabapi.ProxyInfo{}, false
}

func (c *Cache) store(endpoint string, info colabapi.ProxyInfo) {
	c.mu.Lock()
	c.entries[endpoint] = info
	c.mu.Unlock()

	if c.disk != nil {
		// Best-effort: a disk cache write failure never fails the caller,
		// it only forfeits the warm-start optimization on next process start.
		_ = c.disk.Store(endpoint, info)
	}
}

// Invalidate drops the in-memory entry for endpoint. The next Get refreshes
// unless the disk cache still holds a valid entry for it.
func (c *Cache) Invalidate(endpoint string) {
	c.mu.Lock()
	delete(c.entries, endpoint)
	c.mu.Unlock()
}
