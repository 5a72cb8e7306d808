package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/oriys/umbra/internal/metrics"
)

// cacheEntry holds a cached value with an expiration time.
type cacheEntry struct {
	info      *Info
	expiresAt time.Time
}

func (e *cacheEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// DefaultLookupTTL bounds how long a cached tenant record can lag behind the
// store, e.g. after a tenant is disabled.
const DefaultLookupTTL = 30 * time.Second

// CachedLookup wraps a Lookup with an in-process TTL cache. Lookup results
// for the same identifier are hot-path in request middleware; a short TTL
// keeps a disabled tenant's window of residual access bounded.
type CachedLookup struct {
	inner   Lookup
	ttl     time.Duration
	entries sync.Map // identifier → *cacheEntry
	now     func() time.Time
}

// NewCachedLookup wraps inner with a TTL cache. Pass ttl <= 0 for the default.
func NewCachedLookup(inner Lookup, ttl time.Duration) *CachedLookup {
	if ttl <= 0 {
		ttl = DefaultLookupTTL
	}
	return &CachedLookup{inner: inner, ttl: ttl, now: time.Now}
}

func (c *CachedLookup) Lookup(ctx context.Context, identifier string) (*Info, error) {
	if v, ok := c.entries.Load(identifier); ok {
		entry := v.(*cacheEntry)
		if !entry.expired(c.now()) {
			metrics.RecordLookupCache(true)
			return entry.info, nil
		}
		c.entries.Delete(identifier)
	}

	metrics.RecordLookupCache(false)
	info, err := c.inner.Lookup(ctx, identifier)
	if err != nil {
		return nil, err
	}
	c.entries.Store(identifier, &cacheEntry{info: info, expiresAt: c.now().Add(c.ttl)})
	return info, nil
}

// Invalidate drops the cached record for one identifier, e.g. after an admin
// disables the tenant.
func (c *CachedLookup) Invalidate(identifier string) {
	c.entries.Delete(identifier)
}
