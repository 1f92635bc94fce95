package tiers

import (
	"context"
	"sync"
	"time"

	"earnings-service/internal/models"
)

// Source loads the tier table, typically from the commission_tiers table
type Source interface {
	ListTiers(ctx context.Context) ([]models.CommissionTier, error)
}

// Cache keeps a resolver built from Source and rebuilds it once ttl has
// elapsed, so tier rows can change without a redeploy.
type Cache struct {
	source Source
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	resolver *Resolver
	loadedAt time.Time
}

// NewCache creates a tier cache. A non-positive ttl reloads on every call.
func NewCache(source Source, ttl time.Duration) *Cache {
	return &Cache{source: source, ttl: ttl, now: time.Now}
}

// Resolver returns a resolver over the current tier table
func (c *Cache) Resolver(ctx context.Context) (*Resolver, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolver != nil && c.ttl > 0 && c.now().Sub(c.loadedAt) < c.ttl {
		return c.resolver, nil
	}

	table, err := c.source.ListTiers(ctx)
	if err != nil {
		return nil, err
	}
	resolver, err := NewResolver(table)
	if err != nil {
		return nil, err
	}
	c.resolver = resolver
	c.loadedAt = c.now()
	return resolver, nil
}

// ResolveTier resolves against the cached table
func (c *Cache) ResolveTier(ctx context.Context, cumulativeSales int64) (models.CommissionTier, error) {
	r, err := c.Resolver(ctx)
	if err != nil {
		return models.CommissionTier{}, err
	}
	return r.ResolveTier(cumulativeSales)
}

// Invalidate forces the next call to reload
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.resolver = nil
	c.mu.Unlock()
}
