package cache

import (
	"context"
	"sync"
	"time"

	market "github.com/horizonpay/pricing-service/internal/domain/entity/market"
)

// MemoryCache is the single-process snapshot cache used in development and
// tests. Expiry mirrors the redis TTL semantics.
type MemoryCache struct {
	mu        sync.RWMutex
	snapshot  *market.MarketSnapshot
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Get(_ context.Context) (*market.MarketSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil || time.Now().After(c.expiresAt) {
		return nil, nil
	}
	snap := *c.snapshot
	return &snap, nil
}

func (c *MemoryCache) Set(_ context.Context, snapshot *market.MarketSnapshot, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := *snapshot
	c.snapshot = &snap
	c.expiresAt = time.Now().Add(ttl)
	return nil
}

func (c *MemoryCache) Flush(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = nil
	c.expiresAt = time.Time{}
	return nil
}
