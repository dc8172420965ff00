package analytics

import (
	"context"

	"github.com/odyssey-erp/stockflow/internal/inventory"
)

// CacheInvalidator bumps the analytics cache version after every committed stock change.
type CacheInvalidator struct {
	cache *Cache
}

func NewCacheInvalidator(cache *Cache) *CacheInvalidator {
	return &CacheInvalidator{cache: cache}
}

func (c *CacheInvalidator) HandleStockChanged(ctx context.Context, _ inventory.StockChangedEvent) error {
	_, err := c.cache.Bump(ctx)
	return err
}

var _ inventory.IntegrationHandler = (*CacheInvalidator)(nil)
