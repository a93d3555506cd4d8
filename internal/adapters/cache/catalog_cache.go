// Package cache keeps recently read catalog listings in memory.
package cache

import (
	"booksync/internal/core/domain/models"
	"booksync/internal/core/domain/ports"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

var _ ports.CatalogCache = (*CatalogCache)(nil)

// CatalogCache is a bounded, expiring cache of whole catalog listings keyed by
// user and library. Listings are copied on the way in and out so callers can't
// mutate cached entries.
type CatalogCache struct {
	listings *expirable.LRU[ports.CatalogKey, []models.CatalogEntry]
}

// NewCatalogCache builds a cache of at most size listings, each dropped ttl
// after it was added. A listing is never refreshed in place, so ttl bounds how
// long a catalog change can stay invisible to sync.
func NewCatalogCache(size int, ttl time.Duration) (*CatalogCache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("catalog cache size must be positive, got %d", size)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("catalog cache ttl must be positive, got %s", ttl)
	}
	return &CatalogCache{listings: expirable.NewLRU[ports.CatalogKey, []models.CatalogEntry](size, nil, ttl)}, nil
}

func (c *CatalogCache) Get(key ports.CatalogKey) ([]models.CatalogEntry, bool) {
	entries, ok := c.listings.Get(key)
	if !ok {
		return nil, false
	}
	return copyListing(entries), true
}

func (c *CatalogCache) Add(key ports.CatalogKey, entries []models.CatalogEntry) {
	c.listings.Add(key, copyListing(entries))
}

// Purge drops every cached listing, e.g. after an import changed the catalog.
func (c *CatalogCache) Purge() {
	c.listings.Purge()
}

func (c *CatalogCache) Len() int {
	return c.listings.Len()
}

func copyListing(entries []models.CatalogEntry) []models.CatalogEntry {
	if entries == nil {
		return nil
	}
	out := make([]models.CatalogEntry, len(entries))
	for i, e := range entries {
		e.Formats = append([]models.Format(nil), e.Formats...)
		out[i] = e
	}
	return out
}
