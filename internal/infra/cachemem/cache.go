package cachemem

import (
	"context"
	"sync"
	"time"

	"noskid/internal/domain"
	"noskid/internal/usecase"
)

// Cache is the no-db cert cache. Entries live for the process lifetime.
type Cache struct {
	mu      sync.Mutex
	entries map[domain.VerificationKey]domain.CacheEntry
}

func New() *Cache {
	return &Cache{
		entries: make(map[domain.VerificationKey]domain.CacheEntry),
	}
}

func (c *Cache) GetFresh(ctx context.Context, key domain.VerificationKey, invalidSince time.Time) (*domain.CacheEntry, error) {
	if c == nil {
		return nil, domain.ErrNotFound
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !entry.IsValid && !entry.CachedAt.After(invalidSince) {
		return nil, domain.ErrNotFound
	}
	return cloneEntry(entry), nil
}

func (c *Cache) UpsertValid(ctx context.Context, key domain.VerificationKey, record domain.AuthorityRecord, cachedAt time.Time) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = domain.MergeValid(c.lookup(key), key, record, cachedAt)
	return nil
}

func (c *Cache) UpsertInvalid(ctx context.Context, key domain.VerificationKey, cachedAt time.Time) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = domain.MergeInvalid(c.lookup(key), key, cachedAt)
	return nil
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// lookup requires c.mu.
func (c *Cache) lookup(key domain.VerificationKey) *domain.CacheEntry {
	entry, ok := c.entries[key]
	if !ok {
		return nil
	}
	return &entry
}

func cloneEntry(e domain.CacheEntry) *domain.CacheEntry {
	out := e
	if e.Record != nil {
		rec := *e.Record
		out.Record = &rec
	}
	return &out
}

var _ usecase.CertCacheRepository = (*Cache)(nil)
