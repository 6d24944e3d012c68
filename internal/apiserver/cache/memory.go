package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	names     []string
	expiresAt time.Time
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[uint]memoryEntry
	ttl     time.Duration
}

func newMemoryCache(ttl time.Duration) *memoryCache {
	return &memoryCache{
		entries: make(map[uint]memoryEntry),
		ttl:     normalizeTTL(ttl),
	}
}

func (c *memoryCache) GetPermissions(_ context.Context, userID uint) ([]string, error) {
	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrMiss
	}
	names := make([]string, len(entry.names))
	copy(names, entry.names)
	return names, nil
}

func (c *memoryCache) SetPermissions(_ context.Context, userID uint, names []string) error {
	stored := make([]string, len(names))
	copy(stored, names)
	c.mu.Lock()
	c.entries[userID] = memoryEntry{names: stored, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, userID uint) error {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) InvalidateAll(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[uint]memoryEntry)
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) Close() error { return nil }
