package portal

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// ResponseCache stores encoded backend responses by request key.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

// RenderCache memoizes rendered chart HTML.
type RenderCache interface {
	GetOrRender(key string, render func() (string, error)) (string, error)
}

// MemoryCache is an in-memory TTL cache. It serves as both the option
// response cache and the chart render cache.
type MemoryCache struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value   []byte
	expires time.Time
}

// NewMemoryCache builds a cache with the provided TTL. A non-positive TTL
// disables caching.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns a live entry.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	if c == nil || c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expires) {
		if ok {
			c.mu.Lock()
			delete(c.entries, key)
			c.mu.Unlock()
		}
		return nil, false
	}
	return entry.value, true
}

// Set stores value until the TTL elapses.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte) {
	if c == nil || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{
		value:   append([]byte(nil), value...),
		expires: c.now().Add(c.ttl),
	}
	c.mu.Unlock()
}

// GetOrRender returns a cached entry or renders and stores a new one.
func (c *MemoryCache) GetOrRender(key string, render func() (string, error)) (string, error) {
	if cached, ok := c.Get(context.Background(), key); ok {
		return string(cached), nil
	}
	html, err := render()
	if err != nil {
		return "", err
	}
	c.Set(context.Background(), key, []byte(html))
	return html, nil
}

// Len reports the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// contentHash returns a deterministic hash for a JSON-encodable value.
func contentHash(v any) string {
	if v == nil {
		return "empty"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "invalid"
	}
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}
