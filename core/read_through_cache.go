package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryReadThroughCache is a process-local ReadThroughCache safe for
// concurrent readers and occasional write-through refresh.
type MemoryReadThroughCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
}

func NewMemoryReadThroughCache[V any]() *MemoryReadThroughCache[V] {
	return &MemoryReadThroughCache[V]{entries: make(map[string]V)}
}

func (c *MemoryReadThroughCache[V]) Get(_ context.Context, key string) (V, bool, error) {
	var zero V
	if c == nil {
		return zero, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.entries[strings.TrimSpace(key)]
	return value, ok, nil
}

func (c *MemoryReadThroughCache[V]) Populate(_ context.Context, key string, value V) error {
	if c == nil {
		return fmt.Errorf("core: read-through cache is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("core: cache key is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[string]V)
	}
	c.entries[key] = value
	return nil
}

// Invalidate drops key so the next read goes back to the source.
func (c *MemoryReadThroughCache[V]) Invalidate(_ context.Context, key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, strings.TrimSpace(key))
}

// readThrough returns the cached value for key, calling fetch and populating
// the cache on miss. A fetch reporting found=false is not cached.
func readThrough[V any](
	ctx context.Context,
	cache ReadThroughCache[V],
	key string,
	fetch func(ctx context.Context) (V, bool, error),
) (V, bool, error) {
	var zero V
	if cache != nil {
		value, hit, err := cache.Get(ctx, key)
		if err != nil {
			return zero, false, err
		}
		if hit {
			return value, true, nil
		}
	}
	value, found, err := fetch(ctx)
	if err != nil || !found {
		return zero, false, err
	}
	if cache != nil {
		if err := cache.Populate(ctx, key, value); err != nil {
			return zero, false, err
		}
	}
	return value, true, nil
}

var _ ReadThroughCache[CustodianOrg] = (*MemoryReadThroughCache[CustodianOrg])(nil)
