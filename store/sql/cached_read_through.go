package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-accounts/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const readThroughCacheKeyPrefix = "go-accounts::reference::v1"

var errReadThroughMiss = errors.New("sqlstore: read-through cache miss")

// CachedReadThrough is a core.ReadThroughCache backed by a repository cache
// service. Keys are namespaced so several caches can share one service.
type CachedReadThrough[V any] struct {
	namespace string
	cache     repositorycache.CacheService
}

func NewCachedReadThrough[V any](namespace string, cacheService repositorycache.CacheService) (*CachedReadThrough[V], error) {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		return nil, fmt.Errorf("sqlstore: read-through cache namespace is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: read-through cache service is required")
	}
	return &CachedReadThrough[V]{namespace: namespace, cache: cacheService}, nil
}

// ReadThroughCacheKey returns go-accounts::reference::v1::<namespace>::<key>
// with each segment URL-path escaped.
func ReadThroughCacheKey(namespace string, key string) (string, error) {
	namespace = strings.TrimSpace(namespace)
	key = strings.TrimSpace(key)
	if namespace == "" || key == "" {
		return "", fmt.Errorf("sqlstore: cache namespace and key are required")
	}
	return strings.Join([]string{
		readThroughCacheKeyPrefix,
		url.PathEscape(namespace),
		url.PathEscape(key),
	}, "::"), nil
}

func (c *CachedReadThrough[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if c == nil || c.cache == nil {
		return zero, false, fmt.Errorf("sqlstore: read-through cache is not configured")
	}
	cacheKey, err := ReadThroughCacheKey(c.namespace, key)
	if err != nil {
		return zero, false, err
	}
	value, err := repositorycache.GetOrFetch(ctx, c.cache, cacheKey, func(context.Context) (V, error) {
		return zero, errReadThroughMiss
	})
	if errors.Is(err, errReadThroughMiss) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	return value, true, nil
}

func (c *CachedReadThrough[V]) Populate(ctx context.Context, key string, value V) error {
	if c == nil || c.cache == nil {
		return fmt.Errorf("sqlstore: read-through cache is not configured")
	}
	cacheKey, err := ReadThroughCacheKey(c.namespace, key)
	if err != nil {
		return err
	}
	if err := c.cache.Delete(ctx, cacheKey); err != nil {
		return err
	}
	_, err = repositorycache.GetOrFetch(ctx, c.cache, cacheKey, func(context.Context) (V, error) {
		return value, nil
	})
	return err
}

// Invalidate drops key so the next Get misses.
func (c *CachedReadThrough[V]) Invalidate(ctx context.Context, key string) error {
	if c == nil || c.cache == nil {
		return fmt.Errorf("sqlstore: read-through cache is not configured")
	}
	cacheKey, err := ReadThroughCacheKey(c.namespace, key)
	if err != nil {
		return err
	}
	return c.cache.Delete(ctx, cacheKey)
}

var (
	_ core.ReadThroughCache[core.CustodianOrg] = (*CachedReadThrough[core.CustodianOrg])(nil)
	_ core.ReadThroughCache[[]string]          = (*CachedReadThrough[[]string])(nil)
)
