package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-receipts/core"
)

const hookCacheKeyPrefix = "go-receipts::hook::v1"

// CachedHookStore layers a read-through cache over hook registrations.
// Hook configs are read on every inbound delivery and change rarely;
// writes invalidate the cached entry.
type CachedHookStore struct {
	base  core.HookConfigStore
	cache repositorycache.CacheService
}

func NewCachedHookStore(base core.HookConfigStore, cacheService repositorycache.CacheService) (*CachedHookStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base hook store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: hook cache service is required")
	}
	return &CachedHookStore{base: base, cache: cacheService}, nil
}

var _ core.HookConfigStore = (*CachedHookStore)(nil)

// HookCacheKey returns the deterministic cache key for one hook:
// go-receipts::hook::v1::<name> with the name URL-path escaped.
func HookCacheKey(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("sqlstore: hook name is required")
	}
	return hookCacheKeyPrefix + "::" + url.PathEscape(name), nil
}

func (s *CachedHookStore) Save(ctx context.Context, in core.SaveHookInput) (core.StoredHook, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.StoredHook{}, fmt.Errorf("sqlstore: cached hook store is not configured")
	}
	saved, err := s.base.Save(ctx, in)
	if err != nil {
		return core.StoredHook{}, err
	}
	cacheKey, err := HookCacheKey(saved.Name)
	if err != nil {
		return core.StoredHook{}, err
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return core.StoredHook{}, err
	}
	return saved, nil
}

func (s *CachedHookStore) Get(ctx context.Context, name string) (core.StoredHook, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.StoredHook{}, fmt.Errorf("sqlstore: cached hook store is not configured")
	}
	cacheKey, err := HookCacheKey(name)
	if err != nil {
		return core.StoredHook{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.StoredHook, error) {
		return s.base.Get(ctx, name)
	})
}

func (s *CachedHookStore) List(ctx context.Context) ([]core.StoredHook, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached hook store is not configured")
	}
	// Listing happens at startup only; no point caching it.
	return s.base.List(ctx)
}
