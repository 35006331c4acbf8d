package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-twitch/core"
	"github.com/goliatone/go-twitch/ratelimit"
)

const rateLimitStateCacheKeyPrefix = "go-twitch::ratelimit_state::v1"

var errCachedStoreNotConfigured = errors.New("sqlstore: cached rate-limit state store is not configured")

// CachedRateLimitStateStore fronts a StateStore with go-repository-cache.
// Writes go to the base store and then evict the cached bucket.
type CachedRateLimitStateStore struct {
	base  ratelimit.StateStore
	cache repositorycache.CacheService
}

func NewCachedRateLimitStateStore(base ratelimit.StateStore, cacheService repositorycache.CacheService) (*CachedRateLimitStateStore, error) {
	switch {
	case base == nil:
		return nil, fmt.Errorf("sqlstore: base rate-limit state store is required")
	case cacheService == nil:
		return nil, fmt.Errorf("sqlstore: rate-limit cache service is required")
	}
	return &CachedRateLimitStateStore{base: base, cache: cacheService}, nil
}

// RateLimitStateCacheKey joins the prefix and the normalized key segments
// with "::". Segments are path-escaped so client ids cannot forge a separator.
func RateLimitStateCacheKey(key core.RateLimitKey) (string, error) {
	key = ratelimit.NormalizeKey(key)
	if err := validateRateLimitKey(key); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(rateLimitStateCacheKeyPrefix)
	for _, segment := range []string{key.ProviderID, key.ScopeType, key.ScopeID, key.BucketKey} {
		b.WriteString("::")
		b.WriteString(url.PathEscape(segment))
	}
	return b.String(), nil
}

func (s *CachedRateLimitStateStore) Get(ctx context.Context, key core.RateLimitKey) (ratelimit.State, error) {
	if !s.ready() {
		return ratelimit.State{}, errCachedStoreNotConfigured
	}
	key = ratelimit.NormalizeKey(key)
	cacheKey, err := RateLimitStateCacheKey(key)
	if err != nil {
		return ratelimit.State{}, err
	}
	state, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (ratelimit.State, error) {
		fetched, err := s.base.Get(ctx, key)
		return cloneRateLimitState(fetched), err
	})
	if err != nil {
		return ratelimit.State{}, err
	}
	return cloneRateLimitState(state), nil
}

func (s *CachedRateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if !s.ready() {
		return errCachedStoreNotConfigured
	}
	state = cloneRateLimitState(state)
	if err := validateRateLimitKey(state.Key); err != nil {
		return err
	}
	if err := s.base.Upsert(ctx, state); err != nil {
		return err
	}
	return s.Forget(ctx, state.Key)
}

// Forget evicts the cached state for key without touching the base store.
func (s *CachedRateLimitStateStore) Forget(ctx context.Context, key core.RateLimitKey) error {
	if !s.ready() {
		return errCachedStoreNotConfigured
	}
	cacheKey, err := RateLimitStateCacheKey(key)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func (s *CachedRateLimitStateStore) ready() bool {
	return s != nil && s.base != nil && s.cache != nil
}

func cloneRateLimitState(state ratelimit.State) ratelimit.State {
	state.Key = ratelimit.NormalizeKey(state.Key)
	state.Metadata = copyAnyMap(state.Metadata)
	state.ResetAt = copyTimePointer(state.ResetAt)
	return state
}
