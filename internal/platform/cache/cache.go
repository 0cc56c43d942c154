package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMiss signals that a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache is a byte-oriented cache with TTL expiry. Implementations must
// return ErrMiss for absent keys.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// GetOrFetchJSON reads key from the cache, falling back to fetch on a miss
// and storing the result. Cache failures other than a miss degrade to a
// fetch: a broken cache must never take reads down with it.
func GetOrFetchJSON[T any](ctx context.Context, c Cache, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	if c != nil {
		raw, err := c.Get(ctx, key)
		if err == nil {
			var value T
			if err := json.Unmarshal(raw, &value); err == nil {
				return value, nil
			}
		}
	}

	value, err := fetch(ctx)
	if err != nil {
		return zero, err
	}

	if c != nil {
		if raw, err := json.Marshal(value); err == nil {
			// Best effort; the fetched value is already in hand.
			_ = c.Set(ctx, key, raw, ttl)
		}
	}
	return value, nil
}

// ApplicationKey is the cache key for a single application.
func ApplicationKey(id string) string {
	return "application:" + id
}

// ListKey is the cache key for one page of a filtered listing. Empty filter
// values are encoded as "all" so distinct filters never collide.
func ListKey(country, status string, page, limit int) string {
	if country == "" {
		country = "all"
	}
	if status == "" {
		status = "all"
	}
	return fmt.Sprintf("applications:%s:%s:%d:%d", country, status, page, limit)
}

// ListKeyPrefix covers every page of every filtered listing.
const ListKeyPrefix = "applications:"
