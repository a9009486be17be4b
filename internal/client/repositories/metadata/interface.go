// Package metadata stores small client-side key/value settings: the last
// successful sync time, per-type cache meta, the session and auth tokens.
package metadata

import (
	"context"
)

// Well-known keys.
const (
	KeyLastSync     = "sync.last"
	KeySession      = "auth.session"
	KeyAccessToken  = "auth.access_token"
	KeyRefreshToken = "auth.refresh_token"
	cachePrefix     = "cache."
)

// CacheKey is the key holding cache meta for an entity type.
func CacheKey(entityType string) string {
	return cachePrefix + entityType
}

type Repository interface {
	// Get returns (nil, nil) when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
