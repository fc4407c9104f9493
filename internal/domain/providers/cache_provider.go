package providers

import (
	"context"
	"errors"
)

// ErrCacheMiss is wrapped by CacheProvider.Get when the key is absent or expired
var ErrCacheMiss = errors.New("cache miss")

// CacheProvider stores short-lived serialized read models such as queue
// listings. Values are opaque bytes; callers own the encoding.
type CacheProvider interface {
	// Get returns the value of key or an error wrapping ErrCacheMiss
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key for ttlSeconds; zero keeps it until deleted
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error

	Delete(ctx context.Context, key string) error

	// DeletePattern removes every key matching a glob pattern
	DeletePattern(ctx context.Context, pattern string) error
}
