// Package cache provides a small key-value cache abstraction used for game
// metadata, with in-memory and Redis implementations so single-instance and
// multi-instance deployments can share one code path.
package cache

import (
	"context"
	"time"
)

// Cache is the storage contract. Implementations must be safe for concurrent use.
type Cache interface {
	// Get retrieves a value by key. Returns ErrCacheMiss if not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. A non-positive TTL means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value by key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Error is a sentinel error type for cache failures.
type Error string

func (e Error) Error() string { return string(e) }

// ErrCacheMiss indicates the key was not found in cache.
const ErrCacheMiss Error = "cache miss"
