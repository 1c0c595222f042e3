// Package cache defines the read-through cache used for published exam
// payloads and materialized results. Implementations carry explicit TTLs;
// nothing here sits on the attempt-creation or submission paths, which go
// straight to storage.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key-value store with expiry.
type Cache interface {
	// Get returns the cached value and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePrefix removes every key starting with the prefix. Used for
	// invalidation after publishing, submission and manual grading.
	DeletePrefix(ctx context.Context, prefix string) error
}
