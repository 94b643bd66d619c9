// Package cache provides the fast key-value tier shared by deduplication
// and enrichment. Keys are tenant-namespaced by callers. A cache outage is
// never fatal: callers degrade to the durable store when ErrUnavailable is
// returned.
package cache

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// ErrUnavailable indicates the cache backend could not be reached. Callers
// must fail open to the durable store rather than treating this as a miss
// or a hit.
var ErrUnavailable = eris.New("cache: unavailable")

// Cache is the fast-tier key-value store with TTL semantics.
type Cache interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// SetWithTTL stores value under key for the given TTL, replacing any
	// existing value.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	// SetIfAbsent stores value only when key is not already present and
	// reports whether the write won. This is the atomic claim primitive
	// used by deduplication.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Delete removes key.
	Delete(ctx context.Context, key string) error
}
