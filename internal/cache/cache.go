// Package cache provides the TTL-backed audio payload store and its
// hit/miss accounting.
//
// Every operation degrades instead of propagating backend failures: a Get
// against an unreachable backend is a miss, a Set is a no-op returning
// false, and Stats is a zeroed snapshot. The cache must never be a single
// point of failure for synthesis.
package cache

import (
	"context"
	"time"

	vibevoice "github.com/vibevoice/vibevoice/internal"
)

// Store is the interface for the audio payload cache.
type Store interface {
	// Get retrieves a cached payload. It increments the hit or miss counter
	// best-effort; counter failures never affect the returned result.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores a payload with the given TTL, overwriting unconditionally.
	// Returns false when the write could not be performed.
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) bool
	// Delete removes a single key and reports whether it existed.
	Delete(ctx context.Context, key string) bool
	// Purge removes every key under the audio namespace and returns the
	// count removed. Entries written concurrently may survive; this is an
	// administrative operation, not part of the hot path.
	Purge(ctx context.Context) int
	// Stats aggregates backend size introspection with the hit/miss
	// counters. Returns a zeroed snapshot when the backend is unreachable.
	Stats(ctx context.Context) vibevoice.CacheStats
	// Ping reports backend liveness.
	Ping(ctx context.Context) error
}

// hitRate computes hits/(hits+misses), defined as 0 when both are zero.
func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
