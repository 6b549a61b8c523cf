package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/maypok86/otter/v2"

	vibevoice "github.com/vibevoice/vibevoice/internal"
)

// entry wraps a cached payload with its expiration time.
type entry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is an in-process W-TinyLFU store backed by otter, used when no
// Redis backend is configured. Hit/miss counters are process-local and
// reset on restart, unlike the shared Redis counters.
type Memory struct {
	cache  *otter.Cache[string, entry]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemory creates an in-memory store with the given max entry count and
// default TTL.
func NewMemory(maxEntries int, defaultTTL time.Duration) (*Memory, error) {
	c, err := otter.New[string, entry](&otter.Options[string, entry]{
		MaximumSize:      maxEntries,
		ExpiryCalculator: otter.ExpiryWriting[string, entry](defaultTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &Memory{cache: c}, nil
}

// Get retrieves a payload if present and not expired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	e, ok := m.cache.GetIfPresent(key)
	if !ok {
		m.misses.Add(1)
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		m.cache.Invalidate(key)
		m.misses.Add(1)
		return nil, false
	}
	m.hits.Add(1)
	return e.data, true
}

// Set stores a payload with a per-entry TTL.
func (m *Memory) Set(_ context.Context, key string, payload []byte, ttl time.Duration) bool {
	m.cache.Set(key, entry{
		data:      payload,
		expiresAt: time.Now().Add(ttl),
	})
	return true
}

// Delete removes a single key.
func (m *Memory) Delete(_ context.Context, key string) bool {
	_, existed := m.cache.GetIfPresent(key)
	m.cache.Invalidate(key)
	return existed
}

// Purge removes all entries and returns how many were held. The count is
// otter's size estimate taken before invalidation, so it can include
// expired entries not yet evicted; the Redis store counts deletions
// exactly.
func (m *Memory) Purge(_ context.Context) int {
	n := m.cache.EstimatedSize()
	m.cache.InvalidateAll()
	return n
}

// Stats returns the process-local counters. Byte-level memory introspection
// is a shared-backend feature; the in-process store reports zero.
func (m *Memory) Stats(_ context.Context) vibevoice.CacheStats {
	hits := m.hits.Load()
	misses := m.misses.Load()
	return vibevoice.CacheStats{
		TotalKeys: int64(m.cache.EstimatedSize()),
		HitRate:   hitRate(hits, misses),
		Hits:      hits,
		Misses:    misses,
	}
}

// Ping always succeeds for the in-process store.
func (m *Memory) Ping(_ context.Context) error { return nil }
