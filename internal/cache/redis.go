package cache

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	vibevoice "github.com/vibevoice/vibevoice/internal"
)

// statsKey is the well-known aggregate key holding the hit/miss counters.
// A hash mutated only through HINCRBY keeps the counters atomic without
// read-modify-write cycles.
const statsKey = "cache:stats"

// scanBatch bounds SCAN page size during Purge.
const scanBatch = 1000

// Redis implements Store on a shared Redis backend.
type Redis struct {
	client    *redis.Client
	opTimeout time.Duration
}

// NewRedis returns a Redis store over an injected client. The client is
// shared with the rate limiter (distinct keyspace) and owned by the caller;
// connectivity is not verified here since an unreachable backend degrades
// per-operation rather than failing startup.
func NewRedis(client *redis.Client, opTimeout time.Duration) *Redis {
	return &Redis{
		client:    client,
		opTimeout: opTimeout,
	}
}

// Get retrieves a payload. An unreachable backend is indistinguishable from
// a miss to the caller; only a genuine absence increments the miss counter.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	data, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		r.count(ctx, "hits")
		return data, true
	case errors.Is(err, redis.Nil):
		r.count(ctx, "misses")
		return nil, false
	default:
		slog.LogAttrs(ctx, slog.LevelWarn, "cache get degraded",
			slog.String("error", err.Error()),
		)
		return nil, false
	}
}

// Set writes the payload with the given TTL, last-write-wins.
func (r *Redis) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) bool {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		slog.LogAttrs(ctx, slog.LevelWarn, "cache set degraded",
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// Delete removes a single key.
func (r *Redis) Delete(ctx context.Context, key string) bool {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	n, err := r.client.Del(ctx, key).Result()
	if err != nil {
		slog.LogAttrs(ctx, slog.LevelWarn, "cache delete degraded",
			slog.String("error", err.Error()),
		)
		return false
	}
	return n > 0
}

// Purge enumerates the audio namespace with SCAN and removes entries in
// pipelined UNLINK batches. Purge runs under the caller's context, not the
// per-operation bound, since a full sweep can legitimately take a while.
func (r *Redis) Purge(ctx context.Context) int {
	var removed int
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, vibevoice.KeyPrefix+"*", scanBatch).Result()
		if err != nil {
			slog.LogAttrs(ctx, slog.LevelWarn, "cache purge degraded",
				slog.String("error", err.Error()),
			)
			return removed
		}
		if len(keys) > 0 {
			pipe := r.client.Pipeline()
			for _, k := range keys {
				pipe.Unlink(ctx, k)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				slog.LogAttrs(ctx, slog.LevelWarn, "cache purge degraded",
					slog.String("error", err.Error()),
				)
				return removed
			}
			removed += len(keys)
		}
		if next == 0 {
			return removed
		}
		cursor = next
	}
}

// Stats combines DBSIZE and INFO memory with the counter hash.
func (r *Redis) Stats(ctx context.Context) vibevoice.CacheStats {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	keys, err := r.client.DBSize(ctx).Result()
	if err != nil {
		slog.LogAttrs(ctx, slog.LevelWarn, "cache stats degraded",
			slog.String("error", err.Error()),
		)
		return vibevoice.CacheStats{}
	}

	var memory int64
	if info, err := r.client.Info(ctx, "memory").Result(); err == nil {
		memory = parseUsedMemory(info)
	}

	hits := r.counter(ctx, "hits")
	misses := r.counter(ctx, "misses")

	return vibevoice.CacheStats{
		TotalKeys:   keys,
		MemoryBytes: memory,
		HitRate:     hitRate(hits, misses),
		Hits:        hits,
		Misses:      misses,
	}
}

// Ping reports backend liveness.
func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

// count increments a stats counter best-effort.
func (r *Redis) count(ctx context.Context, name string) {
	if err := r.client.HIncrBy(ctx, statsKey, name, 1).Err(); err != nil {
		slog.LogAttrs(ctx, slog.LevelWarn, "cache counter increment failed",
			slog.String("counter", name),
			slog.String("error", err.Error()),
		)
	}
}

// counter reads a stats counter, treating absence or failure as zero.
func (r *Redis) counter(ctx context.Context, name string) int64 {
	val, err := r.client.HGet(ctx, statsKey, name).Result()
	if err != nil {
		return 0
	}
	n, _ := strconv.ParseInt(val, 10, 64)
	return n
}

// bound derives a context with the per-operation timeout so a backend
// outage blocks a request for at most opTimeout.
func (r *Redis) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.opTimeout)
}

// parseUsedMemory extracts used_memory from an INFO memory section.
func parseUsedMemory(info string) int64 {
	for line := range strings.Lines(info) {
		if rest, ok := strings.CutPrefix(line, "used_memory:"); ok {
			n, _ := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
			return n
		}
	}
	return 0
}
