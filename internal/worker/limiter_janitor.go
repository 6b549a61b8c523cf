package worker

import (
	"context"
	"log/slog"
	"time"
)

// StaleEvicter removes expired rate-limit windows. Implemented by the
// in-memory limiter; the Redis limiter relies on key TTLs instead.
type StaleEvicter interface {
	EvictStale(cutoff time.Time) int
}

// LimiterJanitor periodically evicts stale in-memory rate-limit windows.
type LimiterJanitor struct {
	limiter  StaleEvicter
	interval time.Duration
}

// NewLimiterJanitor creates a janitor sweeping every interval.
func NewLimiterJanitor(limiter StaleEvicter, interval time.Duration) *LimiterJanitor {
	return &LimiterJanitor{limiter: limiter, interval: interval}
}

// Run sweeps until ctx is cancelled.
func (j *LimiterJanitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := j.limiter.EvictStale(time.Now()); n > 0 {
				slog.Debug("stale rate-limit windows evicted", "count", n)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
