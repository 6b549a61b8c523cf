package worker

import (
	"context"
	"log/slog"
	"time"
)

// UsagePrunerStore is the persistence interface consumed by UsagePruner.
type UsagePrunerStore interface {
	PruneUsage(ctx context.Context, before string) (int64, error)
}

// UsagePruner periodically deletes usage records older than the retention
// window, keeping the audit table from growing without bound.
type UsagePruner struct {
	store     UsagePrunerStore
	retention time.Duration
	interval  time.Duration
}

// NewUsagePruner creates a pruner that keeps records for retention and
// sweeps every interval.
func NewUsagePruner(store UsagePrunerStore, retention, interval time.Duration) *UsagePruner {
	return &UsagePruner{store: store, retention: retention, interval: interval}
}

// Run sweeps on the configured interval until ctx is cancelled. A sweep
// failure is logged but does not stop the worker.
func (p *UsagePruner) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.sweep(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (p *UsagePruner) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-p.retention).Format(time.RFC3339)
	n, err := p.store.PruneUsage(ctx, cutoff)
	if err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "usage prune failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if n > 0 {
		slog.LogAttrs(ctx, slog.LevelInfo, "usage records pruned",
			slog.Int64("count", n),
			slog.String("cutoff", cutoff),
		)
	}
}
