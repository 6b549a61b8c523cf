package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	vibevoice "github.com/vibevoice/vibevoice/internal"
	"github.com/vibevoice/vibevoice/internal/telemetry"
)

const (
	usageChanSize   = 1000
	usageBatchSize  = 100
	usageFlushEvery = 5 * time.Second
	usageDrainTime  = 30 * time.Second
)

// UsageStore is the persistence interface consumed by UsageRecorder.
type UsageStore interface {
	InsertUsage(ctx context.Context, records []vibevoice.UsageRecord) error
}

// UsageRecorder buffers usage records and batch-flushes them to the store.
// Records are dropped if the channel is full (back-pressure on slow DB).
type UsageRecorder struct {
	ch      chan vibevoice.UsageRecord
	store   UsageStore
	metrics *telemetry.Metrics // nil = no queue gauge
}

// NewUsageRecorder creates a UsageRecorder backed by store. metrics may be nil.
func NewUsageRecorder(store UsageStore, metrics *telemetry.Metrics) *UsageRecorder {
	return &UsageRecorder{
		ch:      make(chan vibevoice.UsageRecord, usageChanSize),
		store:   store,
		metrics: metrics,
	}
}

// Record enqueues a usage record. It never blocks; drops on full channel.
func (u *UsageRecorder) Record(r vibevoice.UsageRecord) {
	select {
	case u.ch <- r:
	default:
		slog.Warn("usage record dropped, channel full")
	}
	if u.metrics != nil {
		u.metrics.UsageQueueLength.Set(float64(len(u.ch)))
	}
}

// Run processes records until ctx is cancelled, then drains remaining records.
func (u *UsageRecorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(usageFlushEvery)
	defer ticker.Stop()

	buf := make([]vibevoice.UsageRecord, 0, usageBatchSize)

	for {
		select {
		case r := <-u.ch:
			buf = append(buf, r)
			if len(buf) >= usageBatchSize {
				u.flush(ctx, buf)
				buf = buf[:0]
			}

		case <-ticker.C:
			if len(buf) > 0 {
				u.flush(ctx, buf)
				buf = buf[:0]
			}

		case <-ctx.Done():
			// Drain remaining records with a timeout.
			u.drain(buf)
			return nil
		}
	}
}

func (u *UsageRecorder) drain(buf []vibevoice.UsageRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), usageDrainTime)
	defer cancel()

	for {
		select {
		case r := <-u.ch:
			buf = append(buf, r)
			if len(buf) >= usageBatchSize {
				u.flush(ctx, buf)
				buf = buf[:0]
			}
		default:
			// Channel empty, flush remaining.
			if len(buf) > 0 {
				u.flush(ctx, buf)
			}
			return
		}
	}
}

func (u *UsageRecorder) flush(ctx context.Context, buf []vibevoice.UsageRecord) {
	// Copy to avoid aliasing the caller's slice.
	batch := make([]vibevoice.UsageRecord, len(buf))
	copy(batch, buf)

	// Assign IDs off the hot path; callers may leave ID empty.
	for i := range batch {
		if batch[i].ID == "" {
			batch[i].ID = uuid.Must(uuid.NewV7()).String()
		}
	}

	if err := u.store.InsertUsage(ctx, batch); err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "usage flush failed",
			slog.Int("count", len(batch)),
			slog.String("error", err.Error()),
		)
	}
	if u.metrics != nil {
		u.metrics.UsageQueueLength.Set(float64(len(u.ch)))
	}
}
