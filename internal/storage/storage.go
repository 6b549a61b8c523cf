// Package storage defines persistence interfaces for the proxy.
package storage

import (
	"context"

	vibevoice "github.com/vibevoice/vibevoice/internal"
)

// UsageStore manages usage record persistence.
type UsageStore interface {
	InsertUsage(ctx context.Context, records []vibevoice.UsageRecord) error
	QueryUsage(ctx context.Context, f vibevoice.UsageFilter) ([]vibevoice.UsageRecord, error)
	CountUsage(ctx context.Context, f vibevoice.UsageFilter) (int, error)
	PruneUsage(ctx context.Context, before string) (int64, error)
}

// Store combines all storage interfaces.
type Store interface {
	UsageStore
	Ping(ctx context.Context) error
	Close() error
}
