package repository

import (
	"context"
	"time"

	"Fractal/internal/domain/models"
)

// ResultCache stores serialized results keyed by data version.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	InvalidateAsset(ctx context.Context, symbol string) error
	Health(ctx context.Context) error
}

// VersionRegistry tracks the monotone data version of each asset.
type VersionRegistry interface {
	Current(ctx context.Context, symbol string) (int64, error)
	Bump(ctx context.Context, symbol string) (int64, error)
}

// SnapshotStore persists kernel memory snapshots.
type SnapshotStore interface {
	Init(ctx context.Context) error
	Exists(ctx context.Context, ids []string) (map[string]bool, error)
	Save(ctx context.Context, snaps []models.KernelSnapshot) error
	List(ctx context.Context, symbol string, limit int) ([]models.KernelSnapshot, error)
	// Latest returns nil when no snapshot of the focus and preset exists.
	Latest(ctx context.Context, symbol string, focus models.Horizon, preset models.Preset) (*models.KernelSnapshot, error)
	Count(ctx context.Context, symbol string) ([]models.SnapshotTally, error)
	// Unresolved lists snapshots without a stored outcome, oldest asof first.
	Unresolved(ctx context.Context, symbol string) ([]models.KernelSnapshot, error)
	SaveOutcomes(ctx context.Context, outcomes []models.SnapshotOutcome) error
	Outcomes(ctx context.Context, symbol string) ([]models.SnapshotOutcome, error)
}

// SnapshotPublisher announces newly written snapshots.
type SnapshotPublisher interface {
	Publish(ctx context.Context, snaps []models.KernelSnapshot) error
	Close() error
}

// Notifier pushes data version notices to live subscribers.
type Notifier interface {
	Notify(symbol string, notice models.DataVersionNotice)
}

type Metrics interface {
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordHorizon(horizon models.Horizon, stage string, d time.Duration)
	RecordHorizonFailure(horizon models.Horizon, reason string)
	RecordCache(result string)
	RecordConsensus(symbol string, index int)
}
