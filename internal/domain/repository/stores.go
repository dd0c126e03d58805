package repository

import (
	"context"
	"time"

	"LobCast/internal/domain/models"
)

// RunStore persists training runs and their per-epoch training curves.
type RunStore interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, run *models.Run) error
	Update(ctx context.Context, run *models.Run) error
	Get(ctx context.Context, id string) (*models.Run, error)
	List(ctx context.Context, status models.RunStatus, limit int) ([]*models.Run, error)
	AppendEpoch(ctx context.Context, m *models.EpochMetric) error
	Epochs(ctx context.Context, runID string) ([]*models.EpochMetric, error)
	Health(ctx context.Context) error
	Close() error
}

// SnapshotStore persists order book snapshots.
type SnapshotStore interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, s *models.Snapshot) error
	StoreBatch(ctx context.Context, snaps []*models.Snapshot) error
	Query(ctx context.Context, instrument string, from, to time.Time, limit int) ([]*models.Snapshot, error)
	Health(ctx context.Context) error
	Close() error
}

// PredictionStore persists served predictions for later inspection.
type PredictionStore interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, p *models.Prediction) error
	Latest(ctx context.Context, instrument string, limit int) ([]*models.Prediction, error)
}
