package repository

import (
	"context"

	"LobCast/internal/domain/models"
)

// MarketStream is a live depth feed producing order book snapshots.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Snapshot, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Publisher ships snapshots to the message bus.
type Publisher interface {
	Publish(ctx context.Context, s *models.Snapshot) error
	PublishBatch(ctx context.Context, snaps []*models.Snapshot) error
	Close() error
}

// PredictionPublisher ships served predictions to the message bus.
type PredictionPublisher interface {
	PublishPrediction(ctx context.Context, p *models.Prediction) error
	Close() error
}

// Archiver appends snapshots to cold storage files.
type Archiver interface {
	Append(ctx context.Context, s *models.Snapshot) error
	Flush() error
	Close() error
}

// Metrics records operational measurements.
type Metrics interface {
	RecordSnapshot(instrument string)
	RecordWindowReady(instrument string)
	RecordPrediction(instrument, class string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordRunState(status string)
	SetActiveRuns(n int)
	RecordTrainingProgress(epoch int, loss, accuracy float64)
	RecordCache(hit bool)
	RecordFeedReconnect()
	SetQueueDepth(n int)
}
