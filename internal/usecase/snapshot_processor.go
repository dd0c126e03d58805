package usecase

import (
	"context"
	"fmt"
	"time"

	"LobCast/internal/domain/models"
	drepo "LobCast/internal/domain/repository"
)

// SnapshotProcessor routes validated snapshots to the configured backend
// and, when enabled, mirrors them into the cold archive.
type SnapshotProcessor struct {
	pub      drepo.Publisher
	store    drepo.SnapshotStore
	archiver drepo.Archiver
	metrics  drepo.Metrics
	backend  string
}

// NewSnapshotProcessor creates a new SnapshotProcessor instance.
func NewSnapshotProcessor(
	pub drepo.Publisher,
	store drepo.SnapshotStore,
	archiver drepo.Archiver,
	metrics drepo.Metrics,
	backend string,
) *SnapshotProcessor {
	return &SnapshotProcessor{
		pub:      pub,
		store:    store,
		archiver: archiver,
		metrics:  metrics,
		backend:  backend,
	}
}

// Process routes a single snapshot to the configured backend. Archiving is
// best-effort and never fails the hot path.
func (p *SnapshotProcessor) Process(ctx context.Context, s *models.Snapshot) error {
	if s == nil {
		return fmt.Errorf("snapshot is nil")
	}

	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.pub.Publish(ctx, s)
	case "clickhouse":
		err = p.store.Store(ctx, s)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process snapshot: %w", err)
	}

	p.archive(ctx, s)
	p.metrics.RecordLatency("process", time.Since(start).Seconds())
	return nil
}

// ProcessBatch routes multiple snapshots in a batch.
func (p *SnapshotProcessor) ProcessBatch(ctx context.Context, snaps []*models.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.pub.PublishBatch(ctx, snaps)
	case "clickhouse":
		err = p.store.StoreBatch(ctx, snaps)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process_batch")
		return fmt.Errorf("process batch: %w", err)
	}

	for _, s := range snaps {
		p.archive(ctx, s)
	}
	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())
	return nil
}

func (p *SnapshotProcessor) archive(ctx context.Context, s *models.Snapshot) {
	if p.archiver == nil {
		return
	}
	if err := p.archiver.Append(ctx, s); err != nil {
		p.metrics.RecordError("archive")
	}
}

// Close closes underlying resources if available.
func (p *SnapshotProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
	if p.archiver != nil {
		_ = p.archiver.Close()
	}
}
