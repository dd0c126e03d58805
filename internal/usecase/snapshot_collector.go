package usecase

import (
	"context"

	"LobCast/internal/domain/models"
	drepo "LobCast/internal/domain/repository"
	mid "LobCast/internal/middleware"
)

// SnapshotCollector reads the depth feed and pushes snapshots through the
// pipeline.
type SnapshotCollector struct {
	stream  drepo.MarketStream
	proc    *SnapshotProcessor
	metrics drepo.Metrics
	pipe    *mid.SnapshotPipeline
}

// NewSnapshotCollector creates a new SnapshotCollector instance.
func NewSnapshotCollector(stream drepo.MarketStream, proc *SnapshotProcessor, metrics drepo.Metrics, pipe *mid.SnapshotPipeline) *SnapshotCollector {
	return &SnapshotCollector{stream: stream, proc: proc, metrics: metrics, pipe: pipe}
}

// IsConnected returns true if the depth feed is connected.
func (c *SnapshotCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *SnapshotCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	snapCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, snapCh, errCh)
	return nil
}

func (c *SnapshotCollector) consume(ctx context.Context, snapCh <-chan *models.Snapshot, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok || err != nil {
				c.metrics.RecordError("stream")
				snapCh, errCh = c.reattach(ctx)
				if snapCh == nil {
					return
				}
			}
		case s, ok := <-snapCh:
			if !ok {
				// closed after a read error; the errCh branch reattaches
				snapCh = nil
				continue
			}
			if s == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, s)
			} else {
				_ = c.proc.Process(ctx, s)
			}
			c.metrics.RecordSnapshot(s.Instrument)
		}
	}
}

// reattach reconnects the stream and returns fresh read channels. The
// stream's own reconnect delay paces retries.
func (c *SnapshotCollector) reattach(ctx context.Context) (<-chan *models.Snapshot, <-chan error) {
	for {
		if ctx.Err() != nil {
			return nil, nil
		}
		if err := c.stream.Reconnect(ctx); err != nil {
			c.metrics.RecordError("reconnect")
			continue
		}
		c.metrics.RecordFeedReconnect()
		return c.stream.Read(ctx)
	}
}

func (c *SnapshotCollector) Stop() error { return c.stream.Close() }

// Processor returns the underlying SnapshotProcessor for lifecycle management.
func (c *SnapshotCollector) Processor() *SnapshotProcessor { return c.proc }

// Shutdown stops the pipeline and closes the stream.
func (c *SnapshotCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
