package middleware

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"LobCast/internal/domain/models"
)

type procFunc func(ctx context.Context, s *models.Snapshot) error

func (f procFunc) Process(ctx context.Context, s *models.Snapshot) error { return f(ctx, s) }

type nopMetrics struct{}

func (nopMetrics) RecordSnapshot(string)                        {}
func (nopMetrics) RecordWindowReady(string)                     {}
func (nopMetrics) RecordPrediction(string, string)              {}
func (nopMetrics) RecordError(string)                           {}
func (nopMetrics) RecordLatency(string, float64)                {}
func (nopMetrics) RecordRunState(string)                        {}
func (nopMetrics) SetActiveRuns(int)                            {}
func (nopMetrics) RecordTrainingProgress(int, float64, float64) {}
func (nopMetrics) RecordCache(bool)                             {}
func (nopMetrics) RecordFeedReconnect()                         {}
func (nopMetrics) SetQueueDepth(int)                            {}

func book(instrument string) *models.Snapshot {
	return &models.Snapshot{
		Instrument: instrument,
		Timestamp:  time.Now(),
		Asks:       []models.PriceLevel{{Price: 100.5, Size: 1}, {Price: 100.6, Size: 2}},
		Bids:       []models.PriceLevel{{Price: 100.4, Size: 1}, {Price: 100.3, Size: 2}},
	}
}

func TestPipelineRejectsInvalid(t *testing.T) {
	var calls int32
	p := NewSnapshotPipeline(procFunc(func(context.Context, *models.Snapshot) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}), nopMetrics{})

	cases := []struct {
		name string
		snap *models.Snapshot
	}{
		{"nil", nil},
		{"empty instrument", func() *models.Snapshot { s := book(""); return s }()},
		{"zero timestamp", func() *models.Snapshot { s := book("BTC-USD"); s.Timestamp = time.Time{}; return s }()},
		{"one-sided", func() *models.Snapshot { s := book("BTC-USD"); s.Bids = nil; return s }()},
		{"negative size", func() *models.Snapshot { s := book("BTC-USD"); s.Asks[0].Size = -1; return s }()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := p.Process(context.Background(), tc.snap); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("downstream called %d times for invalid input", n)
	}
}

func TestPipelineThrottlesPerInstrument(t *testing.T) {
	var calls int32
	p := NewSnapshotPipeline(procFunc(func(context.Context, *models.Snapshot) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}), nopMetrics{}, WithMinInterval(time.Hour))

	for i := 0; i < 3; i++ {
		if err := p.Process(context.Background(), book("BTC-USD")); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	// Other instruments are not affected.
	if err := p.Process(context.Background(), book("ETH-USD")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("downstream calls = %d, want 2", n)
	}
}

func TestPipelineDropsReplayedSequences(t *testing.T) {
	var calls int32
	p := NewSnapshotPipeline(procFunc(func(context.Context, *models.Snapshot) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}), nopMetrics{})

	seq := func(instrument string, n uint64) *models.Snapshot {
		s := book(instrument)
		s.Seq = n
		return s
	}
	for _, s := range []*models.Snapshot{
		seq("BTC-USD", 1),
		seq("BTC-USD", 2),
		seq("BTC-USD", 2), // duplicate
		seq("BTC-USD", 1), // replay after reconnect
		seq("ETH-USD", 1), // instruments count independently
		seq("BTC-USD", 3),
		seq("BTC-USD", 0), // unnumbered feeds always pass
	} {
		if err := p.Process(context.Background(), s); err != nil {
			t.Fatalf("Process seq %d: %v", s.Seq, err)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 5 {
		t.Errorf("downstream calls = %d, want 5", n)
	}
}

func TestPipelineTransformTruncatesDepth(t *testing.T) {
	var seen *models.Snapshot
	p := NewSnapshotPipeline(procFunc(func(_ context.Context, s *models.Snapshot) error {
		seen = s
		return nil
	}), nopMetrics{}, WithTransform(TruncateDepth(1)))

	if err := p.Process(context.Background(), book("BTC-USD")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if seen == nil || len(seen.Asks) != 1 || len(seen.Bids) != 1 {
		t.Errorf("transform did not truncate: %+v", seen)
	}
}

func TestPipelineBuffersAndFlushes(t *testing.T) {
	var healed atomic.Bool
	got := make(chan *models.Snapshot, 1)
	p := NewSnapshotPipeline(procFunc(func(_ context.Context, s *models.Snapshot) error {
		if !healed.Load() {
			return errors.New("downstream down")
		}
		got <- s
		return nil
	}), nopMetrics{}, WithBufferSize(4))

	if err := p.Process(context.Background(), book("BTC-USD")); err == nil {
		t.Fatal("expected downstream error")
	}
	if len(p.bufCh) != 1 {
		t.Fatalf("buffered = %d, want 1", len(p.bufCh))
	}

	healed.Store(true)
	p.Start(context.Background())
	defer p.Stop()

	select {
	case s := <-got:
		if s.Instrument != "BTC-USD" {
			t.Errorf("flushed instrument = %s", s.Instrument)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("buffered snapshot never flushed")
	}
}
