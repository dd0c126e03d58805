package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"LobCast/internal/domain/models"
	domrepo "LobCast/internal/domain/repository"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, s *models.Snapshot) error
}

// SnapshotPipeline sits between the depth feed and Kafka. It validates,
// drops sequence replays, throttles per instrument, optionally transforms,
// and buffers when downstream is unavailable.
type SnapshotPipeline struct {
	proc     Proc
	metrics  domrepo.Metrics
	minGap   time.Duration
	bufSize  int
	bufCh    chan *models.Snapshot
	stopCh   chan struct{}
	started  bool
	mu       sync.Mutex
	lastSeen map[string]time.Time // per-instrument last accepted time
	lastSeq  map[string]uint64    // per-instrument highest sequence seen
	// snapshot transform hook (optional)
	transform func(*models.Snapshot) *models.Snapshot
	// metrics
	bufDepthGauge func(int)
	throttleWarn  func(string)
}

type PipelineOption func(*SnapshotPipeline)

// WithMinInterval sets the minimum gap between accepted snapshots per
// instrument. Zero disables throttling.
func WithMinInterval(d time.Duration) PipelineOption {
	return func(p *SnapshotPipeline) {
		if d > 0 {
			p.minGap = d
		}
	}
}

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *SnapshotPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform sets a transformation hook, e.g. truncating books to the
// tracked depth.
func WithTransform(fn func(*models.Snapshot) *models.Snapshot) PipelineOption {
	return func(p *SnapshotPipeline) { p.transform = fn }
}

// NewSnapshotPipeline creates a new pipeline.
func NewSnapshotPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *SnapshotPipeline {
	p := &SnapshotPipeline{
		proc:     proc,
		metrics:  metrics,
		bufSize:  1000, // default buffer
		bufCh:    make(chan *models.Snapshot, 1000),
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
		lastSeq:  make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufSize != cap(p.bufCh) {
		p.bufCh = make(chan *models.Snapshot, p.bufSize)
	}
	p.bufDepthGauge = func(n int) { p.metrics.RecordLatency("pipeline_buffer_depth", float64(n)) }
	p.throttleWarn = func(ins string) { p.metrics.RecordError("pipeline_throttle_" + ins) }
	return p
}

// Start launches background flushing of buffered snapshots.
func (p *SnapshotPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case s := <-p.bufCh:
				if s == nil {
					continue
				}
				if err := p.proc.Process(ctx, s); err != nil {
					// exponential backoff with cap
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- s:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *SnapshotPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates, throttles, and forwards a snapshot downstream,
// buffering on errors. Replayed or out-of-order sequence numbers are
// dropped; reconnecting feeds resend the current book and must not produce
// duplicates downstream.
func (p *SnapshotPipeline) Process(ctx context.Context, s *models.Snapshot) error {
	start := time.Now()
	if err := validateSnapshot(s); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		s = p.transform(s)
		if err := validateSnapshot(s); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.fresh(s.Instrument, s.Seq) {
		p.metrics.RecordError("pipeline_stale")
		return nil
	}
	if !p.allow(s.Instrument, start) {
		// throttled; record and drop silently
		p.metrics.RecordError("pipeline_throttle")
		if p.throttleWarn != nil {
			p.throttleWarn(s.Instrument)
		}
		return nil
	}

	if err := p.proc.Process(ctx, s); err != nil {
		p.metrics.RecordError("pipeline_process")
		// buffer non-blocking
		select {
		case p.bufCh <- s:
			if p.bufDepthGauge != nil {
				p.bufDepthGauge(len(p.bufCh))
			}
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func validateSnapshot(s *models.Snapshot) error {
	if s == nil {
		return fmt.Errorf("snapshot nil")
	}
	if s.Instrument == "" {
		return fmt.Errorf("instrument empty")
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("timestamp invalid")
	}
	if len(s.Asks) == 0 || len(s.Bids) == 0 {
		return fmt.Errorf("one-sided book")
	}
	for _, lv := range s.Asks {
		if lv.Price < 0 || lv.Size < 0 {
			return fmt.Errorf("negative ask level")
		}
	}
	for _, lv := range s.Bids {
		if lv.Price < 0 || lv.Size < 0 {
			return fmt.Errorf("negative bid level")
		}
	}
	return nil
}

// fresh tracks the highest sequence per instrument and rejects anything at
// or below it. Feeds that do not number snapshots (seq 0) pass through.
func (p *SnapshotPipeline) fresh(instrument string, seq uint64) bool {
	if seq == 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if seq <= p.lastSeq[instrument] {
		return false
	}
	p.lastSeq[instrument] = seq
	return true
}

func (p *SnapshotPipeline) allow(instrument string, now time.Time) bool {
	if p.minGap <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[instrument]
	if last.IsZero() {
		p.lastSeen[instrument] = now
		return true
	}
	if now.Sub(last) < p.minGap {
		return false
	}
	p.lastSeen[instrument] = now
	return true
}

// TruncateDepth returns a transform keeping at most depth levels per side.
func TruncateDepth(depth int) func(*models.Snapshot) *models.Snapshot {
	return func(s *models.Snapshot) *models.Snapshot {
		if s == nil || depth <= 0 {
			return s
		}
		if len(s.Asks) > depth {
			s.Asks = s.Asks[:depth]
		}
		if len(s.Bids) > depth {
			s.Bids = s.Bids[:depth]
		}
		return s
	}
}
