package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"LobCast/internal/domain/models"
)

// fakeStream hands out buffered channels and swaps them on reconnect, the
// way the WebSocket client replaces its read loop.
type fakeStream struct {
	mu         sync.Mutex
	connected  bool
	subscribes int
	reconnects int
	snapCh     chan *models.Snapshot
	errCh      chan error
	closed     bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		snapCh: make(chan *models.Snapshot, 16),
		errCh:  make(chan error, 1),
	}
}

func (s *fakeStream) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *fakeStream) Subscribe(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribes++
	return nil
}

func (s *fakeStream) Read(context.Context) (<-chan *models.Snapshot, <-chan error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapCh, s.errCh
}

func (s *fakeStream) Reconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	s.snapCh = make(chan *models.Snapshot, 16)
	s.errCh = make(chan error, 1)
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *fakeStream) push(snap *models.Snapshot) {
	s.mu.Lock()
	ch := s.snapCh
	s.mu.Unlock()
	ch <- snap
}

func (s *fakeStream) fail(err error) {
	s.mu.Lock()
	ch := s.errCh
	s.mu.Unlock()
	ch <- err
}

func (s *fakeStream) reconnectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestCollectorProcessesStreamSnapshots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := newFakeStream()
	store := &memSnapshotStore{}
	m := newStubMetrics()
	proc := NewSnapshotProcessor(&fakePublisher{}, store, nil, m, "clickhouse")
	c := NewSnapshotCollector(stream, proc, m, nil)

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !c.IsConnected() {
		t.Error("collector not connected after Start")
	}
	if stream.subscribes != 1 {
		t.Errorf("subscribes = %d, want 1", stream.subscribes)
	}

	stream.push(depthBook("BTC-USD", 2))
	stream.push(depthBook("ETH-USD", 2))

	waitFor(t, "snapshots stored", func() bool { return store.count() == 2 })
	waitFor(t, "snapshots counted", func() bool { return m.snapshotCount() == 2 })

	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !stream.closed {
		t.Error("stream not closed on shutdown")
	}
}

func TestCollectorReattachesAfterStreamError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := newFakeStream()
	store := &memSnapshotStore{}
	m := newStubMetrics()
	proc := NewSnapshotProcessor(&fakePublisher{}, store, nil, m, "clickhouse")
	c := NewSnapshotCollector(stream, proc, m, nil)

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	stream.push(depthBook("BTC-USD", 2))
	waitFor(t, "first snapshot stored", func() bool { return store.count() == 1 })

	stream.fail(errors.New("websocket: close 1006"))
	waitFor(t, "stream reattached", func() bool { return stream.reconnectCount() >= 1 })

	// The fresh channels must be live.
	stream.push(depthBook("BTC-USD", 2))
	waitFor(t, "snapshot after reconnect", func() bool { return store.count() == 2 })

	if m.reconnectCount() != 1 {
		t.Errorf("reconnects recorded = %d, want 1", m.reconnectCount())
	}
	if m.errorCount("stream") != 1 {
		t.Errorf("stream errors = %d, want 1", m.errorCount("stream"))
	}
}
