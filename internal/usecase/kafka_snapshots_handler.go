package usecase

import (
	"context"
	"encoding/json"
	"time"

	"LobCast/internal/domain/models"
	domrepo "LobCast/internal/domain/repository"
	"LobCast/internal/service/window"
	pkgkafka "LobCast/pkg/kafka"
)

// KafkaSnapshotsHandler consumes book snapshots from Kafka, feeds the
// rolling window tracker and persists rows to storage.
type KafkaSnapshotsHandler struct {
	topic   string
	store   domrepo.SnapshotStore
	tracker *window.Tracker
	metrics domrepo.Metrics
}

func NewKafkaSnapshotsHandler(topic string, store domrepo.SnapshotStore, tracker *window.Tracker, metrics domrepo.Metrics) *KafkaSnapshotsHandler {
	return &KafkaSnapshotsHandler{topic: topic, store: store, tracker: tracker, metrics: metrics}
}

func (h *KafkaSnapshotsHandler) Topic() string { return h.topic }

// incoming message schema: {instrument, ts, seq, asks, bids}
func (h *KafkaSnapshotsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Instrument string       `json:"instrument"`
		Ts         int64        `json:"ts"` // ms
		Seq        uint64       `json:"seq"`
		Asks       [][2]float64 `json:"asks"`
		Bids       [][2]float64 `json:"bids"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	snap := &models.Snapshot{
		Instrument: m.Instrument,
		Timestamp:  time.UnixMilli(m.Ts).UTC(),
		Seq:        m.Seq,
		Asks:       wireLevels(m.Asks),
		Bids:       wireLevels(m.Bids),
	}
	// E2E latency from event time to now (approx)
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(snap.Timestamp).Seconds())

	// Shallow books cannot fill a feature vector; they are recorded but
	// never retried, and still land in storage below.
	if vec, err := window.Vector(snap); err != nil {
		h.metrics.RecordError("feature_vector")
	} else {
		full, err := h.tracker.Push(snap.Instrument, vec)
		if err != nil {
			h.metrics.RecordError("tracker_push")
		} else if full {
			h.metrics.RecordWindowReady(snap.Instrument)
		}
	}

	start := time.Now()
	err := h.store.Store(ctx, snap)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	return nil
}

func wireLevels(pairs [][2]float64) []models.PriceLevel {
	out := make([]models.PriceLevel, len(pairs))
	for i, p := range pairs {
		out[i] = models.PriceLevel{Price: p[0], Size: p[1]}
	}
	return out
}

var _ pkgkafka.MessageHandler = (*KafkaSnapshotsHandler)(nil)
