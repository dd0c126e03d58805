package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"LobCast/internal/domain/models"
	"LobCast/internal/domain/repository"
	pkgkafka "LobCast/pkg/kafka"
)

// ClickHouseSnapshotStore implements SnapshotStore for ClickHouse. Book
// sides are stored as parallel price/size arrays, best level first.
type ClickHouseSnapshotStore struct {
	db    *sql.DB
	table string
}

// NewClickHouseSnapshotStore creates ClickHouse snapshot storage.
func NewClickHouseSnapshotStore(db *sql.DB, table string) repository.SnapshotStore {
	return &ClickHouseSnapshotStore{db: db, table: table}
}

func (s *ClickHouseSnapshotStore) Init(ctx context.Context) error {
	return nil // Schema init in pkg
}

func (s *ClickHouseSnapshotStore) Store(ctx context.Context, snap *models.Snapshot) error {
	q := fmt.Sprintf("INSERT INTO %s (instrument, ts, seq, ask_prices, ask_sizes, bid_prices, bid_sizes) VALUES (?, ?, ?, ?, ?, ?, ?)", s.table)
	askP, askS := sideArrays(snap.Asks)
	bidP, bidS := sideArrays(snap.Bids)
	_, err := s.db.ExecContext(ctx, q,
		snap.Instrument,
		snap.Timestamp,
		snap.Seq,
		askP, askS,
		bidP, bidS,
	)
	return err
}

func (s *ClickHouseSnapshotStore) StoreBatch(ctx context.Context, snaps []*models.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	// Multi-row VALUES to reduce round-trips. Rows are wide, so chunks are
	// smaller than for scalar tables.
	const chunkSize = 500
	for start := 0; start < len(snaps); start += chunkSize {
		end := start + chunkSize
		if end > len(snaps) {
			end = len(snaps)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, snap := range snaps[start:end] {
			if snap == nil || snap.Instrument == "" || snap.Timestamp.IsZero() {
				continue
			}
			askP, askS := sideArrays(snap.Asks)
			bidP, bidS := sideArrays(snap.Bids)
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				snap.Instrument,
				snap.Timestamp,
				snap.Seq,
				askP, askS,
				bidP, bidS,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (instrument, ts, seq, ask_prices, ask_sizes, bid_prices, bid_sizes) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClickHouseSnapshotStore) Query(ctx context.Context, instrument string, from, to time.Time, limit int) ([]*models.Snapshot, error) {
	q := fmt.Sprintf("SELECT instrument, ts, seq, ask_prices, ask_sizes, bid_prices, bid_sizes FROM %s WHERE instrument = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, instrument, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []*models.Snapshot
	for rows.Next() {
		var (
			snap       models.Snapshot
			askP, askS []float64
			bidP, bidS []float64
		)
		if err := rows.Scan(&snap.Instrument, &snap.Timestamp, &snap.Seq, &askP, &askS, &bidP, &bidS); err != nil {
			return nil, err
		}
		snap.Asks = zipLevels(askP, askS)
		snap.Bids = zipLevels(bidP, bidS)
		snaps = append(snaps, &snap)
	}
	return snaps, rows.Err()
}

func (s *ClickHouseSnapshotStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseSnapshotStore) Close() error {
	return nil // Managed by pkg
}

func sideArrays(levels []models.PriceLevel) (prices, sizes []float64) {
	prices = make([]float64, len(levels))
	sizes = make([]float64, len(levels))
	for i, lv := range levels {
		prices[i] = lv.Price
		sizes[i] = lv.Size
	}
	return prices, sizes
}

func zipLevels(prices, sizes []float64) []models.PriceLevel {
	n := len(prices)
	if len(sizes) < n {
		n = len(sizes)
	}
	out := make([]models.PriceLevel, n)
	for i := 0; i < n; i++ {
		out[i] = models.PriceLevel{Price: prices[i], Size: sizes[i]}
	}
	return out
}

func levelPairs(levels []models.PriceLevel) [][2]float64 {
	out := make([][2]float64, len(levels))
	for i, lv := range levels {
		out[i] = [2]float64{lv.Price, lv.Size}
	}
	return out
}

// KafkaSnapshotPublisher implements Publisher for Kafka. Messages are keyed
// by instrument so one instrument's snapshots stay ordered.
type KafkaSnapshotPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaSnapshotPublisher creates a Kafka snapshot publisher.
func NewKafkaSnapshotPublisher(producer *pkgkafka.Producer, topic string) repository.Publisher {
	return &KafkaSnapshotPublisher{producer: producer, topic: topic}
}

func (p *KafkaSnapshotPublisher) Publish(ctx context.Context, snap *models.Snapshot) error {
	return p.producer.Publish(ctx, p.topic, []byte(snap.Instrument), snapshotPayload(snap))
}

func (p *KafkaSnapshotPublisher) PublishBatch(ctx context.Context, snaps []*models.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(snaps))
	for i, snap := range snaps {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(snap.Instrument),
			Value: snapshotPayload(snap),
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaSnapshotPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

func snapshotPayload(snap *models.Snapshot) map[string]interface{} {
	return map[string]interface{}{
		"instrument": snap.Instrument,
		"ts":         snap.Timestamp.UnixMilli(),
		"seq":        snap.Seq,
		"asks":       levelPairs(snap.Asks),
		"bids":       levelPairs(snap.Bids),
	}
}
