package repository

import (
	"context"
	"database/sql"
	"fmt"

	"LobCast/internal/domain/models"
	"LobCast/internal/domain/repository"
	pkgkafka "LobCast/pkg/kafka"
)

// ClickHousePredictionStore implements PredictionStore for ClickHouse.
type ClickHousePredictionStore struct {
	db    *sql.DB
	table string
}

// NewClickHousePredictionStore creates ClickHouse prediction storage.
func NewClickHousePredictionStore(db *sql.DB, table string) repository.PredictionStore {
	return &ClickHousePredictionStore{db: db, table: table}
}

func (s *ClickHousePredictionStore) Init(ctx context.Context) error {
	return nil // Schema init in pkg
}

func (s *ClickHousePredictionStore) Store(ctx context.Context, p *models.Prediction) error {
	q := fmt.Sprintf("INSERT INTO %s (instrument, ts, run_id, horizon, p_down, p_stationary, p_up, class, confidence, source) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, q,
		p.Instrument,
		p.Timestamp,
		p.RunID,
		p.Horizon,
		prob(p.Probabilities, models.ClassDown),
		prob(p.Probabilities, models.ClassStationary),
		prob(p.Probabilities, models.ClassUp),
		int8(p.Class),
		p.Confidence,
		p.Source,
	)
	return err
}

func (s *ClickHousePredictionStore) Latest(ctx context.Context, instrument string, limit int) ([]*models.Prediction, error) {
	q := fmt.Sprintf("SELECT instrument, ts, run_id, horizon, p_down, p_stationary, p_up, class, confidence, source FROM %s WHERE instrument = ? ORDER BY ts DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, instrument, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var preds []*models.Prediction
	for rows.Next() {
		var (
			p          models.Prediction
			down       float64
			stationary float64
			up         float64
			class      int8
		)
		if err := rows.Scan(&p.Instrument, &p.Timestamp, &p.RunID, &p.Horizon,
			&down, &stationary, &up, &class, &p.Confidence, &p.Source); err != nil {
			return nil, err
		}
		p.Probabilities = []float64{down, stationary, up}
		p.Class = int(class)
		preds = append(preds, &p)
	}
	return preds, rows.Err()
}

func prob(probs []float64, class int) float64 {
	if class < 0 || class >= len(probs) {
		return 0
	}
	return probs[class]
}

// KafkaPredictionPublisher implements PredictionPublisher for Kafka,
// keyed by instrument.
type KafkaPredictionPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPredictionPublisher creates a Kafka prediction publisher.
func NewKafkaPredictionPublisher(producer *pkgkafka.Producer, topic string) repository.PredictionPublisher {
	return &KafkaPredictionPublisher{producer: producer, topic: topic}
}

func (p *KafkaPredictionPublisher) PublishPrediction(ctx context.Context, pred *models.Prediction) error {
	return p.producer.Publish(ctx, p.topic, []byte(pred.Instrument), map[string]interface{}{
		"instrument":    pred.Instrument,
		"ts":            pred.Timestamp.UnixMilli(),
		"run_id":        pred.RunID,
		"horizon":       pred.Horizon,
		"probabilities": pred.Probabilities,
		"class":         pred.Class,
		"class_name":    pred.ClassName(),
		"confidence":    pred.Confidence,
	})
}

func (p *KafkaPredictionPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
