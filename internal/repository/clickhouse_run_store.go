package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"LobCast/internal/domain/models"
	"LobCast/internal/domain/repository"
)

const runColumns = "id, status, window_length, horizon, num_features, recurrent_units, batch_size, epochs, validation_split, shuffle_seed, device, train_samples, test_samples, epoch, loss, accuracy, val_loss, val_accuracy, error, created_at, updated_at, started_at, finished_at"

const epochColumns = "run_id, epoch, loss, accuracy, val_loss, val_accuracy, ts"

// ClickHouseRunStore implements RunStore on a ReplacingMergeTree table:
// every update inserts a full row and reads collapse to the newest version
// per id. Epoch metrics go to a plain MergeTree table keyed by run and
// epoch; they are append-only.
type ClickHouseRunStore struct {
	db     *sql.DB
	table  string
	epochs string
}

// NewClickHouseRunStore creates ClickHouse run storage.
func NewClickHouseRunStore(db *sql.DB, table, epochsTable string) repository.RunStore {
	return &ClickHouseRunStore{db: db, table: table, epochs: epochsTable}
}

func (s *ClickHouseRunStore) Init(ctx context.Context) error {
	return nil // Schema init in pkg
}

func (s *ClickHouseRunStore) Create(ctx context.Context, run *models.Run) error {
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	return s.insert(ctx, run)
}

// Update inserts a new row version; the replacing merge keeps the one with
// the greatest updated_at.
func (s *ClickHouseRunStore) Update(ctx context.Context, run *models.Run) error {
	run.UpdatedAt = time.Now().UTC()
	return s.insert(ctx, run)
}

func (s *ClickHouseRunStore) insert(ctx context.Context, run *models.Run) error {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table, runColumns)
	_, err := s.db.ExecContext(ctx, q,
		run.ID,
		string(run.Status),
		run.WindowLength,
		run.Horizon,
		run.NumFeatures,
		run.RecurrentUnits,
		run.BatchSize,
		run.Epochs,
		run.ValidationSplit,
		run.ShuffleSeed,
		run.Device,
		run.TrainSamples,
		run.TestSamples,
		run.Epoch,
		run.Loss,
		run.Accuracy,
		run.ValLoss,
		run.ValAccuracy,
		run.Error,
		run.CreatedAt,
		run.UpdatedAt,
		nullTime(run.StartedAt),
		nullTime(run.FinishedAt),
	)
	return err
}

// Get returns sql.ErrNoRows when no run has this id.
func (s *ClickHouseRunStore) Get(ctx context.Context, id string) (*models.Run, error) {
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE id = ?", runColumns, s.table)
	rows, err := s.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, sql.ErrNoRows
	}
	return scanRun(rows)
}

func (s *ClickHouseRunStore) List(ctx context.Context, status models.RunStatus, limit int) ([]*models.Run, error) {
	q := fmt.Sprintf("SELECT %s FROM %s FINAL", runColumns, s.table)
	args := []interface{}{}
	if status != "" {
		q += " WHERE status = ?"
		args = append(args, string(status))
	}
	q += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *ClickHouseRunStore) AppendEpoch(ctx context.Context, m *models.EpochMetric) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?)", s.epochs, epochColumns)
	_, err := s.db.ExecContext(ctx, q,
		m.RunID,
		m.Epoch,
		m.Loss,
		m.Accuracy,
		m.ValLoss,
		m.ValAccuracy,
		m.Timestamp,
	)
	return err
}

func (s *ClickHouseRunStore) Epochs(ctx context.Context, runID string) ([]*models.EpochMetric, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE run_id = ? ORDER BY epoch", epochColumns, s.epochs)
	rows, err := s.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []*models.EpochMetric
	for rows.Next() {
		var m models.EpochMetric
		if err := rows.Scan(&m.RunID, &m.Epoch, &m.Loss, &m.Accuracy, &m.ValLoss, &m.ValAccuracy, &m.Timestamp); err != nil {
			return nil, err
		}
		metrics = append(metrics, &m)
	}
	return metrics, rows.Err()
}

func (s *ClickHouseRunStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseRunStore) Close() error {
	return nil // Managed by pkg
}

func scanRun(rows *sql.Rows) (*models.Run, error) {
	var (
		run      models.Run
		status   string
		started  sql.NullTime
		finished sql.NullTime
	)
	if err := rows.Scan(
		&run.ID,
		&status,
		&run.WindowLength,
		&run.Horizon,
		&run.NumFeatures,
		&run.RecurrentUnits,
		&run.BatchSize,
		&run.Epochs,
		&run.ValidationSplit,
		&run.ShuffleSeed,
		&run.Device,
		&run.TrainSamples,
		&run.TestSamples,
		&run.Epoch,
		&run.Loss,
		&run.Accuracy,
		&run.ValLoss,
		&run.ValAccuracy,
		&run.Error,
		&run.CreatedAt,
		&run.UpdatedAt,
		&started,
		&finished,
	); err != nil {
		return nil, err
	}
	run.Status = models.RunStatus(status)
	if started.Valid {
		run.StartedAt = started.Time
	}
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return &run, nil
}

// nullTime maps the zero time to NULL; DateTime64 cannot hold year 1.
func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
