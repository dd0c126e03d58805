package usecase

import (
	"fmt"
	"path/filepath"
	"time"

	"LobCast/internal/domain/models"
	domrepo "LobCast/internal/domain/repository"
	"LobCast/internal/fi2010"
	"LobCast/pkg/config"
)

// DatasetBuilder turns raw FI-2010 fold files into windowed train and test
// sets for a run.
type DatasetBuilder struct {
	cfg     *config.Config
	metrics domrepo.Metrics
}

func NewDatasetBuilder(cfg *config.Config, metrics domrepo.Metrics) *DatasetBuilder {
	return &DatasetBuilder{cfg: cfg, metrics: metrics}
}

// BuildFor loads the configured train file and test files and windowizes
// both with the run's window length and horizon.
func (b *DatasetBuilder) BuildFor(run *models.Run) (train, test *fi2010.WindowSet, err error) {
	h := domrepo.Horizon(run.Horizon)
	if !domrepo.IsValidHorizon(h) {
		return nil, nil, fmt.Errorf("unsupported horizon: %d events", run.Horizon)
	}
	col := h.LabelColumn()

	start := time.Now()
	train, err = b.load([]string{b.cfg.Dataset.TrainFile}, run.WindowLength, col)
	if err != nil {
		b.metrics.RecordError("dataset_train")
		return nil, nil, fmt.Errorf("train set: %w", err)
	}

	test, err = b.load(b.cfg.Dataset.TestFiles, run.WindowLength, col)
	if err != nil {
		b.metrics.RecordError("dataset_test")
		return nil, nil, fmt.Errorf("test set: %w", err)
	}

	b.metrics.RecordLatency("dataset_build", time.Since(start).Seconds())
	return train, test, nil
}

func (b *DatasetBuilder) load(files []string, length, horizonCol int) (*fi2010.WindowSet, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no fold files configured")
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = filepath.Join(b.cfg.Dataset.Dir, f)
	}
	raw, err := fi2010.LoadFiles(paths...)
	if err != nil {
		return nil, err
	}
	x, err := fi2010.ExtractFeatures(raw)
	if err != nil {
		return nil, err
	}
	y, err := fi2010.ExtractLabels(raw)
	if err != nil {
		return nil, err
	}
	return fi2010.Windowize(x, y, length, horizonCol)
}
