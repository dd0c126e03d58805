package runtime

import (
	"context"
	"fmt"

	"LobCast/internal/domain/models"
	domsvc "LobCast/internal/domain/service"
	"LobCast/pkg/config"
)

// HTTPTrainer starts fitting on the runtime and polls its progress.
type HTTPTrainer struct {
	base *HTTPServiceBase
}

func NewHTTPTrainer(cfg *config.Config) *HTTPTrainer {
	return &HTTPTrainer{base: NewHTTPServiceBase(cfg)}
}

type trainStartRequest struct {
	RunID           string  `json:"run_id"`
	BatchSize       int     `json:"batch_size"`
	Epochs          int     `json:"epochs"`
	ValidationSplit float64 `json:"validation_split"`
	ShuffleSeed     int64   `json:"shuffle_seed"`
}

type trainStatusRequest struct {
	RunID string `json:"run_id"`
}

// Start begins fitting the compiled model against the uploaded dataset.
// The shuffle seed travels with the request so the runtime's shuffling is
// reproducible without any process-global state.
func (t *HTTPTrainer) Start(ctx context.Context, run *models.Run) error {
	var resp statusResponse
	err := t.base.PostJSONWithRetry(ctx, "/train/start", trainStartRequest{
		RunID:           run.ID,
		BatchSize:       run.BatchSize,
		Epochs:          run.Epochs,
		ValidationSplit: run.ValidationSplit,
		ShuffleSeed:     run.ShuffleSeed,
	}, &resp, t.base.retries)
	if err != nil {
		return fmt.Errorf("train start: %w", err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("train start rejected: %s", resp.Detail)
	}
	return nil
}

// Status polls the runtime for the run's current progress.
func (t *HTTPTrainer) Status(ctx context.Context, runID string) (models.TrainingProgress, error) {
	var p models.TrainingProgress
	if err := t.base.PostJSON(ctx, "/train/status", trainStatusRequest{RunID: runID}, &p); err != nil {
		return p, fmt.Errorf("train status: %w", err)
	}
	return p, nil
}

var _ domsvc.Trainer = (*HTTPTrainer)(nil)
