package service

import (
	"context"

	"LobCast/internal/domain/models"
	"LobCast/internal/fi2010"
)

// Runtime controls the external tensor process lifecycle.
type Runtime interface {
	Init(ctx context.Context, opts models.RuntimeOptions) error
	Ping(ctx context.Context) error
}

// ModelCompiler assembles the network for a run and compiles it on the
// runtime.
type ModelCompiler interface {
	Compile(ctx context.Context, run *models.Run) error
}

// DatasetUploader ships a windowed dataset to the runtime. Role names the
// split ("train" or "test").
type DatasetUploader interface {
	Upload(ctx context.Context, runID, role string, ds *fi2010.WindowSet) error
}

// Trainer starts fitting and reports progress.
type Trainer interface {
	Start(ctx context.Context, run *models.Run) error
	Status(ctx context.Context, runID string) (models.TrainingProgress, error)
}

// Predictor scores one window. Rows are time steps, columns features.
type Predictor interface {
	Predict(ctx context.Context, window [][]float64) (*models.Prediction, error)
}
