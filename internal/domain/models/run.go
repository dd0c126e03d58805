package models

import "time"

// RunStatus tracks a training run through its lifecycle.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunCompiling RunStatus = "compiling"
	RunUploading RunStatus = "uploading"
	RunTraining  RunStatus = "training"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunQueued, RunCompiling, RunUploading, RunTraining, RunCompleted, RunFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the run has finished, successfully or not.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// RuntimeOptions configures the tensor runtime before any model work.
// Device selects the compute target; MemoryGrowth asks the runtime to grab
// accelerator memory incrementally instead of reserving it all upfront.
type RuntimeOptions struct {
	Device       string `json:"device"`
	MemoryGrowth bool   `json:"memory_growth"`
}

// Run is one training job: the hyperparameters it was requested with and
// the progress reported by the runtime.
type Run struct {
	ID     string    `json:"id"`
	Status RunStatus `json:"status"`

	WindowLength    int     `json:"window_length"`
	Horizon         int     `json:"horizon"`
	NumFeatures     int     `json:"num_features"`
	RecurrentUnits  int     `json:"recurrent_units"`
	BatchSize       int     `json:"batch_size"`
	Epochs          int     `json:"epochs"`
	ValidationSplit float64 `json:"validation_split"`
	ShuffleSeed     int64   `json:"shuffle_seed"`
	Device          string  `json:"device"`

	TrainSamples int `json:"train_samples"`
	TestSamples  int `json:"test_samples"`

	Epoch       int     `json:"epoch"`
	Loss        float64 `json:"loss"`
	Accuracy    float64 `json:"accuracy"`
	ValLoss     float64 `json:"val_loss"`
	ValAccuracy float64 `json:"val_accuracy"`

	Error string `json:"error,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// EpochMetric is one point of a run's training curve. The run row only
// keeps the latest epoch, so these are appended as epochs complete.
type EpochMetric struct {
	RunID       string    `json:"run_id"`
	Epoch       int       `json:"epoch"`
	Loss        float64   `json:"loss"`
	Accuracy    float64   `json:"accuracy"`
	ValLoss     float64   `json:"val_loss"`
	ValAccuracy float64   `json:"val_accuracy"`
	Timestamp   time.Time `json:"timestamp"`
}

// TrainingProgress is one status poll from the runtime.
type TrainingProgress struct {
	State       string  `json:"state"`
	Epoch       int     `json:"epoch"`
	TotalEpochs int     `json:"total_epochs"`
	Loss        float64 `json:"loss"`
	Accuracy    float64 `json:"accuracy"`
	ValLoss     float64 `json:"val_loss"`
	ValAccuracy float64 `json:"val_accuracy"`
	Message     string  `json:"message,omitempty"`
}

// Done reports whether the runtime considers the run finished.
func (p TrainingProgress) Done() bool {
	return p.State == "completed" || p.State == "failed"
}
