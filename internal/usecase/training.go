package usecase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"LobCast/internal/domain/models"
	domrepo "LobCast/internal/domain/repository"
	domsvc "LobCast/internal/domain/service"
	"LobCast/pkg/config"
	xhttp "LobCast/pkg/http"
	"LobCast/pkg/logger"
	"LobCast/pkg/queue"
)

// TrainingTaskType is the queue message type for training jobs.
const TrainingTaskType = "training_run"

// TrainingTask is the queue payload; the run itself lives in the store.
type TrainingTask struct {
	RunID string `json:"run_id"`
}

// maxStatusMisses bounds consecutive failed status polls before a run is
// declared lost.
const maxStatusMisses = 5

// TrainingUseCase owns the run lifecycle: creation, queuing and the
// compile, upload, train, poll sequence against the tensor runtime.
type TrainingUseCase struct {
	cfg      *config.Config
	log      *logger.Logger
	store    domrepo.RunStore
	builder  *DatasetBuilder
	runtime  domsvc.Runtime
	compiler domsvc.ModelCompiler
	uploader domsvc.DatasetUploader
	trainer  domsvc.Trainer
	queue    queue.QueueService
	metrics  domrepo.Metrics

	active int32
}

// NewTrainingUseCase creates the training orchestrator. A nil queue makes
// CreateRun execute runs on a background goroutine instead of enqueuing.
func NewTrainingUseCase(
	cfg *config.Config,
	log *logger.Logger,
	store domrepo.RunStore,
	builder *DatasetBuilder,
	runtime domsvc.Runtime,
	compiler domsvc.ModelCompiler,
	uploader domsvc.DatasetUploader,
	trainer domsvc.Trainer,
	q queue.QueueService,
	metrics domrepo.Metrics,
) *TrainingUseCase {
	return &TrainingUseCase{
		cfg:      cfg,
		log:      log,
		store:    store,
		builder:  builder,
		runtime:  runtime,
		compiler: compiler,
		uploader: uploader,
		trainer:  trainer,
		queue:    q,
		metrics:  metrics,
	}
}

// CreateRun persists a queued run and hands it to the training queue.
func (u *TrainingUseCase) CreateRun(ctx context.Context, req *models.CreateRunRequest) (*models.Run, error) {
	run := &models.Run{
		ID:              uuid.NewString(),
		Status:          models.RunQueued,
		WindowLength:    req.WindowLength,
		Horizon:         req.Horizon,
		NumFeatures:     u.cfg.Dataset.NumFeatures,
		RecurrentUnits:  req.RecurrentUnits,
		BatchSize:       req.BatchSize,
		Epochs:          req.Epochs,
		ValidationSplit: req.ValidationSplit,
		ShuffleSeed:     req.ShuffleSeed,
		Device:          req.Device,
	}
	if run.Device == "" {
		run.Device = u.cfg.Runtime.Device
	}

	if err := u.store.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	u.metrics.RecordRunState(string(models.RunQueued))
	u.log.Info("training run created",
		logger.String("run_id", run.ID),
		logger.Int("window_length", run.WindowLength),
		logger.Int("horizon", run.Horizon),
		logger.Int64("shuffle_seed", run.ShuffleSeed))

	if u.queue != nil {
		if err := u.queue.PublishMessage(ctx, TrainingTaskType, TrainingTask{RunID: run.ID}); err != nil {
			_ = u.fail(ctx, run, fmt.Errorf("enqueue: %w", err))
			return nil, fmt.Errorf("enqueue run: %w", err)
		}
		return run, nil
	}

	go func() {
		if err := u.Execute(context.Background(), run.ID); err != nil {
			u.log.Error("training run failed",
				logger.String("run_id", run.ID),
				logger.Error(err))
		}
	}()
	return run, nil
}

// Get returns a run by id, as a 404 AppError when unknown.
func (u *TrainingUseCase) Get(ctx context.Context, id string) (*models.Run, error) {
	run, err := u.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, xhttp.NotFoundErrorf("run %s not found", id)
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// List returns recent runs, optionally filtered by status.
func (u *TrainingUseCase) List(ctx context.Context, status models.RunStatus, limit int) ([]*models.Run, error) {
	if status != "" && !status.Valid() {
		return nil, xhttp.BadRequestErrorf("unknown status %q", status)
	}
	runs, err := u.store.List(ctx, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// EpochHistory returns the recorded training curve of a run, oldest epoch
// first. The run must exist; a run without recorded epochs yields an empty
// history.
func (u *TrainingUseCase) EpochHistory(ctx context.Context, id string) ([]*models.EpochMetric, error) {
	if _, err := u.Get(ctx, id); err != nil {
		return nil, err
	}
	metrics, err := u.store.Epochs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("epoch history: %w", err)
	}
	return metrics, nil
}

// Execute drives one run through the runtime: init, compile, build and
// upload datasets, start training and poll to completion.
func (u *TrainingUseCase) Execute(ctx context.Context, runID string) error {
	run, err := u.Get(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		u.log.Warn("run already finished",
			logger.String("run_id", run.ID),
			logger.String("status", string(run.Status)))
		return nil
	}

	u.metrics.SetActiveRuns(int(atomic.AddInt32(&u.active, 1)))
	defer func() { u.metrics.SetActiveRuns(int(atomic.AddInt32(&u.active, -1))) }()

	opts := models.RuntimeOptions{Device: run.Device, MemoryGrowth: u.cfg.Runtime.MemoryGrowth}
	if err := u.runtime.Init(ctx, opts); err != nil {
		return u.fail(ctx, run, fmt.Errorf("runtime init: %w", err))
	}

	if err := u.advance(ctx, run, models.RunCompiling); err != nil {
		return err
	}
	if err := u.compiler.Compile(ctx, run); err != nil {
		return u.fail(ctx, run, fmt.Errorf("compile: %w", err))
	}

	train, test, err := u.builder.BuildFor(run)
	if err != nil {
		return u.fail(ctx, run, err)
	}
	run.TrainSamples = train.Len()
	run.TestSamples = test.Len()
	u.log.Info("datasets built",
		logger.String("run_id", run.ID),
		logger.Int("train_samples", train.Len()),
		logger.Int("test_samples", test.Len()),
		logger.Int("window_length", run.WindowLength))

	if err := u.advance(ctx, run, models.RunUploading); err != nil {
		return err
	}
	if err := u.uploader.Upload(ctx, run.ID, "train", train); err != nil {
		return u.fail(ctx, run, fmt.Errorf("upload train: %w", err))
	}
	if err := u.uploader.Upload(ctx, run.ID, "test", test); err != nil {
		return u.fail(ctx, run, fmt.Errorf("upload test: %w", err))
	}

	run.StartedAt = time.Now().UTC()
	if err := u.advance(ctx, run, models.RunTraining); err != nil {
		return err
	}
	if err := u.trainer.Start(ctx, run); err != nil {
		return u.fail(ctx, run, fmt.Errorf("start training: %w", err))
	}

	return u.poll(ctx, run)
}

// poll tracks runtime progress until the run finishes. A run that failed on
// the runtime is recorded as failed and not returned as an error; requeuing
// it would only repeat the same training.
//
// The training curve is sampled at poll resolution: each epoch's last
// observed metrics are appended when the epoch counter moves on, so epochs
// shorter than the poll interval may leave no point.
func (u *TrainingUseCase) poll(ctx context.Context, run *models.Run) error {
	ticker := time.NewTicker(u.cfg.Training.PollInterval)
	defer ticker.Stop()

	misses := 0
	last := models.TrainingProgress{
		Epoch:       run.Epoch,
		Loss:        run.Loss,
		Accuracy:    run.Accuracy,
		ValLoss:     run.ValLoss,
		ValAccuracy: run.ValAccuracy,
	}
	for {
		select {
		case <-ctx.Done():
			// Shutdown mid-run: the runtime keeps training, the store
			// keeps the last polled state.
			u.log.Warn("training poll interrupted",
				logger.String("run_id", run.ID),
				logger.Error(ctx.Err()))
			return ctx.Err()
		case <-ticker.C:
			p, err := u.trainer.Status(ctx, run.ID)
			if err != nil {
				misses++
				u.metrics.RecordError("train_status")
				if misses >= maxStatusMisses {
					return u.fail(ctx, run, fmt.Errorf("runtime unreachable after %d polls: %w", misses, err))
				}
				continue
			}
			misses = 0

			if p.Epoch > last.Epoch && last.Epoch > 0 {
				u.recordEpoch(ctx, run.ID, last)
			}
			last = p

			run.Epoch = p.Epoch
			run.Loss = p.Loss
			run.Accuracy = p.Accuracy
			run.ValLoss = p.ValLoss
			run.ValAccuracy = p.ValAccuracy
			u.metrics.RecordTrainingProgress(p.Epoch, p.Loss, p.Accuracy)

			if !p.Done() {
				if err := u.store.Update(ctx, run); err != nil {
					u.log.Warn("progress update failed",
						logger.String("run_id", run.ID),
						logger.Error(err))
				}
				continue
			}

			run.FinishedAt = time.Now().UTC()
			if p.Epoch > 0 {
				u.recordEpoch(ctx, run.ID, p)
			}
			if p.State == "failed" {
				run.Error = p.Message
				u.finish(ctx, run, models.RunFailed)
				return nil
			}
			u.finish(ctx, run, models.RunCompleted)
			return nil
		}
	}
}

// recordEpoch appends one point of the training curve. Failures are logged
// and dropped; the run row stays the source of truth.
func (u *TrainingUseCase) recordEpoch(ctx context.Context, runID string, p models.TrainingProgress) {
	m := &models.EpochMetric{
		RunID:       runID,
		Epoch:       p.Epoch,
		Loss:        p.Loss,
		Accuracy:    p.Accuracy,
		ValLoss:     p.ValLoss,
		ValAccuracy: p.ValAccuracy,
		Timestamp:   time.Now().UTC(),
	}
	if err := u.store.AppendEpoch(ctx, m); err != nil {
		u.metrics.RecordError("epoch_append")
		u.log.Warn("epoch append failed",
			logger.String("run_id", runID),
			logger.Int("epoch", p.Epoch),
			logger.Error(err))
	}
}

func (u *TrainingUseCase) advance(ctx context.Context, run *models.Run, status models.RunStatus) error {
	run.Status = status
	if err := u.store.Update(ctx, run); err != nil {
		return fmt.Errorf("advance to %s: %w", status, err)
	}
	u.metrics.RecordRunState(string(status))
	u.log.Info("run advanced",
		logger.String("run_id", run.ID),
		logger.String("status", string(status)))
	return nil
}

func (u *TrainingUseCase) finish(ctx context.Context, run *models.Run, status models.RunStatus) {
	run.Status = status
	if err := u.store.Update(ctx, run); err != nil {
		u.log.Error("final update failed",
			logger.String("run_id", run.ID),
			logger.Error(err))
	}
	u.metrics.RecordRunState(string(status))
	u.log.Info("run finished",
		logger.String("run_id", run.ID),
		logger.String("status", string(status)),
		logger.Int("epoch", run.Epoch))
}

func (u *TrainingUseCase) fail(ctx context.Context, run *models.Run, cause error) error {
	run.Error = cause.Error()
	run.FinishedAt = time.Now().UTC()
	u.finish(ctx, run, models.RunFailed)
	u.metrics.RecordError("training")
	return cause
}
