package usecase

import (
	"context"
	"fmt"

	"LobCast/pkg/queue"
)

// TrainingJob adapts TrainingUseCase to the queue's Job interface.
type TrainingJob struct {
	training *TrainingUseCase
}

func NewTrainingJob(training *TrainingUseCase) *TrainingJob {
	return &TrainingJob{training: training}
}

func (j *TrainingJob) Name() string { return "training-run" }

func (j *TrainingJob) Type() string { return TrainingTaskType }

func (j *TrainingJob) Handle(ctx context.Context, payload interface{}) error {
	task, err := queue.ParsePayload[TrainingTask](payload)
	if err != nil {
		return fmt.Errorf("training payload: %w", err)
	}
	return j.training.Execute(ctx, task.RunID)
}

var _ queue.Job = (*TrainingJob)(nil)
