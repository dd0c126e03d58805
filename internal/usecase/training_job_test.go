package usecase

import (
	"context"
	"testing"

	"LobCast/internal/domain/models"
)

func TestTrainingJobExecutesRunFromQueuePayload(t *testing.T) {
	trainer := &fakeTrainer{statuses: []statusStep{
		{p: models.TrainingProgress{State: "completed", Epoch: 1, Loss: 0.4}},
	}}
	f := newTrainingFixture(t, trainer)
	f.seedRun(t, models.RunQueued)
	job := NewTrainingJob(f.uc)

	if job.Type() != TrainingTaskType {
		t.Errorf("type = %q, want %q", job.Type(), TrainingTaskType)
	}

	// A Redis round trip hands the payload back as a decoded JSON map.
	payload := map[string]interface{}{"run_id": "run-1"}
	if err := job.Handle(context.Background(), payload); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	final, err := f.store.Get(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if final.Status != models.RunCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}
}

func TestTrainingJobRejectsBadPayload(t *testing.T) {
	f := newTrainingFixture(t, &fakeTrainer{statuses: []statusStep{{}}})
	job := NewTrainingJob(f.uc)

	if err := job.Handle(context.Background(), 42); err == nil {
		t.Fatal("expected error")
	}
}
