package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/autoflow-hq/core/pkg/models"
	"github.com/autoflow-hq/core/pkg/pipeline"
)

func TestRunService_Lifecycle(t *testing.T) {
	store := newMockRunStore()
	svc := NewRunService(store, nil)
	ctx := context.Background()

	run, err := svc.CreateRun(ctx, "sync", pipeline.NewExecutionContext(pipeline.SourceAPI), map[string]any{"n": 1})
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if run.Status != models.RunStatusPending {
		t.Errorf("new run status = %s, want pending", run.Status)
	}

	startedAt, err := svc.MarkRunning(ctx, run.ID)
	if err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}

	applied, err := svc.Complete(ctx, run.ID, pipeline.Ok(map[string]any{"out": true}), &startedAt)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !applied {
		t.Fatal("Complete() not applied on running run")
	}

	final, err := svc.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if final.Status != models.RunStatusSuccess {
		t.Errorf("final status = %s, want success", final.Status)
	}
	if final.DurationMs == nil {
		t.Error("duration should be set when start time is known")
	}
}

func TestRunService_Complete_MergesRunMetadata(t *testing.T) {
	store := newMockRunStore()
	svc := NewRunService(store, nil)
	ctx := context.Background()

	taskID := uuid.New().String()
	ec := pipeline.NewExecutionContext(pipeline.SourceCron).
		WithMeta("scheduled_task_id", taskID).
		WithMeta("attempt", "first")

	run, err := svc.CreateRun(ctx, "sync", ec, nil)
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	startedAt, err := svc.MarkRunning(ctx, run.ID)
	if err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}

	result := pipeline.Ok(nil).
		WithMeta("items_processed", 7).
		WithMeta("attempt", "second")
	if _, err := svc.Complete(ctx, run.ID, result, &startedAt); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	final, err := svc.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	// Creation-time metadata survives the overlay; the task attribution in
	// particular must not be lost to whatever the pipeline returned
	if final.RunMetadata["scheduled_task_id"] != taskID {
		t.Errorf("scheduled_task_id erased by completion: %v", final.RunMetadata)
	}
	if final.RunMetadata["items_processed"] != 7 {
		t.Errorf("result metadata missing: %v", final.RunMetadata)
	}
	if final.RunMetadata["attempt"] != "second" {
		t.Errorf("result metadata should win a key conflict: %v", final.RunMetadata)
	}
}

func TestRunService_MarkRunning_OnlyFromPending(t *testing.T) {
	store := newMockRunStore()
	svc := NewRunService(store, nil)
	ctx := context.Background()

	run, err := svc.CreateRun(ctx, "sync", pipeline.NewExecutionContext(pipeline.SourceAPI), nil)
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	if _, err := svc.MarkRunning(ctx, run.ID); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if _, err := svc.MarkRunning(ctx, run.ID); err == nil {
		t.Error("second MarkRunning() must fail, run is no longer pending")
	}
}

func TestRunService_Complete_TerminalIsImmutable(t *testing.T) {
	store := newMockRunStore()
	svc := NewRunService(store, nil)
	ctx := context.Background()

	run, err := svc.CreateRun(ctx, "sync", pipeline.NewExecutionContext(pipeline.SourceAPI), nil)
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	startedAt, err := svc.MarkRunning(ctx, run.ID)
	if err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}

	applied, err := svc.Complete(ctx, run.ID, pipeline.Ok(nil), &startedAt)
	if err != nil || !applied {
		t.Fatalf("first Complete() = %v, %v", applied, err)
	}

	first, _ := svc.Get(ctx, run.ID)

	// A second completion must be a no-op
	applied, err = svc.Complete(ctx, run.ID, pipeline.Fail("late result"), &startedAt)
	if err != nil {
		t.Fatalf("second Complete() error = %v", err)
	}
	if applied {
		t.Error("second Complete() must not be applied")
	}

	second, _ := svc.Get(ctx, run.ID)
	if second.Status != first.Status {
		t.Errorf("status changed after terminal: %s -> %s", first.Status, second.Status)
	}
	if !second.CompletedAt.Equal(*first.CompletedAt) {
		t.Error("completed_at changed after terminal")
	}
}

func TestRunService_Complete_NoDurationWithoutStart(t *testing.T) {
	store := newMockRunStore()
	svc := NewRunService(store, nil)
	ctx := context.Background()

	run, err := svc.CreateRun(ctx, "sync", pipeline.NewExecutionContext(pipeline.SourceCron), nil)
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	// Failed before starting; duration stays unset
	applied, err := svc.Complete(ctx, run.ID, pipeline.Fail("never started"), nil)
	if err != nil || !applied {
		t.Fatalf("Complete() = %v, %v", applied, err)
	}

	final, _ := svc.Get(ctx, run.ID)
	if final.DurationMs != nil {
		t.Errorf("duration = %v, want nil for run without start time", *final.DurationMs)
	}
	if final.Status != models.RunStatusError {
		t.Errorf("status = %s, want error", final.Status)
	}
}

func TestRunService_RecordFailure(t *testing.T) {
	store := newMockRunStore()
	svc := NewRunService(store, nil)

	ec := pipeline.NewExecutionContext(pipeline.SourceCron).WithMeta("scheduled_task_id", "abc")
	if err := svc.RecordFailure(context.Background(), "missing", ec, nil, "pipeline not found: missing"); err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}

	run, ok := store.onlyRun()
	if !ok {
		t.Fatalf("expected exactly one run, have %d", len(store.runs))
	}
	if run.Status != models.RunStatusError {
		t.Errorf("status = %s, want error", run.Status)
	}
	if run.ErrorMessage == nil || *run.ErrorMessage != "pipeline not found: missing" {
		t.Errorf("error message = %v", run.ErrorMessage)
	}
	if run.StartedAt != nil {
		t.Error("failure before start must not have started_at")
	}
}

func TestRunService_Cancel(t *testing.T) {
	store := newMockRunStore()
	svc := NewRunService(store, nil)
	ctx := context.Background()

	run, err := svc.CreateRun(ctx, "sync", pipeline.NewExecutionContext(pipeline.SourceAPI), nil)
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	cancelled, err := svc.Cancel(ctx, run.ID)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if cancelled.Status != models.RunStatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}

	// Cancelling a terminal run is a validation error
	if _, err := svc.Cancel(ctx, run.ID); !pipeline.IsValidation(err) {
		t.Errorf("Cancel() on terminal run error = %v, want ValidationError", err)
	}

	if _, err := svc.Cancel(ctx, uuid.New()); !pipeline.IsNotFound(err) {
		t.Errorf("Cancel() on unknown run error = %v, want NotFoundError", err)
	}
}

func TestRunService_CancelDiscardsLateResult(t *testing.T) {
	store := newMockRunStore()
	svc := NewRunService(store, nil)
	ctx := context.Background()

	run, err := svc.CreateRun(ctx, "slow", pipeline.NewExecutionContext(pipeline.SourceAPI), nil)
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	startedAt, err := svc.MarkRunning(ctx, run.ID)
	if err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}

	if _, err := svc.Cancel(ctx, run.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	// The in-flight execution finishes afterwards; its result is dropped
	applied, err := svc.Complete(ctx, run.ID, pipeline.Ok(nil), &startedAt)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if applied {
		t.Error("result applied after cancellation")
	}

	final, _ := svc.Get(ctx, run.ID)
	if final.Status != models.RunStatusCancelled {
		t.Errorf("status = %s, want cancelled", final.Status)
	}
}

func TestRunService_Prune(t *testing.T) {
	store := newMockRunStore()
	svc := NewRunService(store, nil)
	ctx := context.Background()

	old := &models.PipelineRun{ID: uuid.New(), PipelineName: "sync", Status: models.RunStatusSuccess}
	if _, err := store.CreatePipelineRun(ctx, old); err != nil {
		t.Fatalf("seed error = %v", err)
	}
	store.runs[old.ID].CreatedAt = time.Now().UTC().Add(-100 * 24 * time.Hour)

	stillPending := &models.PipelineRun{ID: uuid.New(), PipelineName: "sync", Status: models.RunStatusPending}
	if _, err := store.CreatePipelineRun(ctx, stillPending); err != nil {
		t.Fatalf("seed error = %v", err)
	}
	store.runs[stillPending.ID].CreatedAt = time.Now().UTC().Add(-100 * 24 * time.Hour)

	deleted, err := svc.Prune(ctx, 90*24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1 (non-terminal runs are kept)", deleted)
	}
	if _, ok := store.runs[stillPending.ID]; !ok {
		t.Error("pending run must survive pruning")
	}
}
