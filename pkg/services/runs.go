package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/autoflow-hq/core/pkg/database"
	"github.com/autoflow-hq/core/pkg/logger"
	"github.com/autoflow-hq/core/pkg/models"
	"github.com/autoflow-hq/core/pkg/pipeline"
)

// RunService is the run tracker: the sole writer of a run's status
// transitions. Each run's writes are only ever issued by the one coordinator
// call that owns it.
type RunService struct {
	store  RunStore
	logger *logger.Logger
}

// NewRunService creates a run tracker over the given store.
func NewRunService(store RunStore, log *logger.Logger) *RunService {
	if log == nil {
		log = logger.New("run-tracker")
	}
	return &RunService{store: store, logger: log}
}

// CreateRun opens a run record in pending state.
func (s *RunService) CreateRun(ctx context.Context, pipelineName string, ec pipeline.ExecutionContext, input map[string]any) (*models.PipelineRun, error) {
	run := &models.PipelineRun{
		ID:           uuid.New(),
		PipelineName: pipelineName,
		TriggerType:  string(ec.Source),
		UserID:       ec.UserID,
		InputData:    input,
		RunMetadata:  ec.Metadata,
		Status:       models.RunStatusPending,
	}

	created, err := s.store.CreatePipelineRun(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("failed to create run record: %w", err)
	}
	return created, nil
}

// MarkRunning transitions pending → running and returns the recorded start
// time.
func (s *RunService) MarkRunning(ctx context.Context, id uuid.UUID) (time.Time, error) {
	startedAt := time.Now().UTC()
	rows, err := s.store.MarkPipelineRunRunning(ctx, id, startedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to mark run running: %w", err)
	}
	if rows == 0 {
		return time.Time{}, fmt.Errorf("run %s is no longer pending", id)
	}
	return startedAt, nil
}

// Complete transitions a run to success or error from the pipeline's result.
// durationMs is computed only when the start time is known; a run that failed
// before starting keeps it null. Returns false when the run was already
// terminal, in which case nothing was written.
func (s *RunService) Complete(ctx context.Context, id uuid.UUID, result pipeline.Result, startedAt *time.Time) (bool, error) {
	completedAt := time.Now().UTC()

	status := models.RunStatusError
	var errMsg *string
	if result.Success {
		status = models.RunStatusSuccess
	} else {
		msg := result.Error
		errMsg = &msg
	}

	var durationMs *int64
	if startedAt != nil {
		ms := completedAt.Sub(*startedAt).Milliseconds()
		durationMs = &ms
	}

	rows, err := s.store.CompletePipelineRun(ctx, database.CompletePipelineRunParams{
		ID:           id,
		Status:       status,
		OutputData:   result.Output,
		ErrorMessage: errMsg,
		RunMetadata:  result.Metadata,
		CompletedAt:  completedAt,
		DurationMs:   durationMs,
	})
	if err != nil {
		return false, fmt.Errorf("failed to complete run: %w", err)
	}
	return rows > 0, nil
}

// RecordFailure writes a terminal error run in one step, for failures that
// happen before or outside a tracked execution (e.g. a dispatch whose
// pipeline no longer resolves).
func (s *RunService) RecordFailure(ctx context.Context, pipelineName string, ec pipeline.ExecutionContext, input map[string]any, errMsg string) error {
	run, err := s.CreateRun(ctx, pipelineName, ec, input)
	if err != nil {
		return err
	}
	_, err = s.Complete(ctx, run.ID, pipeline.Fail(errMsg), nil)
	return err
}

// Cancel marks a pending or running run as cancelled. Cancellation is
// cooperative: an in-flight execute call is not interrupted, and its result
// is discarded once the run is terminal.
func (s *RunService) Cancel(ctx context.Context, id uuid.UUID) (*models.PipelineRun, error) {
	run, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return nil, &pipeline.ValidationError{Message: fmt.Sprintf("run %s is already %s", id, run.Status)}
	}

	completedAt := time.Now().UTC()
	var durationMs *int64
	if run.StartedAt != nil {
		ms := completedAt.Sub(*run.StartedAt).Milliseconds()
		durationMs = &ms
	}

	rows, err := s.store.CompletePipelineRun(ctx, database.CompletePipelineRunParams{
		ID:          id,
		Status:      models.RunStatusCancelled,
		CompletedAt: completedAt,
		DurationMs:  durationMs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to cancel run: %w", err)
	}
	if rows == 0 {
		return nil, &pipeline.ValidationError{Message: fmt.Sprintf("run %s is already terminal", id)}
	}

	return s.Get(ctx, id)
}

// Get fetches one run by id.
func (s *RunService) Get(ctx context.Context, id uuid.UUID) (*models.PipelineRun, error) {
	run, err := s.store.GetPipelineRun(ctx, id)
	if err != nil {
		return nil, &pipeline.NotFoundError{Resource: "run", Key: id.String()}
	}
	return run, nil
}

// ListRunsParams is the run-history filter surface.
type ListRunsParams struct {
	PipelineName  *string
	Status        *models.RunStatus
	TriggerType   *string
	UserID        *uuid.UUID
	StartedAfter  *time.Time
	StartedBefore *time.Time
	SuccessOnly   bool
	ErrorOnly     bool
	Page          int
	PageSize      int
}

// List returns a page of run history plus the total match count.
func (s *RunService) List(ctx context.Context, params ListRunsParams) ([]models.PipelineRun, int64, error) {
	page := params.Page
	if page < 1 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	status := params.Status
	if params.SuccessOnly {
		success := models.RunStatusSuccess
		status = &success
	} else if params.ErrorOnly {
		errStatus := models.RunStatusError
		status = &errStatus
	}

	dbParams := database.ListPipelineRunsParams{
		PipelineName:  params.PipelineName,
		Status:        status,
		TriggerType:   params.TriggerType,
		UserID:        params.UserID,
		StartedAfter:  params.StartedAfter,
		StartedBefore: params.StartedBefore,
		Limit:         int32(pageSize),
		Offset:        int32((page - 1) * pageSize),
	}

	runs, err := s.store.ListPipelineRuns(ctx, dbParams)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	total, err := s.store.CountPipelineRuns(ctx, dbParams)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return runs, total, nil
}

// Stats aggregates run history, optionally for one pipeline over a trailing
// number of hours.
func (s *RunService) Stats(ctx context.Context, pipelineName *string, sinceHours *int) (*models.RunStats, error) {
	var since *time.Time
	if sinceHours != nil && *sinceHours > 0 {
		t := time.Now().UTC().Add(-time.Duration(*sinceHours) * time.Hour)
		since = &t
	}
	stats, err := s.store.GetRunStats(ctx, pipelineName, since)
	if err != nil {
		return nil, fmt.Errorf("failed to compute run stats: %w", err)
	}
	return stats, nil
}

// Prune removes terminal runs older than the retention window.
func (s *RunService) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	deleted, err := s.store.DeletePipelineRunsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	if deleted > 0 {
		s.logger.Info().
			Str("action", "runs_pruned").
			Int64("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("Pruned old run history")
	}
	return deleted, nil
}
