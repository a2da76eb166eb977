package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/autoflow-hq/core/pkg/models"
)

const pipelineRunColumns = `id, pipeline_name, trigger_type, user_id, input_data, output_data,
	error_message, run_metadata, status, started_at, completed_at, duration_ms, created_at`

func scanPipelineRun(row interface{ Scan(...any) error }) (*models.PipelineRun, error) {
	var (
		run         models.PipelineRun
		inputData   []byte
		outputData  []byte
		runMetadata []byte
	)
	err := row.Scan(
		&run.ID,
		&run.PipelineName,
		&run.TriggerType,
		&run.UserID,
		&inputData,
		&outputData,
		&run.ErrorMessage,
		&runMetadata,
		&run.Status,
		&run.StartedAt,
		&run.CompletedAt,
		&run.DurationMs,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if run.InputData, err = unmarshalJSON(inputData); err != nil {
		return nil, fmt.Errorf("failed to decode input_data: %w", err)
	}
	if run.OutputData, err = unmarshalJSON(outputData); err != nil {
		return nil, fmt.Errorf("failed to decode output_data: %w", err)
	}
	if run.RunMetadata, err = unmarshalJSON(runMetadata); err != nil {
		return nil, fmt.Errorf("failed to decode run_metadata: %w", err)
	}
	return &run, nil
}

// CreatePipelineRun inserts a new run record.
func (q *Queries) CreatePipelineRun(ctx context.Context, run *models.PipelineRun) (*models.PipelineRun, error) {
	inputData, err := marshalJSON(run.InputData)
	if err != nil {
		return nil, fmt.Errorf("failed to encode input_data: %w", err)
	}
	runMetadata, err := marshalJSON(run.RunMetadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run_metadata: %w", err)
	}

	row := q.db.QueryRow(ctx, `
		INSERT INTO pipeline_runs (
			id, pipeline_name, trigger_type, user_id, input_data, run_metadata, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+pipelineRunColumns,
		run.ID, run.PipelineName, run.TriggerType, run.UserID, inputData,
		runMetadata, run.Status,
	)
	return scanPipelineRun(row)
}

// GetPipelineRun fetches one run by id.
func (q *Queries) GetPipelineRun(ctx context.Context, id uuid.UUID) (*models.PipelineRun, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+pipelineRunColumns+` FROM pipeline_runs WHERE id = $1`, id)
	return scanPipelineRun(row)
}

// MarkPipelineRunRunning transitions pending → running. The status guard
// keeps the transition monotonic; zero rows affected means the run was no
// longer pending.
func (q *Queries) MarkPipelineRunRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE pipeline_runs
		SET status = $2, started_at = $3
		WHERE id = $1 AND status = $4`,
		id, models.RunStatusRunning, startedAt, models.RunStatusPending)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CompletePipelineRunParams carries the terminal state for a run.
type CompletePipelineRunParams struct {
	ID           uuid.UUID
	Status       models.RunStatus
	OutputData   map[string]any
	ErrorMessage *string
	RunMetadata  map[string]any
	CompletedAt  time.Time
	DurationMs   *int64
}

// CompletePipelineRun transitions a non-terminal run to success, error or
// cancelled. Terminal rows are immutable: the WHERE guard refuses to touch
// them, so completed_at and duration_ms are set exactly once. Result metadata
// is overlaid onto the metadata stamped at creation, never a replacement, so
// keys like scheduled_task_id survive whatever the pipeline returns.
func (q *Queries) CompletePipelineRun(ctx context.Context, params CompletePipelineRunParams) (int64, error) {
	outputData, err := marshalJSON(params.OutputData)
	if err != nil {
		return 0, fmt.Errorf("failed to encode output_data: %w", err)
	}
	runMetadata, err := marshalJSON(params.RunMetadata)
	if err != nil {
		return 0, fmt.Errorf("failed to encode run_metadata: %w", err)
	}

	tag, err := q.db.Exec(ctx, `
		UPDATE pipeline_runs
		SET status = $2,
			output_data = COALESCE($3, output_data),
			error_message = COALESCE($4, error_message),
			run_metadata = CASE WHEN $5::jsonb IS NULL THEN run_metadata
				ELSE COALESCE(run_metadata, '{}'::jsonb) || $5::jsonb END,
			completed_at = $6,
			duration_ms = $7
		WHERE id = $1 AND status IN ($8, $9)`,
		params.ID, params.Status, outputData, params.ErrorMessage, runMetadata,
		params.CompletedAt, params.DurationMs,
		models.RunStatusPending, models.RunStatusRunning)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListPipelineRunsParams filters and paginates run history.
type ListPipelineRunsParams struct {
	PipelineName  *string
	Status        *models.RunStatus
	TriggerType   *string
	UserID        *uuid.UUID
	StartedAfter  *time.Time
	StartedBefore *time.Time
	Limit         int32
	Offset        int32
}

func buildRunFilters(params ListPipelineRunsParams) (string, []any) {
	clause := ` WHERE 1=1`
	var args []any

	if params.PipelineName != nil {
		args = append(args, *params.PipelineName)
		clause += ` AND pipeline_name = $` + strconv.Itoa(len(args))
	}
	if params.Status != nil {
		args = append(args, *params.Status)
		clause += ` AND status = $` + strconv.Itoa(len(args))
	}
	if params.TriggerType != nil {
		args = append(args, *params.TriggerType)
		clause += ` AND trigger_type = $` + strconv.Itoa(len(args))
	}
	if params.UserID != nil {
		args = append(args, *params.UserID)
		clause += ` AND user_id = $` + strconv.Itoa(len(args))
	}
	if params.StartedAfter != nil {
		args = append(args, *params.StartedAfter)
		clause += ` AND started_at >= $` + strconv.Itoa(len(args))
	}
	if params.StartedBefore != nil {
		args = append(args, *params.StartedBefore)
		clause += ` AND started_at <= $` + strconv.Itoa(len(args))
	}
	return clause, args
}

// ListPipelineRuns returns run history matching the filters, newest first.
func (q *Queries) ListPipelineRuns(ctx context.Context, params ListPipelineRunsParams) ([]models.PipelineRun, error) {
	clause, args := buildRunFilters(params)
	query := `SELECT ` + pipelineRunColumns + ` FROM pipeline_runs` + clause + ` ORDER BY created_at DESC`

	if params.Limit > 0 {
		args = append(args, params.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
		args = append(args, params.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.PipelineRun
	for rows.Next() {
		run, err := scanPipelineRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// CountPipelineRuns counts run history matching the filters.
func (q *Queries) CountPipelineRuns(ctx context.Context, params ListPipelineRunsParams) (int64, error) {
	clause, args := buildRunFilters(params)
	var count int64
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM pipeline_runs`+clause, args...).Scan(&count)
	return count, err
}

// GetRunStats aggregates run outcomes, optionally scoped to one pipeline and
// a trailing window.
func (q *Queries) GetRunStats(ctx context.Context, pipelineName *string, since *time.Time) (*models.RunStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'success'),
			COUNT(*) FILTER (WHERE status = 'error'),
			COALESCE(AVG(duration_ms) FILTER (WHERE duration_ms IS NOT NULL), 0)
		FROM pipeline_runs WHERE 1=1`
	var args []any

	if pipelineName != nil {
		args = append(args, *pipelineName)
		query += ` AND pipeline_name = $` + strconv.Itoa(len(args))
	}
	if since != nil {
		args = append(args, *since)
		query += ` AND created_at >= $` + strconv.Itoa(len(args))
	}

	var stats models.RunStats
	err := q.db.QueryRow(ctx, query, args...).Scan(
		&stats.Total, &stats.Success, &stats.Errors, &stats.AvgDurationMs)
	if err != nil {
		return nil, err
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Success) / float64(stats.Total)
	}
	return &stats, nil
}

// DeletePipelineRunsForTask removes run history recorded for one scheduled
// task. Called when the task itself is deleted by explicit user action.
func (q *Queries) DeletePipelineRunsForTask(ctx context.Context, taskID uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`DELETE FROM pipeline_runs WHERE run_metadata->>'scheduled_task_id' = $1`,
		taskID.String())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeletePipelineRunsBefore prunes terminal runs created before the cutoff.
func (q *Queries) DeletePipelineRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		DELETE FROM pipeline_runs
		WHERE created_at < $1 AND status IN ($2, $3, $4)`,
		cutoff, models.RunStatusSuccess, models.RunStatusError, models.RunStatusCancelled)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
