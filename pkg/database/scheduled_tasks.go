package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/autoflow-hq/core/pkg/models"
)

const scheduledTaskColumns = `id, owner_id, name, description, pipeline_name, cron_expression,
	timezone, enabled, input_params, color, next_run_at, last_run_at, parked_at, created_at, updated_at`

func scanScheduledTask(row interface{ Scan(...any) error }) (*models.ScheduledTask, error) {
	var (
		task        models.ScheduledTask
		inputParams []byte
	)
	err := row.Scan(
		&task.ID,
		&task.OwnerID,
		&task.Name,
		&task.Description,
		&task.PipelineName,
		&task.CronExpression,
		&task.Timezone,
		&task.Enabled,
		&inputParams,
		&task.Color,
		&task.NextRunAt,
		&task.LastRunAt,
		&task.ParkedAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if task.InputParams, err = unmarshalJSON(inputParams); err != nil {
		return nil, fmt.Errorf("failed to decode input_params: %w", err)
	}
	return &task, nil
}

// CreateScheduledTask inserts a task and returns the stored row.
func (q *Queries) CreateScheduledTask(ctx context.Context, task *models.ScheduledTask) (*models.ScheduledTask, error) {
	inputParams, err := marshalJSON(task.InputParams)
	if err != nil {
		return nil, fmt.Errorf("failed to encode input_params: %w", err)
	}

	row := q.db.QueryRow(ctx, `
		INSERT INTO scheduled_tasks (
			id, owner_id, name, description, pipeline_name, cron_expression,
			timezone, enabled, input_params, color, next_run_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+scheduledTaskColumns,
		task.ID, task.OwnerID, task.Name, task.Description, task.PipelineName,
		task.CronExpression, task.Timezone, task.Enabled, inputParams,
		task.Color, task.NextRunAt,
	)
	return scanScheduledTask(row)
}

// GetScheduledTask fetches one task by id.
func (q *Queries) GetScheduledTask(ctx context.Context, id uuid.UUID) (*models.ScheduledTask, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+scheduledTaskColumns+` FROM scheduled_tasks WHERE id = $1`, id)
	return scanScheduledTask(row)
}

// ListScheduledTasksParams filters and paginates task listings.
type ListScheduledTasksParams struct {
	Enabled      *bool
	PipelineName *string
	Limit        int32
	Offset       int32
}

// ListScheduledTasks returns tasks matching the filters, newest first.
func (q *Queries) ListScheduledTasks(ctx context.Context, params ListScheduledTasksParams) ([]models.ScheduledTask, error) {
	query := `SELECT ` + scheduledTaskColumns + ` FROM scheduled_tasks WHERE 1=1`
	var args []any

	if params.Enabled != nil {
		args = append(args, *params.Enabled)
		query += ` AND enabled = $` + strconv.Itoa(len(args))
	}
	if params.PipelineName != nil {
		args = append(args, *params.PipelineName)
		query += ` AND pipeline_name = $` + strconv.Itoa(len(args))
	}

	query += ` ORDER BY created_at DESC`
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

	var tasks []models.ScheduledTask
	for rows.Next() {
		task, err := scanScheduledTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// CountScheduledTasks counts tasks matching the filters.
func (q *Queries) CountScheduledTasks(ctx context.Context, params ListScheduledTasksParams) (int64, error) {
	query := `SELECT COUNT(*) FROM scheduled_tasks WHERE 1=1`
	var args []any

	if params.Enabled != nil {
		args = append(args, *params.Enabled)
		query += ` AND enabled = $` + strconv.Itoa(len(args))
	}
	if params.PipelineName != nil {
		args = append(args, *params.PipelineName)
		query += ` AND pipeline_name = $` + strconv.Itoa(len(args))
	}

	var count int64
	err := q.db.QueryRow(ctx, query, args...).Scan(&count)
	return count, err
}

// UpdateScheduledTask writes the full mutable state of a task. The service
// layer computes the final field values before calling this.
func (q *Queries) UpdateScheduledTask(ctx context.Context, task *models.ScheduledTask) (*models.ScheduledTask, error) {
	inputParams, err := marshalJSON(task.InputParams)
	if err != nil {
		return nil, fmt.Errorf("failed to encode input_params: %w", err)
	}

	row := q.db.QueryRow(ctx, `
		UPDATE scheduled_tasks SET
			name = $2,
			description = $3,
			pipeline_name = $4,
			cron_expression = $5,
			timezone = $6,
			enabled = $7,
			input_params = $8,
			color = $9,
			next_run_at = $10,
			parked_at = $11,
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+scheduledTaskColumns,
		task.ID, task.Name, task.Description, task.PipelineName,
		task.CronExpression, task.Timezone, task.Enabled, inputParams,
		task.Color, task.NextRunAt, task.ParkedAt,
	)
	return scanScheduledTask(row)
}

// DeleteScheduledTask removes a task, returning the number of rows deleted.
func (q *Queries) DeleteScheduledTask(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM scheduled_tasks WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListDueScheduledTasks returns enabled tasks whose next_run_at has passed.
// Consulted fresh on every dispatcher tick so schedule edits take effect
// without a restart.
func (q *Queries) ListDueScheduledTasks(ctx context.Context, now time.Time) ([]models.ScheduledTask, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+scheduledTaskColumns+`
		FROM scheduled_tasks
		WHERE enabled = TRUE AND next_run_at IS NOT NULL AND next_run_at <= $1
		ORDER BY next_run_at ASC`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.ScheduledTask
	for rows.Next() {
		task, err := scanScheduledTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// UpdateTaskRunTimes advances last_run_at/next_run_at after a dispatch.
func (q *Queries) UpdateTaskRunTimes(ctx context.Context, id uuid.UUID, lastRunAt, nextRunAt *time.Time) error {
	_, err := q.db.Exec(ctx, `
		UPDATE scheduled_tasks
		SET last_run_at = $2, next_run_at = $3, updated_at = NOW()
		WHERE id = $1`, id, lastRunAt, nextRunAt)
	return err
}

// ParkScheduledTask sidelines a task whose stored schedule no longer parses.
// The task keeps its enabled flag but gets no next occurrence until a user
// edit recomputes one.
func (q *Queries) ParkScheduledTask(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := q.db.Exec(ctx, `
		UPDATE scheduled_tasks
		SET parked_at = $2, last_run_at = $2, next_run_at = NULL, updated_at = NOW()
		WHERE id = $1`, id, at)
	return err
}
