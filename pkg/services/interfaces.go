package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/autoflow-hq/core/pkg/database"
	"github.com/autoflow-hq/core/pkg/models"
)

// TaskStore is the persistence surface the scheduled task service needs.
// *database.Queries satisfies it.
type TaskStore interface {
	CreateScheduledTask(ctx context.Context, task *models.ScheduledTask) (*models.ScheduledTask, error)
	GetScheduledTask(ctx context.Context, id uuid.UUID) (*models.ScheduledTask, error)
	ListScheduledTasks(ctx context.Context, params database.ListScheduledTasksParams) ([]models.ScheduledTask, error)
	CountScheduledTasks(ctx context.Context, params database.ListScheduledTasksParams) (int64, error)
	UpdateScheduledTask(ctx context.Context, task *models.ScheduledTask) (*models.ScheduledTask, error)
	DeleteScheduledTask(ctx context.Context, id uuid.UUID) (int64, error)
	ListDueScheduledTasks(ctx context.Context, now time.Time) ([]models.ScheduledTask, error)
	UpdateTaskRunTimes(ctx context.Context, id uuid.UUID, lastRunAt, nextRunAt *time.Time) error
	ParkScheduledTask(ctx context.Context, id uuid.UUID, at time.Time) error
}

// RunStore is the persistence surface the run tracker needs.
// *database.Queries satisfies it.
type RunStore interface {
	CreatePipelineRun(ctx context.Context, run *models.PipelineRun) (*models.PipelineRun, error)
	GetPipelineRun(ctx context.Context, id uuid.UUID) (*models.PipelineRun, error)
	MarkPipelineRunRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) (int64, error)
	CompletePipelineRun(ctx context.Context, params database.CompletePipelineRunParams) (int64, error)
	ListPipelineRuns(ctx context.Context, params database.ListPipelineRunsParams) ([]models.PipelineRun, error)
	CountPipelineRuns(ctx context.Context, params database.ListPipelineRunsParams) (int64, error)
	GetRunStats(ctx context.Context, pipelineName *string, since *time.Time) (*models.RunStats, error)
	DeletePipelineRunsForTask(ctx context.Context, taskID uuid.UUID) (int64, error)
	DeletePipelineRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
