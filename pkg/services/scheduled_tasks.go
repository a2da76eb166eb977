package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/autoflow-hq/core/pkg/database"
	"github.com/autoflow-hq/core/pkg/logger"
	"github.com/autoflow-hq/core/pkg/models"
	"github.com/autoflow-hq/core/pkg/pipeline"
	"github.com/autoflow-hq/core/pkg/schedule"
)

// ScheduledTaskService owns the scheduled task lifecycle and keeps the
// invariant that a task has a next_run_at exactly when it is enabled and not
// parked.
type ScheduledTaskService struct {
	store    TaskStore
	runs     RunStore
	registry *pipeline.Registry
	engine   *schedule.Engine
	logger   *logger.Logger
	now      func() time.Time
}

// NewScheduledTaskService wires the task service.
func NewScheduledTaskService(store TaskStore, runs RunStore, registry *pipeline.Registry, engine *schedule.Engine, log *logger.Logger) *ScheduledTaskService {
	if log == nil {
		log = logger.New("scheduled-tasks")
	}
	return &ScheduledTaskService{
		store:    store,
		runs:     runs,
		registry: registry,
		engine:   engine,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateTaskParams carries the fields a user supplies when creating a task.
type CreateTaskParams struct {
	OwnerID        uuid.UUID
	Name           string
	Description    *string
	PipelineName   string
	CronExpression string
	Timezone       string
	Enabled        bool
	InputParams    map[string]any
	Color          *string
}

// Create validates and persists a new scheduled task. next_run_at is computed
// from the current moment when the task starts out enabled.
func (s *ScheduledTaskService) Create(ctx context.Context, params CreateTaskParams) (*models.ScheduledTask, error) {
	if params.Name == "" {
		return nil, &pipeline.ValidationError{Message: "task name is required"}
	}
	if params.Timezone == "" {
		params.Timezone = "UTC"
	}
	if err := s.engine.Validate(params.CronExpression, params.Timezone); err != nil {
		return nil, err
	}
	if !s.registry.Exists(params.PipelineName) {
		return nil, &pipeline.ValidationError{Message: fmt.Sprintf("unknown pipeline %q", params.PipelineName)}
	}

	task := &models.ScheduledTask{
		ID:             uuid.New(),
		OwnerID:        params.OwnerID,
		Name:           params.Name,
		Description:    params.Description,
		PipelineName:   params.PipelineName,
		CronExpression: params.CronExpression,
		Timezone:       params.Timezone,
		Enabled:        params.Enabled,
		InputParams:    params.InputParams,
		Color:          params.Color,
	}

	if task.Enabled {
		next, err := s.engine.NextRun(task.CronExpression, task.Timezone, s.now())
		if err != nil {
			return nil, err
		}
		task.NextRunAt = &next
	}

	created, err := s.store.CreateScheduledTask(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduled task: %w", err)
	}

	s.logger.Info().
		Str("action", "task_created").
		Str("task_id", created.ID.String()).
		Str("pipeline", created.PipelineName).
		Str("cron", created.CronExpression).
		Str("timezone", created.Timezone).
		Bool("enabled", created.Enabled).
		Msg("Created scheduled task")

	return created, nil
}

// Get fetches one task by id.
func (s *ScheduledTaskService) Get(ctx context.Context, id uuid.UUID) (*models.ScheduledTask, error) {
	task, err := s.store.GetScheduledTask(ctx, id)
	if err != nil {
		return nil, &pipeline.NotFoundError{Resource: "scheduled task", Key: id.String()}
	}
	return task, nil
}

// ListTasksParams paginates and filters task listings.
type ListTasksParams struct {
	Enabled      *bool
	PipelineName *string
	Page         int
	PageSize     int
}

// List returns a page of tasks plus the total match count.
func (s *ScheduledTaskService) List(ctx context.Context, params ListTasksParams) ([]models.ScheduledTask, int64, error) {
	page := params.Page
	if page < 1 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	dbParams := database.ListScheduledTasksParams{
		Enabled:      params.Enabled,
		PipelineName: params.PipelineName,
		Limit:        int32(pageSize),
		Offset:       int32((page - 1) * pageSize),
	}

	tasks, err := s.store.ListScheduledTasks(ctx, dbParams)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list scheduled tasks: %w", err)
	}
	total, err := s.store.CountScheduledTasks(ctx, dbParams)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count scheduled tasks: %w", err)
	}
	return tasks, total, nil
}

// UpdateTaskParams is an explicit-null-aware patch: Set distinguishes a field
// that was omitted from one cleared to null.
type UpdateTaskParams struct {
	Name           models.Optional[string]         `json:"name"`
	Description    models.Optional[string]         `json:"description"`
	PipelineName   models.Optional[string]         `json:"pipeline_name"`
	CronExpression models.Optional[string]         `json:"cron_expression"`
	Timezone       models.Optional[string]         `json:"timezone"`
	Enabled        models.Optional[bool]           `json:"enabled"`
	InputParams    models.Optional[map[string]any] `json:"input_params"`
	Color          models.Optional[string]         `json:"color"`
}

// Update applies a patch. Any change to the cron expression or timezone, and
// any disabled→enabled transition, forces next_run_at to be recomputed from
// the current moment; disabling clears it.
func (s *ScheduledTaskService) Update(ctx context.Context, id uuid.UUID, params UpdateTaskParams) (*models.ScheduledTask, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	wasEnabled := task.Enabled
	scheduleChanged := false

	if params.Name.Set {
		if !params.Name.Valid || params.Name.Value == "" {
			return nil, &pipeline.ValidationError{Message: "task name cannot be cleared"}
		}
		task.Name = params.Name.Value
	}
	if params.Description.Set {
		task.Description = params.Description.Ptr()
	}
	if params.PipelineName.Set {
		if !params.PipelineName.Valid {
			return nil, &pipeline.ValidationError{Message: "pipeline_name cannot be cleared"}
		}
		if !s.registry.Exists(params.PipelineName.Value) {
			return nil, &pipeline.ValidationError{Message: fmt.Sprintf("unknown pipeline %q", params.PipelineName.Value)}
		}
		task.PipelineName = params.PipelineName.Value
	}
	if params.CronExpression.Set {
		if !params.CronExpression.Valid {
			return nil, &pipeline.ValidationError{Message: "cron_expression cannot be cleared"}
		}
		if params.CronExpression.Value != task.CronExpression {
			scheduleChanged = true
		}
		task.CronExpression = params.CronExpression.Value
	}
	if params.Timezone.Set {
		if !params.Timezone.Valid {
			return nil, &pipeline.ValidationError{Message: "timezone cannot be cleared"}
		}
		if params.Timezone.Value != task.Timezone {
			scheduleChanged = true
		}
		task.Timezone = params.Timezone.Value
	}
	if params.Enabled.Set {
		if !params.Enabled.Valid {
			return nil, &pipeline.ValidationError{Message: "enabled cannot be cleared"}
		}
		task.Enabled = params.Enabled.Value
	}
	if params.InputParams.Set {
		// Explicit null clears the stored parameters
		if params.InputParams.Valid {
			task.InputParams = params.InputParams.Value
		} else {
			task.InputParams = nil
		}
	}
	if params.Color.Set {
		task.Color = params.Color.Ptr()
	}

	if err := s.engine.Validate(task.CronExpression, task.Timezone); err != nil {
		return nil, err
	}

	if !task.Enabled {
		task.NextRunAt = nil
		task.ParkedAt = nil
	} else if scheduleChanged || !wasEnabled || task.NextRunAt == nil {
		next, err := s.engine.NextRun(task.CronExpression, task.Timezone, s.now())
		if err != nil {
			return nil, err
		}
		task.NextRunAt = &next
		// A repaired schedule takes the task out of the parked state
		task.ParkedAt = nil
	}

	updated, err := s.store.UpdateScheduledTask(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to update scheduled task: %w", err)
	}
	return updated, nil
}

// Toggle flips or sets the enabled flag. Re-enabling always recomputes
// next_run_at from the current moment rather than resurrecting a stale value.
func (s *ScheduledTaskService) Toggle(ctx context.Context, id uuid.UUID, enabled *bool) (*models.ScheduledTask, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	target := !task.Enabled
	if enabled != nil {
		target = *enabled
	}

	task.Enabled = target
	task.ParkedAt = nil
	if target {
		next, err := s.engine.NextRun(task.CronExpression, task.Timezone, s.now())
		if err != nil {
			return nil, err
		}
		task.NextRunAt = &next
	} else {
		task.NextRunAt = nil
	}

	updated, err := s.store.UpdateScheduledTask(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to toggle scheduled task: %w", err)
	}
	return updated, nil
}

// Delete removes a task and cascades removal of its run history. Only
// explicit user action reaches here; the scheduler never deletes tasks.
func (s *ScheduledTaskService) Delete(ctx context.Context, id uuid.UUID) error {
	rows, err := s.store.DeleteScheduledTask(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete scheduled task: %w", err)
	}
	if rows == 0 {
		return &pipeline.NotFoundError{Resource: "scheduled task", Key: id.String()}
	}

	if s.runs != nil {
		deleted, err := s.runs.DeletePipelineRunsForTask(ctx, id)
		if err != nil {
			// The task is gone; orphaned history is logged, not fatal
			s.logger.Error().Err(err).
				Str("task_id", id.String()).
				Msg("Failed to cascade run history removal")
		} else if deleted > 0 {
			s.logger.Info().
				Str("action", "task_history_removed").
				Str("task_id", id.String()).
				Int64("deleted_runs", deleted).
				Msg("Removed run history for deleted task")
		}
	}
	return nil
}

// CalendarParams scopes an occurrence query.
type CalendarParams struct {
	Start        time.Time
	End          time.Time
	PipelineName *string
	EnabledOnly  bool
}

// CalendarOccurrences computes every firing instant of matching tasks inside
// the window, merged and sorted by start time. Each task's window start is
// clamped to its creation time so no occurrence predates the schedule's
// existence.
func (s *ScheduledTaskService) CalendarOccurrences(ctx context.Context, params CalendarParams) ([]models.TaskOccurrence, error) {
	var enabled *bool
	if params.EnabledOnly {
		t := true
		enabled = &t
	}

	tasks, err := s.store.ListScheduledTasks(ctx, database.ListScheduledTasksParams{
		Enabled:      enabled,
		PipelineName: params.PipelineName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled tasks: %w", err)
	}

	var occurrences []models.TaskOccurrence
	for _, task := range tasks {
		start := params.Start
		if task.CreatedAt.After(start) {
			start = task.CreatedAt
		}
		if start.After(params.End) {
			continue
		}

		times, err := s.engine.OccurrencesInRange(task.CronExpression, task.Timezone, start, params.End)
		if err != nil {
			// A task with a stored-bad expression must not hide the others
			s.logger.Error().Err(err).
				Str("task_id", task.ID.String()).
				Msg("Skipping task with invalid schedule in calendar query")
			continue
		}
		for _, t := range times {
			occurrences = append(occurrences, models.TaskOccurrence{
				TaskID:       task.ID,
				TaskName:     task.Name,
				PipelineName: task.PipelineName,
				Color:        task.Color,
				StartsAt:     t,
			})
		}
	}

	sort.Slice(occurrences, func(i, j int) bool {
		return occurrences[i].StartsAt.Before(occurrences[j].StartsAt)
	})
	return occurrences, nil
}
