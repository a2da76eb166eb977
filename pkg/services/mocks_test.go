package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/autoflow-hq/core/pkg/database"
	"github.com/autoflow-hq/core/pkg/models"
	"github.com/autoflow-hq/core/pkg/pipeline"
)

// mockRunStore is an in-memory RunStore that enforces the same status guards
// as the SQL layer.
type mockRunStore struct {
	runs map[uuid.UUID]*models.PipelineRun

	createErr   error
	completeErr error
}

func newMockRunStore() *mockRunStore {
	return &mockRunStore{runs: make(map[uuid.UUID]*models.PipelineRun)}
}

func (m *mockRunStore) CreatePipelineRun(ctx context.Context, run *models.PipelineRun) (*models.PipelineRun, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	stored := *run
	stored.CreatedAt = time.Now().UTC()
	m.runs[stored.ID] = &stored
	copied := stored
	return &copied, nil
}

func (m *mockRunStore) GetPipelineRun(ctx context.Context, id uuid.UUID) (*models.PipelineRun, error) {
	run, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("no rows in result set")
	}
	copied := *run
	return &copied, nil
}

func (m *mockRunStore) MarkPipelineRunRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) (int64, error) {
	run, ok := m.runs[id]
	if !ok || run.Status != models.RunStatusPending {
		return 0, nil
	}
	run.Status = models.RunStatusRunning
	run.StartedAt = &startedAt
	return 1, nil
}

func (m *mockRunStore) CompletePipelineRun(ctx context.Context, params database.CompletePipelineRunParams) (int64, error) {
	if m.completeErr != nil {
		return 0, m.completeErr
	}
	run, ok := m.runs[params.ID]
	if !ok || run.Status.Terminal() {
		return 0, nil
	}
	run.Status = params.Status
	run.CompletedAt = &params.CompletedAt
	run.DurationMs = params.DurationMs
	if params.OutputData != nil {
		run.OutputData = params.OutputData
	}
	if params.ErrorMessage != nil {
		run.ErrorMessage = params.ErrorMessage
	}
	if params.RunMetadata != nil {
		merged := make(map[string]any, len(run.RunMetadata)+len(params.RunMetadata))
		for k, v := range run.RunMetadata {
			merged[k] = v
		}
		for k, v := range params.RunMetadata {
			merged[k] = v
		}
		run.RunMetadata = merged
	}
	return 1, nil
}

func (m *mockRunStore) ListPipelineRuns(ctx context.Context, params database.ListPipelineRunsParams) ([]models.PipelineRun, error) {
	var out []models.PipelineRun
	for _, run := range m.runs {
		if params.PipelineName != nil && run.PipelineName != *params.PipelineName {
			continue
		}
		if params.Status != nil && run.Status != *params.Status {
			continue
		}
		if params.TriggerType != nil && run.TriggerType != *params.TriggerType {
			continue
		}
		out = append(out, *run)
	}
	return out, nil
}

func (m *mockRunStore) CountPipelineRuns(ctx context.Context, params database.ListPipelineRunsParams) (int64, error) {
	runs, err := m.ListPipelineRuns(ctx, params)
	return int64(len(runs)), err
}

func (m *mockRunStore) GetRunStats(ctx context.Context, pipelineName *string, since *time.Time) (*models.RunStats, error) {
	stats := &models.RunStats{}
	for _, run := range m.runs {
		if pipelineName != nil && run.PipelineName != *pipelineName {
			continue
		}
		stats.Total++
		switch run.Status {
		case models.RunStatusSuccess:
			stats.Success++
		case models.RunStatusError:
			stats.Errors++
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Success) / float64(stats.Total)
	}
	return stats, nil
}

func (m *mockRunStore) DeletePipelineRunsForTask(ctx context.Context, taskID uuid.UUID) (int64, error) {
	var deleted int64
	for id, run := range m.runs {
		if run.RunMetadata != nil && run.RunMetadata["scheduled_task_id"] == taskID.String() {
			delete(m.runs, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *mockRunStore) DeletePipelineRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	for id, run := range m.runs {
		if run.Status.Terminal() && run.CreatedAt.Before(cutoff) {
			delete(m.runs, id)
			deleted++
		}
	}
	return deleted, nil
}

// onlyRun returns the single stored run, failing the caller's assertions when
// the count differs.
func (m *mockRunStore) onlyRun() (*models.PipelineRun, bool) {
	if len(m.runs) != 1 {
		return nil, false
	}
	for _, run := range m.runs {
		return run, true
	}
	return nil, false
}

// mockTaskStore is an in-memory TaskStore.
type mockTaskStore struct {
	tasks map[uuid.UUID]*models.ScheduledTask

	updateRunTimesErr error
}

func newMockTaskStore() *mockTaskStore {
	return &mockTaskStore{tasks: make(map[uuid.UUID]*models.ScheduledTask)}
}

func (m *mockTaskStore) CreateScheduledTask(ctx context.Context, task *models.ScheduledTask) (*models.ScheduledTask, error) {
	stored := *task
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.tasks[stored.ID] = &stored
	copied := stored
	return &copied, nil
}

func (m *mockTaskStore) GetScheduledTask(ctx context.Context, id uuid.UUID) (*models.ScheduledTask, error) {
	task, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("no rows in result set")
	}
	copied := *task
	return &copied, nil
}

func (m *mockTaskStore) ListScheduledTasks(ctx context.Context, params database.ListScheduledTasksParams) ([]models.ScheduledTask, error) {
	var out []models.ScheduledTask
	for _, task := range m.tasks {
		if params.Enabled != nil && task.Enabled != *params.Enabled {
			continue
		}
		if params.PipelineName != nil && task.PipelineName != *params.PipelineName {
			continue
		}
		out = append(out, *task)
	}
	return out, nil
}

func (m *mockTaskStore) CountScheduledTasks(ctx context.Context, params database.ListScheduledTasksParams) (int64, error) {
	tasks, err := m.ListScheduledTasks(ctx, params)
	return int64(len(tasks)), err
}

func (m *mockTaskStore) UpdateScheduledTask(ctx context.Context, task *models.ScheduledTask) (*models.ScheduledTask, error) {
	if _, ok := m.tasks[task.ID]; !ok {
		return nil, fmt.Errorf("no rows in result set")
	}
	stored := *task
	stored.UpdatedAt = time.Now().UTC()
	m.tasks[stored.ID] = &stored
	copied := stored
	return &copied, nil
}

func (m *mockTaskStore) DeleteScheduledTask(ctx context.Context, id uuid.UUID) (int64, error) {
	if _, ok := m.tasks[id]; !ok {
		return 0, nil
	}
	delete(m.tasks, id)
	return 1, nil
}

func (m *mockTaskStore) ListDueScheduledTasks(ctx context.Context, now time.Time) ([]models.ScheduledTask, error) {
	var out []models.ScheduledTask
	for _, task := range m.tasks {
		if task.Enabled && task.NextRunAt != nil && !task.NextRunAt.After(now) {
			out = append(out, *task)
		}
	}
	return out, nil
}

func (m *mockTaskStore) UpdateTaskRunTimes(ctx context.Context, id uuid.UUID, lastRunAt, nextRunAt *time.Time) error {
	if m.updateRunTimesErr != nil {
		return m.updateRunTimesErr
	}
	task, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("no rows in result set")
	}
	task.LastRunAt = lastRunAt
	task.NextRunAt = nextRunAt
	return nil
}

func (m *mockTaskStore) ParkScheduledTask(ctx context.Context, id uuid.UUID, at time.Time) error {
	task, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("no rows in result set")
	}
	task.ParkedAt = &at
	task.LastRunAt = &at
	task.NextRunAt = nil
	return nil
}

// testPipeline is a minimal pipeline for coordinator tests.
type testPipeline struct {
	desc    pipeline.Descriptor
	execute func(ctx context.Context, input map[string]any, ec pipeline.ExecutionContext) pipeline.Result
}

func (p *testPipeline) Descriptor() pipeline.Descriptor {
	return p.desc
}

func (p *testPipeline) Execute(ctx context.Context, input map[string]any, ec pipeline.ExecutionContext) pipeline.Result {
	return p.execute(ctx, input, ec)
}
