package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/autoflow-hq/core/pkg/logger"
	"github.com/autoflow-hq/core/pkg/models"
	"github.com/autoflow-hq/core/pkg/pipeline"
	"github.com/autoflow-hq/core/pkg/schedule"
	"github.com/autoflow-hq/core/pkg/services"
)

// DispatchJob is the scheduler dispatcher. On each tick it reloads the due
// scheduled tasks fresh from the store, submits each to the execution
// coordinator with source=cron, and advances the task's run times. One broken
// task never halts the tick loop.
type DispatchJob struct {
	tasks       services.TaskStore
	runs        *services.RunService
	executor    *services.Executor
	engine      *schedule.Engine
	tick        string
	concurrency int64
	logger      *logger.Logger
	now         func() time.Time
}

// NewDispatchJob creates a dispatcher ticking at the given @every interval.
func NewDispatchJob(tasks services.TaskStore, runs *services.RunService, executor *services.Executor, engine *schedule.Engine, tickSeconds int, concurrency int) *DispatchJob {
	if tickSeconds <= 0 {
		tickSeconds = 30
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &DispatchJob{
		tasks:       tasks,
		runs:        runs,
		executor:    executor,
		engine:      engine,
		tick:        fmt.Sprintf("@every %ds", tickSeconds),
		concurrency: int64(concurrency),
		logger:      logger.New("dispatcher"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (d *DispatchJob) Name() string {
	return "scheduled_task_dispatch"
}

func (d *DispatchJob) Schedule() string {
	return d.tick
}

func (d *DispatchJob) Execute(ctx context.Context) error {
	now := d.now()

	// No caching across ticks: schedule edits take effect on the very next
	// tick without a restart
	due, err := d.tasks.ListDueScheduledTasks(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to load due tasks: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	d.logger.Info().
		Str("action", "tick").
		Int("due_tasks", len(due)).
		Time("now", now).
		Msg("Dispatching due scheduled tasks")

	sem := semaphore.NewWeighted(d.concurrency)
	var wg sync.WaitGroup

	for i := range due {
		task := due[i]

		next, nextErr := d.engine.NextRun(task.CronExpression, task.Timezone, now)

		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		wg.Add(1)
		go func(task models.ScheduledTask) {
			defer wg.Done()
			defer sem.Release(1)
			d.dispatch(ctx, task)
		}(task)

		// The dispatch is sent; advance run times regardless of its outcome
		if nextErr != nil {
			// The stored schedule no longer parses; park the task instead of
			// spinning hot on every tick
			d.logger.Error().Err(nextErr).
				Str("task_id", task.ID.String()).
				Str("cron", task.CronExpression).
				Msg("Cannot advance schedule, parking task")
			if err := d.tasks.ParkScheduledTask(ctx, task.ID, now); err != nil {
				d.logger.Error().Err(err).
					Str("task_id", task.ID.String()).
					Msg("Failed to park task")
			}
			continue
		}

		lastRunAt := now
		if err := d.tasks.UpdateTaskRunTimes(ctx, task.ID, &lastRunAt, &next); err != nil {
			d.logger.Error().Err(err).
				Str("task_id", task.ID.String()).
				Msg("Failed to advance task run times")
		} else {
			d.logger.LogDispatch(task.ID.String(), task.PipelineName, next)
		}
	}

	wg.Wait()
	return nil
}

// dispatch executes one due task. A failure that produced no run record (an
// unknown pipeline, input failing the stored schema) is recorded as an error
// run here, so the run-history surface stays the audit trail for automatic
// firings.
func (d *DispatchJob) dispatch(ctx context.Context, task models.ScheduledTask) {
	ec := pipeline.NewExecutionContext(pipeline.SourceCron).
		WithUser(task.OwnerID).
		WithMeta("scheduled_task_id", task.ID.String())

	result := d.executor.Execute(ctx, task.PipelineName, task.InputParams, ec)
	if result.Success {
		return
	}

	if _, tracked := result.RunID(); !tracked && d.runs != nil {
		if err := d.runs.RecordFailure(ctx, task.PipelineName, ec, task.InputParams, result.Error); err != nil {
			d.logger.Error().Err(err).
				Str("task_id", task.ID.String()).
				Msg("Failed to record dispatch failure")
		}
	}

	d.logger.Error().
		Str("action", "dispatch_failed").
		Str("task_id", task.ID.String()).
		Str("pipeline", task.PipelineName).
		Str("error_message", result.Error).
		Msg("Scheduled task execution failed")
}
