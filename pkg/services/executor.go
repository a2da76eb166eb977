package services

import (
	"context"
	"fmt"
	"time"

	"github.com/autoflow-hq/core/pkg/logger"
	"github.com/autoflow-hq/core/pkg/models"
	"github.com/autoflow-hq/core/pkg/pipeline"
)

// Executor is the execution coordinator: it validates input, opens and closes
// the run record, and invokes the pipeline with full fault isolation. A
// pipeline fault never propagates to the caller.
type Executor struct {
	registry *pipeline.Registry
	runs     *RunService
	notifier *RunNotifier
	logger   *logger.Logger
}

// NewExecutor wires a coordinator. runs may be nil, in which case executions
// are not tracked; notifier may be nil to disable completion webhooks.
func NewExecutor(registry *pipeline.Registry, runs *RunService, notifier *RunNotifier, log *logger.Logger) *Executor {
	if log == nil {
		log = logger.New("executor")
	}
	return &Executor{
		registry: registry,
		runs:     runs,
		notifier: notifier,
		logger:   log,
	}
}

// Execute runs the named pipeline with the given raw input. Resolution and
// validation failures return a failed result without creating a run record;
// invalid input never taints execution history. Failures during execution are
// always recorded as error runs when tracking is attached. When a run record
// was opened, its id is exposed as result metadata under "run_id".
func (e *Executor) Execute(ctx context.Context, name string, rawInput map[string]any, ec pipeline.ExecutionContext) pipeline.Result {
	log := e.logger.WithPipeline(name, string(ec.Source))

	p, err := e.registry.Resolve(name)
	if err != nil {
		return pipeline.Failf("pipeline not found: %s", name)
	}

	desc := p.Descriptor()
	if err := pipeline.ValidateAgainstSchema(desc.InputSchema, rawInput); err != nil {
		return pipeline.Fail(err.Error())
	}
	if v, ok := p.(pipeline.InputValidator); ok && !v.ValidateInput(rawInput) {
		return pipeline.Fail("validation failed: input rejected by pipeline")
	}

	log.LogExecutionStart(name, string(ec.Source))
	invokedAt := time.Now()

	var (
		run       *models.PipelineRun
		startedAt *time.Time
	)
	if e.runs != nil {
		created, err := e.runs.CreateRun(ctx, name, ec, rawInput)
		if err != nil {
			// Tracking failures never block the execution itself
			log.Error().Err(err).Msg("Failed to open run record")
		} else {
			run = created
			if at, err := e.runs.MarkRunning(ctx, run.ID); err != nil {
				log.Error().Err(err).Str("run_id", run.ID.String()).Msg("Failed to mark run running")
			} else {
				startedAt = &at
			}
		}
	}

	result := e.invoke(ctx, p, name, rawInput, ec)

	if run != nil {
		applied, err := e.runs.Complete(ctx, run.ID, result, startedAt)
		if err != nil {
			log.Error().Err(err).Str("run_id", run.ID.String()).Msg("Failed to close run record")
		} else if !applied {
			// The run went terminal elsewhere (cooperative cancel); the
			// result is discarded from the record's point of view
			log.Warn().Str("run_id", run.ID.String()).Msg("Run already terminal, result not recorded")
		} else if e.notifier != nil {
			if completed, err := e.runs.Get(ctx, run.ID); err == nil {
				e.notifier.NotifyCompleted(ctx, completed)
			}
		}
		result = result.WithMeta("run_id", run.ID.String())
	}

	log.LogExecutionComplete(name, time.Since(invokedAt), result.Success, result.Error)
	return result
}

// invoke calls the pipeline with panic recovery. Any fault, panics included,
// becomes a failed result rather than a crash.
func (e *Executor) invoke(ctx context.Context, p pipeline.Pipeline, name string, input map[string]any, ec pipeline.ExecutionContext) (result pipeline.Result) {
	defer func() {
		if r := recover(); r != nil {
			execErr := &pipeline.ExecutionError{Pipeline: name, Err: fmt.Errorf("panic: %v", r)}
			e.logger.Error().
				Str("pipeline", name).
				Str("action", "execution_panic").
				Interface("panic", r).
				Msg("Recovered panic from pipeline execute")
			result = pipeline.Fail(execErr.Error())
		}
	}()

	return p.Execute(ctx, input, ec)
}
