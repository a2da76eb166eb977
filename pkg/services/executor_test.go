package services

import (
	"context"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/autoflow-hq/core/pkg/models"
	"github.com/autoflow-hq/core/pkg/pipeline"
)

func newTestExecutor(t *testing.T) (*Executor, *mockRunStore, *pipeline.Registry) {
	t.Helper()
	registry := pipeline.NewRegistry(nil)
	store := newMockRunStore()
	runs := NewRunService(store, nil)
	return NewExecutor(registry, runs, nil, nil), store, registry
}

func TestExecutor_Execute_Success(t *testing.T) {
	executor, store, registry := newTestExecutor(t)

	err := registry.Register(&testPipeline{
		desc: pipeline.Descriptor{Name: "greet", Description: "greets"},
		execute: func(ctx context.Context, input map[string]any, ec pipeline.ExecutionContext) pipeline.Result {
			return pipeline.Ok(map[string]any{"greeting": "hello"})
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	result := executor.Execute(context.Background(), "greet", nil, pipeline.NewExecutionContext(pipeline.SourceAPI))
	if !result.Success {
		t.Fatalf("Execute() failed: %s", result.Error)
	}
	if _, ok := result.RunID(); !ok {
		t.Error("tracked execution should expose run_id metadata")
	}

	run, ok := store.onlyRun()
	if !ok {
		t.Fatalf("expected exactly one run, have %d", len(store.runs))
	}
	if run.Status != models.RunStatusSuccess {
		t.Errorf("run status = %s, want success", run.Status)
	}
	if run.TriggerType != "api" {
		t.Errorf("trigger type = %s, want api", run.TriggerType)
	}
	if run.DurationMs == nil {
		t.Error("completed run should have a duration")
	}
	if run.CompletedAt == nil {
		t.Error("completed run should have completed_at")
	}
}

func TestExecutor_Execute_TaskAttributionSurvivesResultMetadata(t *testing.T) {
	executor, store, registry := newTestExecutor(t)

	err := registry.Register(&testPipeline{
		desc: pipeline.Descriptor{Name: "ingest", Description: "ingests records"},
		execute: func(ctx context.Context, input map[string]any, ec pipeline.ExecutionContext) pipeline.Result {
			return pipeline.Ok(nil).WithMeta("items_processed", 7)
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	taskID := "5f0c1d2e-aaaa-bbbb-cccc-000000000001"
	ec := pipeline.NewExecutionContext(pipeline.SourceCron).
		WithMeta("scheduled_task_id", taskID)

	result := executor.Execute(context.Background(), "ingest", nil, ec)
	if !result.Success {
		t.Fatalf("Execute() failed: %s", result.Error)
	}

	run, ok := store.onlyRun()
	if !ok {
		t.Fatalf("expected exactly one run, have %d", len(store.runs))
	}
	if run.RunMetadata["scheduled_task_id"] != taskID {
		t.Errorf("stored run lost its task attribution: %v", run.RunMetadata)
	}
	if run.RunMetadata["items_processed"] != 7 {
		t.Errorf("stored run missing result metadata: %v", run.RunMetadata)
	}
}

func TestExecutor_Execute_NotFound(t *testing.T) {
	executor, store, _ := newTestExecutor(t)

	result := executor.Execute(context.Background(), "ghost", nil, pipeline.NewExecutionContext(pipeline.SourceAPI))
	if result.Success {
		t.Fatal("expected failure for unknown pipeline")
	}
	if !strings.Contains(result.Error, "pipeline not found") {
		t.Errorf("error = %q, want pipeline not found", result.Error)
	}

	// Resolution failures never create run records
	if len(store.runs) != 0 {
		t.Errorf("expected no runs, have %d", len(store.runs))
	}
}

func TestExecutor_Execute_SchemaRejection(t *testing.T) {
	executor, store, registry := newTestExecutor(t)

	err := registry.Register(&testPipeline{
		desc: pipeline.Descriptor{
			Name:        "typed",
			Description: "requires a recipient",
			InputSchema: pipeline.ObjectSchema(map[string]*openapi3.Schema{
				"recipient": openapi3.NewStringSchema(),
			}, "recipient"),
		},
		execute: func(ctx context.Context, input map[string]any, ec pipeline.ExecutionContext) pipeline.Result {
			t.Error("Execute must not run on invalid input")
			return pipeline.Ok(nil)
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	result := executor.Execute(context.Background(), "typed", map[string]any{"wrong": true}, pipeline.NewExecutionContext(pipeline.SourceAPI))
	if result.Success {
		t.Fatal("expected schema rejection")
	}
	if !strings.Contains(result.Error, "validation failed") {
		t.Errorf("error = %q, want validation failed prefix", result.Error)
	}
	if len(store.runs) != 0 {
		t.Errorf("invalid input must not taint run history, have %d runs", len(store.runs))
	}
}

type rejectingPipeline struct {
	testPipeline
}

func (p *rejectingPipeline) ValidateInput(input map[string]any) bool {
	return false
}

func TestExecutor_Execute_CustomValidatorRejection(t *testing.T) {
	executor, store, registry := newTestExecutor(t)

	err := registry.Register(&rejectingPipeline{testPipeline{
		desc: pipeline.Descriptor{Name: "picky", Description: "rejects everything"},
		execute: func(ctx context.Context, input map[string]any, ec pipeline.ExecutionContext) pipeline.Result {
			t.Error("Execute must not run on rejected input")
			return pipeline.Ok(nil)
		},
	}})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	result := executor.Execute(context.Background(), "picky", nil, pipeline.NewExecutionContext(pipeline.SourceAPI))
	if result.Success {
		t.Fatal("expected validator rejection")
	}
	if len(store.runs) != 0 {
		t.Errorf("expected no runs, have %d", len(store.runs))
	}
}

func TestExecutor_Execute_PipelineFailure(t *testing.T) {
	executor, store, registry := newTestExecutor(t)

	err := registry.Register(&testPipeline{
		desc: pipeline.Descriptor{Name: "flaky", Description: "always fails"},
		execute: func(ctx context.Context, input map[string]any, ec pipeline.ExecutionContext) pipeline.Result {
			return pipeline.Fail("upstream unavailable")
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	result := executor.Execute(context.Background(), "flaky", nil, pipeline.NewExecutionContext(pipeline.SourceCron))
	if result.Success {
		t.Fatal("expected failure")
	}

	run, ok := store.onlyRun()
	if !ok {
		t.Fatalf("expected exactly one run, have %d", len(store.runs))
	}
	if run.Status != models.RunStatusError {
		t.Errorf("run status = %s, want error", run.Status)
	}
	if run.ErrorMessage == nil || *run.ErrorMessage != "upstream unavailable" {
		t.Errorf("error message = %v, want upstream unavailable", run.ErrorMessage)
	}
}

func TestExecutor_Execute_PanicIsolation(t *testing.T) {
	executor, store, registry := newTestExecutor(t)

	err := registry.Register(&testPipeline{
		desc: pipeline.Descriptor{Name: "explosive", Description: "panics"},
		execute: func(ctx context.Context, input map[string]any, ec pipeline.ExecutionContext) pipeline.Result {
			panic("boom")
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	result := executor.Execute(context.Background(), "explosive", nil, pipeline.NewExecutionContext(pipeline.SourceAPI))
	if result.Success {
		t.Fatal("panic must surface as a failed result")
	}
	if !strings.Contains(result.Error, "panic") {
		t.Errorf("error = %q, want panic mention", result.Error)
	}

	run, ok := store.onlyRun()
	if !ok {
		t.Fatalf("expected exactly one run, have %d", len(store.runs))
	}
	if run.Status != models.RunStatusError {
		t.Errorf("run status = %s, want error", run.Status)
	}
}

func TestExecutor_Execute_Untracked(t *testing.T) {
	registry := pipeline.NewRegistry(nil)
	executor := NewExecutor(registry, nil, nil, nil)

	err := registry.Register(&testPipeline{
		desc: pipeline.Descriptor{Name: "light", Description: "untracked"},
		execute: func(ctx context.Context, input map[string]any, ec pipeline.ExecutionContext) pipeline.Result {
			return pipeline.Ok(nil)
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	result := executor.Execute(context.Background(), "light", nil, pipeline.NewExecutionContext(pipeline.SourceManual))
	if !result.Success {
		t.Fatalf("Execute() failed: %s", result.Error)
	}
	if _, ok := result.RunID(); ok {
		t.Error("untracked execution should not carry run_id")
	}
}

func TestExecutor_Execute_TrackingFailureDoesNotBlock(t *testing.T) {
	registry := pipeline.NewRegistry(nil)
	store := newMockRunStore()
	store.createErr = context.DeadlineExceeded
	executor := NewExecutor(registry, NewRunService(store, nil), nil, nil)

	err := registry.Register(&testPipeline{
		desc: pipeline.Descriptor{Name: "resilient", Description: "runs anyway"},
		execute: func(ctx context.Context, input map[string]any, ec pipeline.ExecutionContext) pipeline.Result {
			return pipeline.Ok(map[string]any{"done": true})
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	result := executor.Execute(context.Background(), "resilient", nil, pipeline.NewExecutionContext(pipeline.SourceAPI))
	if !result.Success {
		t.Fatalf("tracking failure must not block execution: %s", result.Error)
	}
}
