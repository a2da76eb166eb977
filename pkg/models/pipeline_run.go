package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus describes the lifecycle state of one execution attempt.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSuccess   RunStatus = "success"
	RunStatusError     RunStatus = "error"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusError, RunStatusCancelled:
		return true
	}
	return false
}

// PipelineRun records the full lifecycle of one execution attempt. Status is
// monotonic: pending → running → success|error, or → cancelled from
// pending/running. Once terminal, completed_at and duration_ms are fixed.
type PipelineRun struct {
	ID           uuid.UUID      `json:"id"`
	PipelineName string         `json:"pipeline_name"`
	TriggerType  string         `json:"trigger_type"`
	UserID       *uuid.UUID     `json:"user_id,omitempty"`
	InputData    map[string]any `json:"input_data,omitempty"`
	OutputData   map[string]any `json:"output_data,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	RunMetadata  map[string]any `json:"run_metadata,omitempty"`
	Status       RunStatus      `json:"status"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	DurationMs   *int64         `json:"duration_ms,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// RunStats aggregates run history for the stats surface.
type RunStats struct {
	Total         int64   `json:"total"`
	Success       int64   `json:"success"`
	Errors        int64   `json:"errors"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}
