package models

import (
	"time"

	"github.com/google/uuid"
)

// ScheduledTask binds a pipeline name and input parameters to a recurring
// cron schedule in an IANA timezone. The pipeline name is a soft reference
// into the registry; pipelines are code, not rows. A task whose stored
// schedule stops parsing is parked: parked_at is set and next_run_at cleared
// until a schedule edit repairs it.
type ScheduledTask struct {
	ID             uuid.UUID      `json:"id"`
	OwnerID        uuid.UUID      `json:"owner_id"`
	Name           string         `json:"name"`
	Description    *string        `json:"description,omitempty"`
	PipelineName   string         `json:"pipeline_name"`
	CronExpression string         `json:"cron_expression"`
	Timezone       string         `json:"timezone"`
	Enabled        bool           `json:"enabled"`
	InputParams    map[string]any `json:"input_params,omitempty"`
	Color          *string        `json:"color,omitempty"`
	NextRunAt      *time.Time     `json:"next_run_at,omitempty"`
	LastRunAt      *time.Time     `json:"last_run_at,omitempty"`
	ParkedAt       *time.Time     `json:"parked_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// TaskOccurrence is one computed firing instant of a scheduled task inside a
// calendar window.
type TaskOccurrence struct {
	TaskID       uuid.UUID `json:"task_id"`
	TaskName     string    `json:"task_name"`
	PipelineName string    `json:"pipeline_name"`
	Color        *string   `json:"color,omitempty"`
	StartsAt     time.Time `json:"starts_at"`
}
