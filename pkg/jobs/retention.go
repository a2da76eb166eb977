package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/autoflow-hq/core/pkg/services"
)

// RetentionJob prunes terminal run history past the retention window.
type RetentionJob struct {
	runs      *services.RunService
	retention time.Duration
}

// NewRetentionJob creates the nightly retention job.
func NewRetentionJob(runs *services.RunService, retentionDays int) *RetentionJob {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &RetentionJob{
		runs:      runs,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
	}
}

func (j *RetentionJob) Name() string {
	return "run_history_retention"
}

func (j *RetentionJob) Schedule() string {
	return "0 3 * * *"
}

func (j *RetentionJob) Execute(ctx context.Context) error {
	if _, err := j.runs.Prune(ctx, j.retention); err != nil {
		return fmt.Errorf("retention job failed: %w", err)
	}
	return nil
}
