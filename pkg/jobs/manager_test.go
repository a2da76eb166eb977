package jobs

import (
	"context"
	"errors"
	"testing"
	"time"
)

type mockJob struct {
	name        string
	schedule    string
	executeFunc func(ctx context.Context) error
	executed    bool
}

func (m *mockJob) Execute(ctx context.Context) error {
	m.executed = true
	if m.executeFunc != nil {
		return m.executeFunc(ctx)
	}
	return nil
}

func (m *mockJob) Name() string {
	return m.name
}

func (m *mockJob) Schedule() string {
	return m.schedule
}

func TestJobManager_RegisterJob(t *testing.T) {
	manager := NewJobManager()

	tests := []struct {
		name    string
		job     Job
		wantErr bool
	}{
		{
			name: "valid job",
			job: &mockJob{
				name:     "test-job",
				schedule: "@every 1s",
			},
			wantErr: false,
		},
		{
			name:    "nil job",
			job:     nil,
			wantErr: true,
		},
		{
			name: "invalid schedule",
			job: &mockJob{
				name:     "invalid-job",
				schedule: "invalid-cron",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := manager.RegisterJob(tt.job)
			if (err != nil) != tt.wantErr {
				t.Errorf("RegisterJob() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestJobManager_GetJobs(t *testing.T) {
	manager := NewJobManager()

	// Initially should have no jobs
	jobs := manager.GetJobs()
	if len(jobs) != 0 {
		t.Errorf("Expected 0 jobs initially, got %d", len(jobs))
	}

	job1 := &mockJob{name: "dispatch", schedule: "@every 30s"}
	job2 := &mockJob{name: "retention", schedule: "0 3 * * *"}

	if err := manager.RegisterJob(job1); err != nil {
		t.Fatalf("RegisterJob() error = %v", err)
	}
	if err := manager.RegisterJob(job2); err != nil {
		t.Fatalf("RegisterJob() error = %v", err)
	}

	jobs = manager.GetJobs()
	if len(jobs) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(jobs))
	}
}

func TestJobManager_StartStop(t *testing.T) {
	manager := NewJobManager()

	executed := make(chan struct{}, 1)
	job := &mockJob{
		name:     "fast-job",
		schedule: "@every 100ms",
		executeFunc: func(ctx context.Context) error {
			select {
			case executed <- struct{}{}:
			default:
			}
			return nil
		},
	}

	if err := manager.RegisterJob(job); err != nil {
		t.Fatalf("RegisterJob() error = %v", err)
	}

	manager.Start()
	defer manager.Stop()

	select {
	case <-executed:
	case <-time.After(2 * time.Second):
		t.Error("job did not execute within 2s of start")
	}
}

func TestJobManager_FailingJobDoesNotStopManager(t *testing.T) {
	manager := NewJobManager()

	runs := make(chan struct{}, 3)
	job := &mockJob{
		name:     "failing-job",
		schedule: "@every 100ms",
		executeFunc: func(ctx context.Context) error {
			select {
			case runs <- struct{}{}:
			default:
			}
			return errors.New("always fails")
		},
	}

	if err := manager.RegisterJob(job); err != nil {
		t.Fatalf("RegisterJob() error = %v", err)
	}

	manager.Start()
	defer manager.Stop()

	// The job keeps getting scheduled despite returning errors
	for i := 0; i < 2; i++ {
		select {
		case <-runs:
		case <-time.After(2 * time.Second):
			t.Fatalf("job run %d never happened", i+1)
		}
	}
}
