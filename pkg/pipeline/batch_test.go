package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestRunBatch(t *testing.T) {
	ctx := context.Background()

	result := RunBatch(ctx, 10, 3, func(ctx context.Context, i int) error {
		if i%3 == 0 {
			return errors.New("item broke")
		}
		return nil
	})

	if result.Succeeded != 6 {
		t.Errorf("Succeeded = %d, want 6", result.Succeeded)
	}
	if result.Failed != 4 {
		t.Errorf("Failed = %d, want 4", result.Failed)
	}
	if result.Skipped != 0 {
		t.Errorf("Skipped = %d, want 0", result.Skipped)
	}
	if result.Total() != 10 {
		t.Errorf("Total() = %d, want 10", result.Total())
	}
	if len(result.Errors) != 4 {
		t.Errorf("len(Errors) = %d, want 4", len(result.Errors))
	}
}

func TestRunBatch_FailureDoesNotAbortSiblings(t *testing.T) {
	var ran int32

	result := RunBatch(context.Background(), 8, 2, func(ctx context.Context, i int) error {
		atomic.AddInt32(&ran, 1)
		if i == 0 {
			return errors.New("first item broke")
		}
		return nil
	})

	if got := atomic.LoadInt32(&ran); got != 8 {
		t.Errorf("ran %d items, want all 8", got)
	}
	if result.Failed != 1 || result.Succeeded != 7 {
		t.Errorf("tally = %+v, want 1 failed 7 succeeded", result)
	}
}

func TestRunBatch_CancelledContextSkips(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := RunBatch(ctx, 5, 2, func(ctx context.Context, i int) error {
		t.Error("fn must not run after cancellation")
		return nil
	})

	if result.Skipped != 5 {
		t.Errorf("Skipped = %d, want 5", result.Skipped)
	}
	if result.Succeeded != 0 || result.Failed != 0 {
		t.Errorf("unexpected tally: %+v", result)
	}
}

func TestRunBatch_DefaultConcurrency(t *testing.T) {
	var inFlight, peak int32

	RunBatch(context.Background(), 20, 0, func(ctx context.Context, i int) error {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		return nil
	})

	if got := atomic.LoadInt32(&peak); got > DefaultBatchConcurrency {
		t.Errorf("peak concurrency %d exceeded default limit %d", got, DefaultBatchConcurrency)
	}
}
