package pipeline

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultBatchConcurrency bounds fan-out when a batch pipeline does not pick
// its own limit, keeping one batch from starving the shared store pool.
const DefaultBatchConcurrency = 4

// BatchResult is the tri-state tally of a batch execution. A batch never
// fails atomically: items that succeed alongside failures keep their results.
type BatchResult struct {
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

// Total returns the number of items accounted for.
func (b BatchResult) Total() int {
	return b.Succeeded + b.Failed + b.Skipped
}

// RunBatch executes fn for each of n items with bounded concurrency. Failures
// of individual items are captured per item and never abort siblings. Items
// not started because the context was cancelled are counted as skipped.
func RunBatch(ctx context.Context, n int, limit int, fn func(ctx context.Context, i int) error) BatchResult {
	if limit <= 0 {
		limit = DefaultBatchConcurrency
	}

	sem := semaphore.NewWeighted(int64(limit))

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result BatchResult
	)

	for i := 0; i < n; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled before this item could start
			mu.Lock()
			result.Skipped++
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)

			err := fn(ctx, i)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("item %d: %v", i, err))
			} else {
				result.Succeeded++
			}
		}(i)
	}

	wg.Wait()
	return result
}
