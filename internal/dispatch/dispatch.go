// Package dispatch fans judge calls out over a fixed candidate set with a
// concurrency ceiling, yielding verdicts in completion order.
package dispatch

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/joelkehle/patentscout/internal/verdict"
)

// Judgment pairs a completed verdict with the candidate's original position
// so the consumer can correlate completion-order results back to the
// submission order.
type Judgment struct {
	Index   int
	Verdict verdict.Verdict
}

// JudgeFunc scores one candidate. It returns an error only for caller
// cancellation; every other outcome is a (possibly degraded) Verdict.
type JudgeFunc func(ctx context.Context, index int) (verdict.Verdict, error)

// Run submits all count candidates up front, gated to at most limit
// in-flight judge calls, and returns a channel of judgments in completion
// order. Each call to Run starts a fresh, independent run.
//
// Early stop is cooperative: the consumer cancels ctx. Not-yet-started
// submissions are then abandoned, in-flight calls observe the cancellation
// through their ctx, and results completing after the stop are drained and
// discarded rather than yielded. The returned channel always closes and no
// goroutine outlives the drain.
func Run(ctx context.Context, count, limit int, fn JudgeFunc) <-chan Judgment {
	if limit <= 0 {
		limit = 1
	}
	out := make(chan Judgment)
	go func() {
		defer close(out)

		sem := semaphore.NewWeighted(int64(limit))
		// Buffered to count so workers never block on delivery: a worker
		// completing after the stop signal must still be able to finish.
		results := make(chan Judgment, count)
		var wg sync.WaitGroup

		for i := 0; i < count; i++ {
			if err := sem.Acquire(ctx, 1); err != nil {
				break // stop signal: abandon not-yet-started work
			}
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				defer sem.Release(1)
				v, err := fn(ctx, i)
				if err != nil {
					return // cancelled in flight: result discarded
				}
				results <- Judgment{Index: i, Verdict: v}
			}(i)
		}
		go func() {
			wg.Wait()
			close(results)
		}()

		draining := false
		for j := range results {
			if draining || ctx.Err() != nil {
				draining = true
				continue
			}
			select {
			case out <- j:
			case <-ctx.Done():
				// A completion racing the stop signal is dropped; once the
				// drain begins nothing more is yielded.
				draining = true
			}
		}
	}()
	return out
}
