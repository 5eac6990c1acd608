package dispatch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joelkehle/patentscout/internal/verdict"
)

func TestRunYieldsAllInCompletionOrder(t *testing.T) {
	// Later candidates finish first; the consumer must see them first.
	delays := []time.Duration{60 * time.Millisecond, 30 * time.Millisecond, 5 * time.Millisecond}
	fn := func(ctx context.Context, i int) (verdict.Verdict, error) {
		time.Sleep(delays[i])
		return verdict.Scored(float64(i), ""), nil
	}

	var got []int
	for j := range Run(context.Background(), len(delays), 3, fn) {
		got = append(got, j.Index)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 judgments, got %d", len(got))
	}
	if got[0] != 2 || got[2] != 0 {
		t.Fatalf("expected completion order [2 1 0], got %v", got)
	}
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	const limit = 4
	var inFlight, peak atomic.Int64
	fn := func(ctx context.Context, i int) (verdict.Verdict, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return verdict.Scored(1, ""), nil
	}

	count := 0
	for range Run(context.Background(), 32, limit, fn) {
		count++
	}
	if count != 32 {
		t.Fatalf("expected 32 judgments, got %d", count)
	}
	if p := peak.Load(); p > limit {
		t.Fatalf("concurrency peak %d exceeds limit %d", p, limit)
	}
}

func TestRunEarlyStopAbandonsRemaining(t *testing.T) {
	var started atomic.Int64
	fn := func(ctx context.Context, i int) (verdict.Verdict, error) {
		started.Add(1)
		if i == 0 {
			return verdict.Scored(99, ""), nil
		}
		select {
		case <-ctx.Done():
			return verdict.Verdict{}, ctx.Err()
		case <-time.After(5 * time.Second):
			return verdict.Scored(1, ""), nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := Run(ctx, 50, 2, fn)
	yielded := 0
	for j := range ch {
		yielded++
		if j.Index == 0 {
			cancel()
		}
	}
	if yielded == 0 {
		t.Fatal("expected at least one yield before stop")
	}
	if yielded > 3 {
		t.Fatalf("expected early stop to cut yields short, got %d", yielded)
	}
	if s := started.Load(); s >= 50 {
		t.Fatalf("expected not-yet-started submissions to be abandoned, started=%d", s)
	}
}

func TestRunChannelClosesAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // stopped before anything starts

	ch := Run(ctx, 10, 2, func(ctx context.Context, i int) (verdict.Verdict, error) {
		return verdict.Scored(1, ""), nil
	})

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return // closed without deadlock
			}
			t.Fatal("yield after stop signal was acknowledged")
		case <-deadline:
			t.Fatal("channel did not close after stop")
		}
	}
}

func TestRunCancelledResultsAreDiscarded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fn := func(c context.Context, i int) (verdict.Verdict, error) {
		if i == 0 {
			return verdict.Scored(50, ""), nil
		}
		cancel()
		return verdict.Verdict{}, context.Canceled
	}

	total := 0
	for range Run(ctx, 8, 1, fn) {
		total++
	}
	// Only the first candidate may be yielded; the rest returned
	// cancellation errors and must be dropped.
	if total > 1 {
		t.Fatalf("expected at most 1 judgment, got %d", total)
	}
}

func TestRunZeroCandidates(t *testing.T) {
	ch := Run(context.Background(), 0, 4, func(ctx context.Context, i int) (verdict.Verdict, error) {
		t.Fatal("judge called with no candidates")
		return verdict.Verdict{}, nil
	})
	if _, ok := <-ch; ok {
		t.Fatal("expected immediate close")
	}
}
