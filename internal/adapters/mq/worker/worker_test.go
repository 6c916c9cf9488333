package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/teamforge/merit/internal/adapters/mq/queue"
	"github.com/teamforge/merit/pkg/logger"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// countingRecalculator records which work items were recalculated.
type countingRecalculator struct {
	mu    sync.Mutex
	seen  map[string]int
	fails map[string]bool
}

func newCountingRecalculator() *countingRecalculator {
	return &countingRecalculator{
		seen:  make(map[string]int),
		fails: make(map[string]bool),
	}
}

func (r *countingRecalculator) Recalculate(_ context.Context, workItemID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[workItemID]++
	if r.fails[workItemID] {
		return fmt.Errorf("recalculation failed for %s", workItemID)
	}
	return nil
}

func (r *countingRecalculator) count(workItemID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen[workItemID]
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestWorker_ProcessesEvents(t *testing.T) {
	q := queue.NewInMemoryQueue(queue.WithCapacity(10))
	recalc := newCountingRecalculator()
	w := NewInMemoryWorker(q, recalc, WithName("test-worker"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if !q.Enqueue(ctx, Event{WorkItemID: "wi-1", RecordID: "rec-1"}) {
		t.Fatal("expected enqueue to succeed")
	}
	if !q.Enqueue(ctx, Event{WorkItemID: "wi-1", RecordID: "rec-2"}) {
		t.Fatal("expected enqueue to succeed")
	}

	waitFor(t, time.Second, func() bool { return recalc.count("wi-1") == 2 })
}

func TestWorker_ContinuesAfterError(t *testing.T) {
	q := queue.NewInMemoryQueue(queue.WithCapacity(10))
	recalc := newCountingRecalculator()
	recalc.fails["wi-bad"] = true
	w := NewInMemoryWorker(q, recalc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	q.Enqueue(ctx, Event{WorkItemID: "wi-bad", RecordID: "rec-1"})
	q.Enqueue(ctx, Event{WorkItemID: "wi-good", RecordID: "rec-2"})

	// The failing event must not stop the worker loop.
	waitFor(t, time.Second, func() bool {
		return recalc.count("wi-bad") == 1 && recalc.count("wi-good") == 1
	})
}

func TestWorker_Shutdown(t *testing.T) {
	q := queue.NewInMemoryQueue(queue.WithCapacity(10))
	recalc := newCountingRecalculator()
	w := NewInMemoryWorker(q, recalc)

	ctx := context.Background()
	go w.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := w.Shutdown(shutdownCtx); err != nil {
		t.Errorf("expected clean shutdown, got error: %v", err)
	}
}

func TestPool_ProcessesAcrossWorkers(t *testing.T) {
	q := queue.NewInMemoryQueue(queue.WithCapacity(100))
	recalc := newCountingRecalculator()
	pool := NewPool(4, q, recalc)

	if pool.Size() != 4 {
		t.Fatalf("expected 4 workers, got %d", pool.Size())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	const events = 50
	for i := 0; i < events; i++ {
		if !q.Enqueue(ctx, Event{WorkItemID: "wi-1", RecordID: fmt.Sprintf("rec-%d", i)}) {
			t.Fatal("expected enqueue to succeed")
		}
	}

	waitFor(t, 2*time.Second, func() bool { return recalc.count("wi-1") == events })
}

func TestPool_ShutdownClosesQueue(t *testing.T) {
	q := queue.NewInMemoryQueue(queue.WithCapacity(10))
	recalc := newCountingRecalculator()
	pool := NewPool(2, q, recalc)

	ctx := context.Background()
	pool.Start(ctx)

	if err := pool.Shutdown(ctx); err != nil {
		t.Errorf("expected clean pool shutdown, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after pool shutdown")
	}
}

func TestPool_StopReturnsPromptly(t *testing.T) {
	q := queue.NewInMemoryQueue(queue.WithCapacity(10))
	recalc := newCountingRecalculator()
	pool := NewPool(2, q, recalc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	start := time.Now()
	pool.Stop()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("expected idle workers to stop immediately, took %v", elapsed)
	}
}
