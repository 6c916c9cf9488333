// Package dedupe tracks contribution submission ids for at-most-once
// recording. Corrections are new records, so a replayed submission id must
// never produce a second ledger-relevant record.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records seen submission ids.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord removes an id from the seen set, allowing it to be retried.
	// Used when a submission was marked seen but failed to enqueue.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper implements Deduper with a bounded map plus a FIFO ring of
// insertion order. When the bound is reached the oldest id is evicted.
// maxSize <= 0 disables eviction.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	order   []string // insertion order ring; head is order[start]
	start   int
	maxSize int
	size    atomic.Int64
}

// defaultMaxSize bounds the submission cache when no option overrides it.
const defaultMaxSize = 50000

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		seen:    make(map[string]struct{}),
		maxSize: defaultMaxSize,
	}

	// Apply all options
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// SeenAndRecord atomically checks and records a submission id.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}

	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.evictOldest()
	}

	d.seen[id] = struct{}{}
	d.order = append(d.order, id)
	d.size.Store(int64(len(d.seen)))
	return false
}

// Unrecord removes an id so the submission can be retried.
func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.seen, id)
	d.size.Store(int64(len(d.seen)))
	// The stale slot in order is skipped at eviction time.
}

// Size returns the current number of tracked ids.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}

// evictOldest drops the oldest still-tracked id. Caller holds the lock.
func (d *inMemoryDeduper) evictOldest() {
	for d.start < len(d.order) {
		id := d.order[d.start]
		d.start++
		if _, ok := d.seen[id]; ok {
			delete(d.seen, id)
			break
		}
	}
	// Compact the ring once the dead prefix dominates.
	if d.start > len(d.order)/2 {
		d.order = append([]string(nil), d.order[d.start:]...)
		d.start = 0
	}
}
