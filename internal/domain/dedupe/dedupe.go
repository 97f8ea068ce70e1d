// Package dedupe defines the interface for outcome idempotency tracking.
package dedupe

import (
	"context"
	"sync"
)

// Deduper tracks processed outcome IDs so resubmitted outcomes are applied
// at most once. Checking and recording are separate so callers can defer
// recording until the work for an id has actually committed.
type Deduper interface {
	// Seen reports whether id has been recorded.
	Seen(ctx context.Context, id string) bool

	// Record marks id as processed. Recording an id twice is a no-op.
	Record(ctx context.Context, id string)

	// Size returns the number of IDs currently tracked.
	Size() int
}

// Option applies a configuration option to the in-memory deduper.
type Option func(*inMemoryDeduper)

// WithMaxSize sets the maximum number of IDs to keep in memory. When the
// bound is reached the oldest recorded id is evicted. A non-positive size
// keeps everything.
func WithMaxSize(maxSize int) Option {
	return func(d *inMemoryDeduper) { d.maxSize = maxSize }
}

// inMemoryDeduper implements Deduper with a map plus FIFO eviction ring.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	order   []string
	oldest  int
	maxSize int
}

// NewInMemoryDeduper creates a new in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 50_000,
		seen:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.maxSize > 0 {
		d.order = make([]string, 0, d.maxSize)
	}
	return d
}

// Seen implements Deduper.
func (d *inMemoryDeduper) Seen(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, exists := d.seen[id]
	return exists
}

// Record implements Deduper.
func (d *inMemoryDeduper) Record(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		return
	}

	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		evicted := d.order[d.oldest]
		delete(d.seen, evicted)
		d.order[d.oldest] = id
		d.oldest = (d.oldest + 1) % d.maxSize
	} else if d.maxSize > 0 {
		d.order = append(d.order, id)
	}
	d.seen[id] = struct{}{}
}

// Size implements Deduper.
func (d *inMemoryDeduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
