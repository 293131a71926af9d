// Package dedupe tracks idempotency keys so a fact is recorded at most once.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records seen keys to ensure at-most-once recording.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so it can be recorded again. Used when a
	// recorded fact is purged or its write could not be persisted.
	Unrecord(ctx context.Context, key string)

	// Contains reports whether key is currently recorded.
	Contains(key string) bool

	// Reset forgets every key.
	Reset()

	Size() int64
}

// inMemoryDeduper is an unbounded set. Entries never expire on their own;
// spotlight facts must stay deduplicated until their week is purged.
type inMemoryDeduper struct {
	mu       sync.RWMutex
	seen     map[string]struct{}
	capacity int
	size     atomic.Int64
}

// NewInMemoryDeduper creates an empty deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]struct{}, d.capacity)
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[key]; exists {
		return true
	}
	d.seen[key] = struct{}{}
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[key]; exists {
		delete(d.seen, key)
		d.size.Add(-1)
	}
}

func (d *inMemoryDeduper) Contains(key string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.seen[key]
	return ok
}

func (d *inMemoryDeduper) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]struct{}, d.capacity)
	d.size.Store(0)
}

// Size returns the number of recorded keys.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
