package executor

import (
	"sync"

	"strata/internal/partition"
)

// Busy tracks partitions with an action in flight. At most one action runs
// against a partition at a time; the registry is the lock that enforces it.
type Busy struct {
	mu   sync.Mutex
	keys map[partition.Key]struct{}
}

// NewBusy creates an empty registry.
func NewBusy() *Busy {
	return &Busy{keys: make(map[partition.Key]struct{})}
}

// TryAcquire marks a partition busy. Returns false when it already is.
func (b *Busy) TryAcquire(k partition.Key) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, held := b.keys[k]; held {
		return false
	}
	b.keys[k] = struct{}{}
	return true
}

// Release clears a partition's busy mark.
func (b *Busy) Release(k partition.Key) {
	b.mu.Lock()
	delete(b.keys, k)
	b.mu.Unlock()
}

// Held reports whether a partition is busy.
func (b *Busy) Held(k partition.Key) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, held := b.keys[k]
	return held
}

// Len returns the number of busy partitions.
func (b *Busy) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.keys)
}
