package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"strata/internal/partition"
	"strata/internal/storage"
	"strata/internal/tier"
)

// recencyCache caches access recency lookups. Recency queries can be
// expensive on the metadata side, so cached values are reused until they
// go stale; a partition whose engine reports no recency at all is
// remembered as such and classified by age.
type recencyCache struct {
	meta      storage.Metadata
	staleness time.Duration
	now       func() time.Time

	mu      sync.Mutex
	entries map[partition.ID]recencyEntry
}

type recencyEntry struct {
	access      *tier.Access // nil: recency unavailable for this partition
	refreshedAt time.Time
}

func newRecencyCache(meta storage.Metadata, staleness time.Duration, now func() time.Time) *recencyCache {
	return &recencyCache{
		meta:      meta,
		staleness: staleness,
		now:       now,
		entries:   make(map[partition.ID]recencyEntry),
	}
}

// get returns access signals for a partition, refreshing stale entries.
// Returns nil when recency is unavailable; lookup errors degrade to
// age-based classification rather than failing the evaluation.
func (c *recencyCache) get(ctx context.Context, id partition.ID) (*tier.Access, error) {
	now := c.now()

	c.mu.Lock()
	e, ok := c.entries[id]
	c.mu.Unlock()
	if ok && now.Sub(e.refreshedAt) < c.staleness {
		return e.access, nil
	}

	rec, err := c.meta.AccessRecency(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNoRecency) {
			c.put(id, recencyEntry{access: nil, refreshedAt: now})
			return nil, nil
		}
		// Keep serving the stale value if we have one.
		if ok {
			return e.access, nil
		}
		return nil, err
	}

	access := &tier.Access{
		LastRead:    rec.LastRead,
		LastWrite:   rec.LastWrite,
		RefreshedAt: now,
	}
	c.put(id, recencyEntry{access: access, refreshedAt: now})
	return access, nil
}

func (c *recencyCache) put(id partition.ID, e recencyEntry) {
	c.mu.Lock()
	c.entries[id] = e
	c.mu.Unlock()
}

// forget drops a partition from the cache, e.g. after it is merged away.
func (c *recencyCache) forget(id partition.ID) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}
