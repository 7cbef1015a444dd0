// Package memory provides an in-memory storage engine and metadata store.
// Intended for tests and local experiments: partitions are plain metadata
// records, operations are instantaneous unless a delay is injected, and
// failures can be scripted per operation.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"strata/internal/partition"
	"strata/internal/planner"
	"strata/internal/storage"
	"strata/internal/tier"
)

// Store is an in-memory storage.Engine and storage.Metadata implementation.
type Store struct {
	mu         sync.Mutex
	partitions map[partition.ID]partition.Partition
	locations  map[string]bool
	recency    map[partition.ID]storage.Recency

	// failures maps an op name ("relocate", "merge", ...) to an error
	// returned on the next call of that op.
	failures map[string]error

	// OpDelay stalls every engine call, for timeout and concurrency tests.
	OpDelay time.Duration

	// inFlight tracks concurrent engine calls per partition; MaxConcurrent
	// records the high-water mark across all partitions.
	inFlight      map[partition.ID]int
	maxConcurrent int
}

var (
	_ storage.Engine   = (*Store)(nil)
	_ storage.Metadata = (*Store)(nil)
)

// NewStore creates an empty store that accepts the given locations.
func NewStore(locations ...string) *Store {
	locs := make(map[string]bool, len(locations))
	for _, l := range locations {
		locs[l] = true
	}
	return &Store{
		partitions: make(map[partition.ID]partition.Partition),
		locations:  locs,
		recency:    make(map[partition.ID]storage.Recency),
		failures:   make(map[string]error),
		inFlight:   make(map[partition.ID]int),
	}
}

// Add seeds a partition.
func (s *Store) Add(p partition.Partition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partitions[p.ID] = p
}

// SetRecency seeds access recency for a partition.
func (s *Store) SetRecency(id partition.ID, r storage.Recency) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recency[id] = r
}

// FailNext makes the next call of op return err.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// MaxConcurrent returns the highest number of simultaneous engine calls
// observed against any single partition.
func (s *Store) MaxConcurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxConcurrent
}

// Get returns a copy of the partition.
func (s *Store) Get(id partition.ID) (partition.Partition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partitions[id]
	return p, ok
}

// begin records an in-flight op and scripted failure; end reverses it.
func (s *Store) begin(ctx context.Context, op string, id partition.ID) (func(), error) {
	s.mu.Lock()
	if err, ok := s.failures[op]; ok {
		delete(s.failures, op)
		s.mu.Unlock()
		return nil, &storage.OpError{Op: op, Partition: id, Err: err}
	}
	s.inFlight[id]++
	if s.inFlight[id] > s.maxConcurrent {
		s.maxConcurrent = s.inFlight[id]
	}
	delay := s.OpDelay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			// The op is not abortable; simulate it running to completion
			// anyway, like a real DDL-equivalent operation.
			time.Sleep(delay)
		}
	}

	return func() {
		s.mu.Lock()
		s.inFlight[id]--
		s.mu.Unlock()
	}, nil
}

func (s *Store) CreatePartitions(ctx context.Context, dataset string, boundaries []planner.Boundary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range boundaries {
		if !s.locations[b.Location] {
			return fmt.Errorf("create partitions: %w: %s", storage.ErrUnknownLocation, b.Location)
		}
	}
	for _, b := range boundaries {
		p := partition.Partition{
			ID:        partition.NewID(),
			Dataset:   dataset,
			Lower:     b.Lower,
			Upper:     b.Upper,
			Tier:      b.Tier,
			Location:  b.Location,
			Codec:     b.Codec,
			CreatedAt: time.Now().UTC(),
		}
		if b.Open {
			p.Upper = time.Time{}
		}
		s.partitions[p.ID] = p
	}
	return nil
}

func (s *Store) SetCodec(ctx context.Context, id partition.ID, codec tier.Codec) error {
	end, err := s.begin(ctx, "set_codec", id)
	if err != nil {
		return err
	}
	defer end()

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partitions[id]
	if !ok {
		return &storage.OpError{Op: "set_codec", Partition: id, Err: storage.ErrNotFound}
	}
	p.Codec = codec
	// Recompression shrinks the partition a little.
	p.Bytes = p.Bytes * 7 / 10
	s.partitions[id] = p
	return nil
}

func (s *Store) Relocate(ctx context.Context, id partition.ID, location string, codec tier.Codec) error {
	end, err := s.begin(ctx, "relocate", id)
	if err != nil {
		return err
	}
	defer end()

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partitions[id]
	if !ok {
		return &storage.OpError{Op: "relocate", Partition: id, Err: storage.ErrNotFound}
	}
	if !s.locations[location] {
		return &storage.OpError{Op: "relocate", Partition: id, Err: fmt.Errorf("%w: %s", storage.ErrUnknownLocation, location)}
	}
	p.Location = location
	p.Codec = codec
	s.partitions[id] = p
	return nil
}

func (s *Store) SealReadOnly(ctx context.Context, id partition.ID) error {
	end, err := s.begin(ctx, "seal_read_only", id)
	if err != nil {
		return err
	}
	defer end()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.partitions[id]; !ok {
		return &storage.OpError{Op: "seal_read_only", Partition: id, Err: storage.ErrNotFound}
	}
	return nil
}

func (s *Store) Drop(ctx context.Context, id partition.ID) error {
	end, err := s.begin(ctx, "drop", id)
	if err != nil {
		return err
	}
	defer end()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.partitions[id]; !ok {
		return &storage.OpError{Op: "drop", Partition: id, Err: storage.ErrNotFound}
	}
	delete(s.partitions, id)
	return nil
}

func (s *Store) Truncate(ctx context.Context, id partition.ID) error {
	end, err := s.begin(ctx, "truncate", id)
	if err != nil {
		return err
	}
	defer end()

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partitions[id]
	if !ok {
		return &storage.OpError{Op: "truncate", Partition: id, Err: storage.ErrNotFound}
	}
	p.Rows = 0
	p.Bytes = 0
	s.partitions[id] = p
	return nil
}

func (s *Store) Merge(ctx context.Context, a, b partition.ID) (partition.Partition, error) {
	end, err := s.begin(ctx, "merge", a)
	if err != nil {
		return partition.Partition{}, err
	}
	defer end()

	s.mu.Lock()
	defer s.mu.Unlock()
	pa, ok := s.partitions[a]
	if !ok {
		return partition.Partition{}, &storage.OpError{Op: "merge", Partition: a, Err: storage.ErrNotFound}
	}
	pb, ok := s.partitions[b]
	if !ok {
		return partition.Partition{}, &storage.OpError{Op: "merge", Partition: b, Err: storage.ErrNotFound}
	}
	if !partition.Adjacent(pa, pb) {
		return partition.Partition{}, &storage.OpError{Op: "merge", Partition: a, Err: storage.ErrNotAdjacent}
	}
	if pa.Location != pb.Location {
		return partition.Partition{}, &storage.OpError{Op: "merge", Partition: a, Err: fmt.Errorf("cross-location merge: %s vs %s", pa.Location, pb.Location)}
	}

	pa.Upper = pb.Upper
	pa.Rows += pb.Rows
	pa.Bytes += pb.Bytes
	s.partitions[a] = pa
	delete(s.partitions, b)
	return pa, nil
}

func (s *Store) ListPartitions(ctx context.Context, dataset string) ([]partition.Partition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []partition.Partition
	for _, p := range s.partitions {
		if p.Dataset == dataset {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Lower.Before(out[j].Lower) })
	return out, nil
}

func (s *Store) PartitionMetrics(ctx context.Context, id partition.ID) (storage.Metrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partitions[id]
	if !ok {
		return storage.Metrics{}, storage.ErrNotFound
	}
	return storage.Metrics{Rows: p.Rows, Bytes: p.Bytes}, nil
}

func (s *Store) AccessRecency(ctx context.Context, id partition.ID) (storage.Recency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recency[id]
	if !ok {
		return storage.Recency{}, storage.ErrNoRecency
	}
	return r, nil
}
