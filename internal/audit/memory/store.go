// Package memory provides an in-memory audit Store implementation.
// Intended for testing; records are not persisted across restarts.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"strata/internal/audit"
	"strata/internal/partition"
)

type pairKey struct {
	policy    uuid.UUID
	partition partition.ID
}

// Store is an in-memory audit.Store implementation.
type Store struct {
	mu      sync.Mutex
	entries map[pairKey]audit.QueueEntry
	byID    map[uuid.UUID]pairKey
	log     []audit.LogEntry
}

var _ audit.Store = (*Store)(nil)

// NewStore creates a new in-memory audit store.
func NewStore() *Store {
	return &Store{
		entries: make(map[pairKey]audit.QueueEntry),
		byID:    make(map[uuid.UUID]pairKey),
	}
}

func (s *Store) UpsertEntry(ctx context.Context, e audit.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{e.PolicyID, e.PartitionID}
	if old, ok := s.entries[key]; ok {
		delete(s.byID, old.ID)
	}
	s.entries[key] = e
	s.byID[e.ID] = key
	return nil
}

func (s *Store) GetEntry(ctx context.Context, policyID uuid.UUID, partitionID partition.ID) (*audit.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[pairKey{policyID, partitionID}]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *Store) ListPending(ctx context.Context) ([]audit.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.QueueEntry
	for _, e := range s.entries {
		if e.Status == audit.QueuePending && e.Eligible {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].AgeDays > out[j].AgeDays
	})
	return out, nil
}

func (s *Store) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	e := s.entries[key]
	if e.Status != audit.QueuePending {
		return false, nil
	}
	e.Status = audit.QueueExecuted
	s.entries[key] = e
	return true, nil
}

func (s *Store) MarkSkipped(ctx context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byID[id]
	if !ok {
		return nil
	}
	e := s.entries[key]
	e.Status = audit.QueueSkipped
	e.Reason = reason
	s.entries[key] = e
	return nil
}

func (s *Store) PurgeQueue(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, e := range s.entries {
		if e.Status != audit.QueuePending && e.EvaluatedAt.Before(olderThan) {
			delete(s.entries, key)
			delete(s.byID, e.ID)
			n++
		}
	}
	return n, nil
}

func (s *Store) BeginLog(ctx context.Context, e audit.LogEntry) error {
	if e.Status != audit.LogRunning {
		return fmt.Errorf("begin log: status must be RUNNING, got %s", e.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, e)
	return nil
}

func (s *Store) FinishLog(ctx context.Context, e audit.LogEntry) error {
	if e.Status != audit.LogSuccess && e.Status != audit.LogFailed {
		return fmt.Errorf("finish log: status must be terminal, got %s", e.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.log) - 1; i >= 0; i-- {
		if s.log[i].ID == e.ID {
			if s.log[i].Status != audit.LogRunning {
				return fmt.Errorf("finish log: entry %s already finished", e.ID)
			}
			s.log[i] = e
			return nil
		}
	}
	return fmt.Errorf("finish log: entry %s not found", e.ID)
}

func (s *Store) LastLog(ctx context.Context, policyID uuid.UUID, partitionID partition.ID) (*audit.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.log) - 1; i >= 0; i-- {
		if s.log[i].PolicyID == policyID && s.log[i].PartitionID == partitionID {
			e := s.log[i]
			return &e, nil
		}
	}
	return nil, nil
}

func (s *Store) QueryLog(ctx context.Context, f audit.LogFilter) ([]audit.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.LogEntry
	for i := len(s.log) - 1; i >= 0; i-- {
		e := s.log[i]
		if f.Dataset != "" && e.Dataset != f.Dataset {
			continue
		}
		if f.PolicyID != nil && e.PolicyID != *f.PolicyID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if !f.Since.IsZero() && e.StartedAt.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && !e.StartedAt.Before(f.Until) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) Close() error { return nil }
