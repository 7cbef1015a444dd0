// Package mergesched consolidates partitions after tier moves. Fine-grained
// partitions demoted to a coarser tier get folded into their coarse
// neighbor so the layout converges on the tier's granularity: twelve
// monthly partitions moved to a yearly tier end up as one yearly partition.
//
// Consolidation is opportunistic. A failed or skipped merge never fails the
// move that triggered it; the periodic sweep picks up whatever was missed.
package mergesched

import (
	"context"
	"fmt"
	"log/slog"

	"strata/internal/executor"
	"strata/internal/logging"
	"strata/internal/metrics"
	"strata/internal/partition"
	"strata/internal/storage"
	"strata/internal/tier"
)

// Scheduler folds moved partitions into their coarse-granularity neighbors.
type Scheduler struct {
	engine  storage.Engine
	meta    storage.Metadata
	busy    *executor.Busy
	log     *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Scheduler. The busy registry must be the one the executor
// uses, so merges and policy actions never overlap on a partition.
func New(engine storage.Engine, meta storage.Metadata, busy *executor.Busy, log *slog.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		engine:  engine,
		meta:    meta,
		busy:    busy,
		log:     logging.Default(log).With("component", "mergesched"),
		metrics: m,
	}
}

// Consolidate tries to fold a freshly moved partition into the adjacent
// partition of the same coarse-granularity bucket. Intended as the
// executor's move hook; errors are absorbed, the sweep retries later.
func (s *Scheduler) Consolidate(ctx context.Context, moved partition.Partition, tmpl tier.Template) {
	merged, err := s.consolidate(ctx, moved, tmpl)
	switch {
	case err != nil:
		s.count("failed")
		s.log.Warn("consolidation failed, sweep will retry",
			"dataset", moved.Dataset,
			"partition", moved.ID,
			"error", err)
	case merged:
		s.count("merged")
	}
}

func (s *Scheduler) consolidate(ctx context.Context, moved partition.Partition, tmpl tier.Template) (bool, error) {
	gran := tmpl.Def(moved.Tier).Granularity
	parts, err := s.meta.ListPartitions(ctx, moved.Dataset)
	if err != nil {
		return false, fmt.Errorf("list partitions: %w", err)
	}

	// The coarse neighbor ends exactly where the moved partition starts
	// and lives in the same location and granularity bucket.
	var target *partition.Partition
	for i := range parts {
		p := parts[i]
		if p.ID == moved.ID || p.Open() {
			continue
		}
		if !p.Upper.Equal(moved.Lower) || p.Location != moved.Location {
			continue
		}
		if !gran.Floor(p.Lower).Equal(gran.Floor(moved.Lower)) {
			continue
		}
		target = &p
		break
	}
	if target == nil {
		// The moved partition starts a new coarse bucket.
		return false, nil
	}

	return s.merge(ctx, *target, moved)
}

// merge runs one engine merge under busy locks on both operands. Returns
// false without error when either partition is busy.
func (s *Scheduler) merge(ctx context.Context, a, b partition.Partition) (bool, error) {
	if !s.busy.TryAcquire(a.Key()) {
		return false, nil
	}
	defer s.busy.Release(a.Key())
	if !s.busy.TryAcquire(b.Key()) {
		return false, nil
	}
	defer s.busy.Release(b.Key())

	merged, err := s.engine.Merge(ctx, a.ID, b.ID)
	if err != nil {
		return false, fmt.Errorf("merge %s into %s: %w", b.ID, a.ID, err)
	}
	s.log.Info("partitions consolidated",
		"dataset", merged.Dataset,
		"partition", merged.ID,
		"lower", merged.Lower,
		"upper", merged.Upper)
	return true, nil
}

// Sweep retries consolidation across a whole dataset: every adjacent pair
// in the same location and coarse bucket gets merged. Returns the number
// of merges performed. Individual failures are logged and skipped so one
// bad pair doesn't stall the rest.
func (s *Scheduler) Sweep(ctx context.Context, dataset string, tmpl tier.Template) (int, error) {
	parts, err := s.meta.ListPartitions(ctx, dataset)
	if err != nil {
		return 0, fmt.Errorf("list partitions: %w", err)
	}

	total := 0
	for i := 0; i+1 < len(parts); {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		a, b := parts[i], parts[i+1]
		if !s.mergeable(a, b, tmpl) {
			i++
			continue
		}
		merged, err := s.merge(ctx, a, b)
		if err != nil {
			s.count("failed")
			s.log.Warn("sweep merge failed",
				"dataset", dataset,
				"lower", a.ID,
				"upper", b.ID,
				"error", err)
			i++
			continue
		}
		if !merged {
			// Busy; leave for the next sweep.
			i++
			continue
		}
		s.count("merged")
		total++
		// The merged partition may absorb the next neighbor too.
		a.Upper = b.Upper
		a.Rows += b.Rows
		a.Bytes += b.Bytes
		parts = append(parts[:i+1], parts[i+2:]...)
		parts[i] = a
	}
	return total, nil
}

// mergeable reports whether two neighbors belong to the same coarse
// granularity bucket of their tier.
func (s *Scheduler) mergeable(a, b partition.Partition, tmpl tier.Template) bool {
	if a.Open() || b.Open() {
		return false
	}
	if !partition.Adjacent(a, b) || a.Location != b.Location {
		return false
	}
	tr, ok := tmpl.TierForLocation(a.Location)
	if !ok {
		return false
	}
	// Same coarse bucket. A partition already spanning its full bucket
	// ends where the next bucket starts, so this also stops over-merging.
	gran := tmpl.Def(tr).Granularity
	return gran.Floor(a.Lower).Equal(gran.Floor(b.Lower))
}

func (s *Scheduler) count(status string) {
	if s.metrics != nil {
		s.metrics.MergesTotal.WithLabelValues(status).Inc()
	}
}
