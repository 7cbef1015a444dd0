package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"strata/internal/audit"
	"strata/internal/partition"
	"strata/internal/policy"
	"strata/internal/storage"
	"strata/internal/store"
	"strata/internal/tier"
)

// EvalStats summarizes one evaluation pass.
type EvalStats struct {
	Datasets   int
	Policies   int
	Partitions int
	Eligible   int
	Ineligible int
}

func (s *EvalStats) add(o EvalStats) {
	s.Datasets += o.Datasets
	s.Policies += o.Policies
	s.Partitions += o.Partitions
	s.Eligible += o.Eligible
	s.Ineligible += o.Ineligible
}

// EvaluateAll runs the evaluation pass over every registered dataset.
func (e *Engine) EvaluateAll(ctx context.Context) (EvalStats, error) {
	datasets, err := e.cfg.ListDatasets(ctx)
	if err != nil {
		return EvalStats{}, fmt.Errorf("list datasets: %w", err)
	}
	var total EvalStats
	for _, ds := range datasets {
		stats, err := e.EvaluateDataset(ctx, ds.Name)
		if err != nil {
			return total, err
		}
		total.add(stats)
	}
	e.log.Info("evaluation pass complete",
		"datasets", total.Datasets,
		"eligible", total.Eligible,
		"ineligible", total.Ineligible)
	return total, nil
}

// EvaluateDataset matches every active policy of a dataset against every
// partition and records the outcome in the queue. Every (policy,
// partition) pair gets an entry: eligible ones PENDING, the rest SKIPPED
// with the reason, so no decision is silently dropped.
func (e *Engine) EvaluateDataset(ctx context.Context, dataset string) (EvalStats, error) {
	ds, err := e.cfg.GetDataset(ctx, dataset)
	if err != nil {
		return EvalStats{}, err
	}
	if ds == nil {
		return EvalStats{}, fmt.Errorf("dataset %q not registered", dataset)
	}

	parts, err := e.meta.ListPartitions(ctx, dataset)
	if err != nil {
		return EvalStats{}, fmt.Errorf("list partitions: %w", err)
	}
	all, err := e.cfg.ListPolicies(ctx)
	if err != nil {
		return EvalStats{}, fmt.Errorf("list policies: %w", err)
	}

	now := e.now()
	stats := EvalStats{Datasets: 1, Partitions: len(parts)}
	for _, pol := range all {
		if pol.Dataset != dataset || !pol.Active() {
			continue
		}
		stats.Policies++

		profile, err := store.ResolveProfile(ctx, e.cfg, pol.Profile)
		if err != nil {
			// A policy referencing a deleted profile must not stall the
			// rest of the pass.
			e.log.Warn("profile resolution failed, policy skipped",
				"policy", pol.Name,
				"profile", pol.Profile,
				"error", err)
			continue
		}

		for _, part := range parts {
			entry, err := e.evaluatePair(ctx, pol, profile, part, now)
			if err != nil {
				return stats, err
			}
			if entry.Eligible {
				stats.Eligible++
				e.countEval("eligible")
			} else {
				stats.Ineligible++
				e.countEval("ineligible")
			}
			if err := e.queue.UpsertEntry(ctx, entry); err != nil {
				return stats, fmt.Errorf("upsert queue entry: %w", err)
			}
		}
	}
	return stats, nil
}

// EvaluatePolicy matches a single policy against its dataset's partitions,
// for targeted manual triggers.
func (e *Engine) EvaluatePolicy(ctx context.Context, id uuid.UUID) (EvalStats, error) {
	pol, err := e.cfg.GetPolicy(ctx, id)
	if err != nil {
		return EvalStats{}, err
	}
	if pol == nil {
		return EvalStats{}, fmt.Errorf("policy %s not found", id)
	}
	if !pol.Active() {
		return EvalStats{}, fmt.Errorf("policy %q is disabled or paused", pol.Name)
	}

	profile, err := store.ResolveProfile(ctx, e.cfg, pol.Profile)
	if err != nil {
		return EvalStats{}, err
	}
	parts, err := e.meta.ListPartitions(ctx, pol.Dataset)
	if err != nil {
		return EvalStats{}, fmt.Errorf("list partitions: %w", err)
	}

	now := e.now()
	stats := EvalStats{Datasets: 1, Policies: 1, Partitions: len(parts)}
	for _, part := range parts {
		entry, err := e.evaluatePair(ctx, *pol, profile, part, now)
		if err != nil {
			return stats, err
		}
		if entry.Eligible {
			stats.Eligible++
			e.countEval("eligible")
		} else {
			stats.Ineligible++
			e.countEval("ineligible")
		}
		if err := e.queue.UpsertEntry(ctx, entry); err != nil {
			return stats, fmt.Errorf("upsert queue entry: %w", err)
		}
	}
	return stats, nil
}

// evaluatePair produces the queue entry for one (policy, partition) pair.
// Policy conditions run only after the operational gates: a busy
// partition, a recent success, an in-flight execution or an unresolved
// terminal failure each short-circuit to SKIPPED.
func (e *Engine) evaluatePair(ctx context.Context, pol policy.Policy, profile tier.ThresholdProfile, part partition.Partition, now time.Time) (audit.QueueEntry, error) {
	entry := audit.QueueEntry{
		ID:          uuid.Must(uuid.NewV7()),
		PolicyID:    pol.ID,
		PartitionID: part.ID,
		Dataset:     part.Dataset,
		Priority:    pol.Priority,
		AgeDays:     part.BoundaryAgeDays(now),
		Status:      audit.QueuePending,
		EvaluatedAt: now,
	}
	skip := func(reason string) audit.QueueEntry {
		entry.Eligible = false
		entry.Reason = reason
		entry.Status = audit.QueueSkipped
		return entry
	}

	if e.busy.Held(part.Key()) {
		return skip("action in flight on partition"), nil
	}

	last, err := e.queue.LastLog(ctx, pol.ID, part.ID)
	if err != nil {
		return entry, fmt.Errorf("last log for %s/%s: %w", pol.ID, part.ID, err)
	}
	retryingFailure := false
	if last != nil {
		switch last.Status {
		case audit.LogRunning:
			return skip("execution in progress"), nil
		case audit.LogSuccess:
			if now.Sub(last.FinishedAt) < e.minReeval {
				return skip(fmt.Sprintf("executed successfully %s ago", now.Sub(last.FinishedAt).Round(time.Minute))), nil
			}
		case audit.LogFailed:
			if last.ErrorKind == storage.KindTerminal && !pol.UpdatedAt.After(last.FinishedAt) {
				return skip("blocked: last execution failed terminally; update the policy to retry"), nil
			}
			retryingFailure = last.ErrorKind == storage.KindRetryable
		}
	}

	access, err := e.recency.get(ctx, part.ID)
	if err != nil {
		// Degrade to age-based classification.
		e.log.Warn("recency lookup failed", "partition", part.ID, "error", err)
		access = nil
	}
	cls := tier.Classify(profile, part.Upper, access, now)
	if cls.Warning != "" {
		e.log.Warn("classifier warning",
			"partition", part.ID,
			"dataset", part.Dataset,
			"warning", cls.Warning)
	}
	entry.AgeDays = cls.AgeDays

	verdict := policy.Evaluate(pol, part, cls.Temperature, now, e.predicates)
	if !verdict.Eligible {
		return skip(verdict.Reason), nil
	}
	entry.Eligible = true
	if retryingFailure && e.metrics != nil {
		e.metrics.RetriesTotal.Inc()
	}
	return entry, nil
}

func (e *Engine) countEval(outcome string) {
	if e.metrics != nil {
		e.metrics.EvaluationsTotal.WithLabelValues(outcome).Inc()
	}
}
