// Package audittest provides a shared conformance test suite for
// audit.Store implementations. Each backend (memory, sqlite) wires this
// suite to verify queue semantics (pair-keyed upserts, ordering, atomic
// claims) and execution log semantics (append-only, finished entries
// immutable).
package audittest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"strata/internal/audit"
	"strata/internal/partition"
	"strata/internal/policy"
	"strata/internal/storage"
)

func newID() uuid.UUID { return uuid.Must(uuid.NewV7()) }

func pendingEntry(policyID uuid.UUID, partitionID partition.ID, priority, ageDays int) audit.QueueEntry {
	return audit.QueueEntry{
		ID:          newID(),
		PolicyID:    policyID,
		PartitionID: partitionID,
		Dataset:     "events",
		Priority:    priority,
		AgeDays:     ageDays,
		Eligible:    true,
		Status:      audit.QueuePending,
		EvaluatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func runningLog(policyID uuid.UUID, partitionID partition.ID, startedAt time.Time) audit.LogEntry {
	return audit.LogEntry{
		ID:             newID(),
		PolicyID:       policyID,
		PartitionID:    partitionID,
		Dataset:        "events",
		Action:         policy.ActionCompress,
		BeforeBytes:    1 << 30,
		BeforeLocation: "ssd",
		Status:         audit.LogRunning,
		StartedAt:      startedAt,
	}
}

// TestStore runs the full conformance suite against an audit.Store
// implementation. newStore must return a fresh, empty store per call.
func TestStore(t *testing.T, newStore func(t *testing.T) audit.Store) {
	t.Run("GetMissingEntry", func(t *testing.T) {
		s := newStore(t)
		e, err := s.GetEntry(context.Background(), newID(), partition.NewID())
		if err != nil {
			t.Fatalf("GetEntry: %v", err)
		}
		if e != nil {
			t.Fatalf("expected nil entry, got %+v", e)
		}
	})

	t.Run("UpsertReplacesPair", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		policyID, partitionID := newID(), partition.NewID()

		first := pendingEntry(policyID, partitionID, 10, 100)
		if err := s.UpsertEntry(ctx, first); err != nil {
			t.Fatalf("UpsertEntry: %v", err)
		}

		second := pendingEntry(policyID, partitionID, 20, 101)
		second.Eligible = false
		second.Reason = "condition no longer holds"
		second.Status = audit.QueueSkipped
		if err := s.UpsertEntry(ctx, second); err != nil {
			t.Fatalf("UpsertEntry (replace): %v", err)
		}

		got, err := s.GetEntry(ctx, policyID, partitionID)
		if err != nil {
			t.Fatalf("GetEntry: %v", err)
		}
		if got == nil {
			t.Fatal("expected entry after upsert")
		}
		if got.ID != second.ID {
			t.Errorf("expected replacement id %s, got %s", second.ID, got.ID)
		}
		if got.Status != audit.QueueSkipped || got.Reason != second.Reason {
			t.Errorf("expected skipped entry with reason, got %+v", got)
		}

		pending, err := s.ListPending(ctx)
		if err != nil {
			t.Fatalf("ListPending: %v", err)
		}
		if len(pending) != 0 {
			t.Errorf("expected empty pending list after replacement, got %d entries", len(pending))
		}
	})

	t.Run("ListPendingOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		// Priority ascends first, then older partitions first within a
		// priority. Ineligible and consumed entries never appear.
		entries := []audit.QueueEntry{
			pendingEntry(newID(), partition.NewID(), 20, 500),
			pendingEntry(newID(), partition.NewID(), 10, 100),
			pendingEntry(newID(), partition.NewID(), 10, 900),
			pendingEntry(newID(), partition.NewID(), 10, 400),
		}
		skipped := pendingEntry(newID(), partition.NewID(), 0, 9999)
		skipped.Eligible = false
		skipped.Status = audit.QueueSkipped
		skipped.Reason = "partition is open"
		entries = append(entries, skipped)

		for _, e := range entries {
			if err := s.UpsertEntry(ctx, e); err != nil {
				t.Fatalf("UpsertEntry: %v", err)
			}
		}

		pending, err := s.ListPending(ctx)
		if err != nil {
			t.Fatalf("ListPending: %v", err)
		}
		want := []uuid.UUID{entries[2].ID, entries[3].ID, entries[1].ID, entries[0].ID}
		if len(pending) != len(want) {
			t.Fatalf("expected %d pending entries, got %d", len(want), len(pending))
		}
		for i, id := range want {
			if pending[i].ID != id {
				t.Errorf("pending[%d]: expected %s, got %s (prio %d age %d)",
					i, id, pending[i].ID, pending[i].Priority, pending[i].AgeDays)
			}
		}
	})

	t.Run("ClaimSingleWinner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		e := pendingEntry(newID(), partition.NewID(), 10, 100)
		if err := s.UpsertEntry(ctx, e); err != nil {
			t.Fatalf("UpsertEntry: %v", err)
		}

		const workers = 8
		var wg sync.WaitGroup
		wins := make(chan bool, workers)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.Claim(ctx, e.ID)
				if err != nil {
					t.Errorf("Claim: %v", err)
					return
				}
				if ok {
					wins <- true
				}
			}()
		}
		wg.Wait()
		close(wins)

		won := 0
		for range wins {
			won++
		}
		if won != 1 {
			t.Errorf("expected exactly one winning claim, got %d", won)
		}

		got, err := s.GetEntry(ctx, e.PolicyID, e.PartitionID)
		if err != nil {
			t.Fatalf("GetEntry: %v", err)
		}
		if got.Status != audit.QueueExecuted {
			t.Errorf("expected status EXECUTED after claim, got %s", got.Status)
		}
	})

	t.Run("ClaimMissing", func(t *testing.T) {
		s := newStore(t)
		ok, err := s.Claim(context.Background(), newID())
		if err != nil {
			t.Fatalf("Claim: %v", err)
		}
		if ok {
			t.Error("expected claim of unknown entry to fail")
		}
	})

	t.Run("MarkSkipped", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		e := pendingEntry(newID(), partition.NewID(), 10, 100)
		if err := s.UpsertEntry(ctx, e); err != nil {
			t.Fatalf("UpsertEntry: %v", err)
		}
		if err := s.MarkSkipped(ctx, e.ID, "partition busy"); err != nil {
			t.Fatalf("MarkSkipped: %v", err)
		}
		got, err := s.GetEntry(ctx, e.PolicyID, e.PartitionID)
		if err != nil {
			t.Fatalf("GetEntry: %v", err)
		}
		if got.Status != audit.QueueSkipped || got.Reason != "partition busy" {
			t.Errorf("expected skipped entry with reason, got %+v", got)
		}
		if ok, _ := s.Claim(ctx, e.ID); ok {
			t.Error("expected claim of skipped entry to fail")
		}
	})

	t.Run("PurgeQueue", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		cutoff := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

		oldDone := pendingEntry(newID(), partition.NewID(), 10, 100)
		oldDone.Status = audit.QueueExecuted
		oldDone.EvaluatedAt = cutoff.Add(-time.Hour)

		oldPending := pendingEntry(newID(), partition.NewID(), 10, 100)
		oldPending.EvaluatedAt = cutoff.Add(-time.Hour)

		freshDone := pendingEntry(newID(), partition.NewID(), 10, 100)
		freshDone.Status = audit.QueueSkipped
		freshDone.Eligible = false
		freshDone.EvaluatedAt = cutoff.Add(time.Hour)

		for _, e := range []audit.QueueEntry{oldDone, oldPending, freshDone} {
			if err := s.UpsertEntry(ctx, e); err != nil {
				t.Fatalf("UpsertEntry: %v", err)
			}
		}

		n, err := s.PurgeQueue(ctx, cutoff)
		if err != nil {
			t.Fatalf("PurgeQueue: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 purged entry, got %d", n)
		}

		// Pending entries survive regardless of age.
		if got, _ := s.GetEntry(ctx, oldPending.PolicyID, oldPending.PartitionID); got == nil {
			t.Error("expected old pending entry to survive purge")
		}
		if got, _ := s.GetEntry(ctx, oldDone.PolicyID, oldDone.PartitionID); got != nil {
			t.Error("expected old executed entry to be purged")
		}
		if got, _ := s.GetEntry(ctx, freshDone.PolicyID, freshDone.PartitionID); got == nil {
			t.Error("expected fresh skipped entry to survive purge")
		}
	})

	t.Run("LogLifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		policyID, partitionID := newID(), partition.NewID()
		started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

		e := runningLog(policyID, partitionID, started)
		if err := s.BeginLog(ctx, e); err != nil {
			t.Fatalf("BeginLog: %v", err)
		}

		got, err := s.LastLog(ctx, policyID, partitionID)
		if err != nil {
			t.Fatalf("LastLog: %v", err)
		}
		if got == nil || got.Status != audit.LogRunning {
			t.Fatalf("expected running entry, got %+v", got)
		}

		e.Status = audit.LogSuccess
		e.AfterBytes = 1 << 28
		e.AfterLocation = "ssd"
		e.FinishedAt = started.Add(3 * time.Second)
		e.Duration = 3 * time.Second
		if err := s.FinishLog(ctx, e); err != nil {
			t.Fatalf("FinishLog: %v", err)
		}

		got, err = s.LastLog(ctx, policyID, partitionID)
		if err != nil {
			t.Fatalf("LastLog: %v", err)
		}
		if got.Status != audit.LogSuccess || got.AfterBytes != 1<<28 {
			t.Errorf("expected finished entry, got %+v", got)
		}
		if got.Duration != 3*time.Second {
			t.Errorf("expected duration 3s, got %s", got.Duration)
		}
	})

	t.Run("BeginLogRejectsFinished", func(t *testing.T) {
		s := newStore(t)
		e := runningLog(newID(), partition.NewID(), time.Now().UTC())
		e.Status = audit.LogSuccess
		if err := s.BeginLog(context.Background(), e); err == nil {
			t.Error("expected BeginLog to reject a non-running entry")
		}
	})

	t.Run("FinishedEntryImmutable", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		e := runningLog(newID(), partition.NewID(), time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
		if err := s.BeginLog(ctx, e); err != nil {
			t.Fatalf("BeginLog: %v", err)
		}

		e.Status = audit.LogFailed
		e.ErrorKind = storage.KindTerminal
		e.Error = "target location unknown"
		e.FinishedAt = e.StartedAt.Add(time.Second)
		e.Duration = time.Second
		if err := s.FinishLog(ctx, e); err != nil {
			t.Fatalf("FinishLog: %v", err)
		}

		// A second finish must not overwrite the recorded outcome.
		e.Status = audit.LogSuccess
		e.Error = ""
		if err := s.FinishLog(ctx, e); err == nil {
			t.Error("expected second FinishLog to fail")
		}
		got, err := s.LastLog(ctx, e.PolicyID, e.PartitionID)
		if err != nil {
			t.Fatalf("LastLog: %v", err)
		}
		if got.Status != audit.LogFailed || got.ErrorKind != storage.KindTerminal {
			t.Errorf("expected original failure preserved, got %+v", got)
		}
	})

	t.Run("FinishLogRejectsRunning", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		e := runningLog(newID(), partition.NewID(), time.Now().UTC())
		if err := s.BeginLog(ctx, e); err != nil {
			t.Fatalf("BeginLog: %v", err)
		}
		if err := s.FinishLog(ctx, e); err == nil {
			t.Error("expected FinishLog to reject RUNNING status")
		}
	})

	t.Run("LastLogPicksNewest", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		policyID, partitionID := newID(), partition.NewID()
		base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

		for i := range 3 {
			e := runningLog(policyID, partitionID, base.Add(time.Duration(i)*time.Hour))
			if err := s.BeginLog(ctx, e); err != nil {
				t.Fatalf("BeginLog: %v", err)
			}
			e.Status = audit.LogSuccess
			e.FinishedAt = e.StartedAt.Add(time.Minute)
			e.Duration = time.Minute
			if err := s.FinishLog(ctx, e); err != nil {
				t.Fatalf("FinishLog: %v", err)
			}
		}

		got, err := s.LastLog(ctx, policyID, partitionID)
		if err != nil {
			t.Fatalf("LastLog: %v", err)
		}
		if !got.StartedAt.Equal(base.Add(2 * time.Hour)) {
			t.Errorf("expected newest entry, got started_at %s", got.StartedAt)
		}
	})

	t.Run("QueryLogFilters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		policyA, policyB := newID(), newID()

		finish := func(e audit.LogEntry, status audit.LogStatus) {
			t.Helper()
			if err := s.BeginLog(ctx, e); err != nil {
				t.Fatalf("BeginLog: %v", err)
			}
			e.Status = status
			e.FinishedAt = e.StartedAt.Add(time.Minute)
			e.Duration = time.Minute
			if status == audit.LogFailed {
				e.ErrorKind = storage.KindRetryable
				e.Error = "storage location unavailable"
			}
			if err := s.FinishLog(ctx, e); err != nil {
				t.Fatalf("FinishLog: %v", err)
			}
		}

		a1 := runningLog(policyA, partition.NewID(), base)
		finish(a1, audit.LogSuccess)
		a2 := runningLog(policyA, partition.NewID(), base.Add(time.Hour))
		finish(a2, audit.LogFailed)
		b1 := runningLog(policyB, partition.NewID(), base.Add(2*time.Hour))
		b1.Dataset = "metrics"
		finish(b1, audit.LogSuccess)

		all, err := s.QueryLog(ctx, audit.LogFilter{})
		if err != nil {
			t.Fatalf("QueryLog: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("expected 3 entries, got %d", len(all))
		}
		// Newest first.
		if all[0].ID != b1.ID || all[2].ID != a1.ID {
			t.Errorf("expected newest-first ordering, got %s, %s, %s", all[0].ID, all[1].ID, all[2].ID)
		}

		byPolicy, err := s.QueryLog(ctx, audit.LogFilter{PolicyID: &policyA})
		if err != nil {
			t.Fatalf("QueryLog: %v", err)
		}
		if len(byPolicy) != 2 {
			t.Errorf("expected 2 entries for policy, got %d", len(byPolicy))
		}

		failed, err := s.QueryLog(ctx, audit.LogFilter{Status: audit.LogFailed})
		if err != nil {
			t.Fatalf("QueryLog: %v", err)
		}
		if len(failed) != 1 || failed[0].ID != a2.ID {
			t.Errorf("expected the one failed entry, got %d", len(failed))
		}

		byDataset, err := s.QueryLog(ctx, audit.LogFilter{Dataset: "metrics"})
		if err != nil {
			t.Fatalf("QueryLog: %v", err)
		}
		if len(byDataset) != 1 || byDataset[0].ID != b1.ID {
			t.Errorf("expected the one metrics entry, got %d", len(byDataset))
		}

		window, err := s.QueryLog(ctx, audit.LogFilter{Since: base.Add(time.Hour), Until: base.Add(2 * time.Hour)})
		if err != nil {
			t.Fatalf("QueryLog: %v", err)
		}
		if len(window) != 1 || window[0].ID != a2.ID {
			t.Errorf("expected the one windowed entry, got %d", len(window))
		}
	})
}
