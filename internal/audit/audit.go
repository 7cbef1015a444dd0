// Package audit holds the engine's observable work records: the evaluation
// queue (ephemeral, one entry per policy/partition pair and evaluation pass)
// and the execution log (append-only, the basis for retries, reporting and
// regression detection).
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"strata/internal/partition"
	"strata/internal/policy"
	"strata/internal/storage"
)

// QueueStatus is a queue entry's execution status.
type QueueStatus string

const (
	QueuePending  QueueStatus = "PENDING"
	QueueExecuted QueueStatus = "EXECUTED"
	QueueSkipped  QueueStatus = "SKIPPED"
)

// QueueEntry records the outcome of matching one policy against one
// partition. Eligible entries are PENDING until the execution engine claims
// them; everything else is SKIPPED with a reason. No evaluation outcome is
// ever silently dropped.
type QueueEntry struct {
	ID          uuid.UUID
	PolicyID    uuid.UUID
	PartitionID partition.ID
	Dataset     string

	// Priority and AgeDays order consumption: ascending priority first,
	// then oldest partitions first within a priority.
	Priority int
	AgeDays  int

	Eligible    bool
	Reason      string
	Status      QueueStatus
	EvaluatedAt time.Time
}

// LogStatus is an execution log entry's state.
type LogStatus string

const (
	LogRunning LogStatus = "RUNNING"
	LogSuccess LogStatus = "SUCCESS"
	LogFailed  LogStatus = "FAILED"
)

// LogEntry is one attempted action. Created in RUNNING state before the
// storage-engine call, finished to SUCCESS or FAILED afterwards, then never
// mutated again.
type LogEntry struct {
	ID          uuid.UUID
	PolicyID    uuid.UUID
	PartitionID partition.ID
	Dataset     string
	Action      policy.Action

	BeforeBytes    int64
	AfterBytes     int64
	BeforeLocation string
	AfterLocation  string

	Status    LogStatus
	ErrorKind storage.ErrorKind
	Error     string

	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
}

// LogFilter narrows a log query. Zero fields match everything. Since is
// inclusive, Until exclusive.
type LogFilter struct {
	Dataset  string
	PolicyID *uuid.UUID
	Status   LogStatus
	Since    time.Time
	Until    time.Time
}

// Store persists the queue and the execution log.
//
// All queue mutations are single-row upserts keyed by natural identifiers.
// Claim is the one state transition that must be atomic (compare-and-set on
// status) so that no two workers consume the same entry.
type Store interface {
	// UpsertEntry writes the evaluation outcome for a (policy, partition)
	// pair, replacing any previous entry for the pair.
	UpsertEntry(ctx context.Context, e QueueEntry) error

	// GetEntry returns the current entry for a pair, or nil.
	GetEntry(ctx context.Context, policyID uuid.UUID, partitionID partition.ID) (*QueueEntry, error)

	// ListPending returns eligible PENDING entries ordered by ascending
	// policy priority, then descending partition age.
	ListPending(ctx context.Context) ([]QueueEntry, error)

	// Claim transitions an entry PENDING -> EXECUTED. Returns false when
	// the entry was not PENDING (already claimed or skipped).
	Claim(ctx context.Context, id uuid.UUID) (bool, error)

	// MarkSkipped transitions an entry to SKIPPED with a reason.
	MarkSkipped(ctx context.Context, id uuid.UUID, reason string) error

	// PurgeQueue removes consumed (non-PENDING) entries evaluated before
	// the cutoff, returning the number removed.
	PurgeQueue(ctx context.Context, olderThan time.Time) (int, error)

	// BeginLog appends an entry in RUNNING state.
	BeginLog(ctx context.Context, e LogEntry) error

	// FinishLog completes a RUNNING entry. The status must be SUCCESS or
	// FAILED; finished entries are immutable.
	FinishLog(ctx context.Context, e LogEntry) error

	// LastLog returns the most recent log entry for a (policy, partition)
	// pair, or nil.
	LastLog(ctx context.Context, policyID uuid.UUID, partitionID partition.ID) (*LogEntry, error)

	// QueryLog returns log entries matching the filter, newest first.
	QueryLog(ctx context.Context, f LogFilter) ([]LogEntry, error)

	Close() error
}
