// Package storage defines the external collaborator boundaries: the storage
// engine that executes partition operations, and the metadata store that
// answers partition queries. Calls are synchronous and may take anywhere
// from sub-second to hours; callers must not assume bounded latency.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"strata/internal/partition"
	"strata/internal/planner"
	"strata/internal/tier"
)

// Sentinel errors, classified by Classify below.
var (
	// ErrNotFound: the partition no longer exists. Terminal.
	ErrNotFound = errors.New("partition does not exist")

	// ErrUnknownLocation: the target location is not configured. Terminal.
	ErrUnknownLocation = errors.New("unknown target location")

	// ErrContended: a lock conflict inside the storage engine. Retryable.
	ErrContended = errors.New("lock contention")

	// ErrUnavailable: transient connectivity failure. Retryable.
	ErrUnavailable = errors.New("storage engine unavailable")

	// ErrNotAdjacent: merge operands are not boundary-adjacent. Terminal
	// for this pair; callers must re-check adjacency, never force a merge.
	ErrNotAdjacent = errors.New("partitions are not boundary-adjacent")
)

// ErrorKind splits execution failures into those worth retrying on a later
// pass and those requiring operator correction first.
type ErrorKind string

const (
	KindRetryable ErrorKind = "retryable"
	KindTerminal  ErrorKind = "terminal"
)

// Classify maps an error from an engine call to its kind. Timeouts,
// contention and connectivity problems are retryable; everything else
// (missing objects, bad parameters) needs a human.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindRetryable
	case errors.Is(err, ErrContended), errors.Is(err, ErrUnavailable):
		return KindRetryable
	default:
		return KindTerminal
	}
}

// Engine executes tiering operations against partitions. Implementations
// wrap the underlying storage system's schema-mutation primitives; this
// system never touches partition data directly.
type Engine interface {
	// CreatePartitions materializes a planned layout for a dataset.
	CreatePartitions(ctx context.Context, dataset string, boundaries []planner.Boundary) error

	// SetCodec recompresses a partition in place.
	SetCodec(ctx context.Context, id partition.ID, codec tier.Codec) error

	// Relocate moves a partition to a new location, recompressing with the
	// given codec.
	Relocate(ctx context.Context, id partition.ID, location string, codec tier.Codec) error

	// SealReadOnly makes a partition immutable.
	SealReadOnly(ctx context.Context, id partition.ID) error

	// Drop removes a partition and its data.
	Drop(ctx context.Context, id partition.ID) error

	// Truncate empties a partition but keeps its structure.
	Truncate(ctx context.Context, id partition.ID) error

	// Merge consolidates two boundary-adjacent partitions in the same
	// location, extending a's upper boundary to absorb b. The result
	// inherits a's codec and location.
	Merge(ctx context.Context, a, b partition.ID) (partition.Partition, error)
}

// Metrics are the per-partition measurements used by size conditions and
// audit before/after records.
type Metrics struct {
	Rows  int64
	Bytes int64
}

// Recency carries observed access times for a partition.
type Recency struct {
	LastRead  time.Time
	LastWrite time.Time
}

// Metadata answers partition metadata queries.
type Metadata interface {
	// ListPartitions returns all partitions of a dataset, sorted by lower
	// boundary ascending.
	ListPartitions(ctx context.Context, dataset string) ([]partition.Partition, error)

	// PartitionMetrics returns current row/byte counts.
	PartitionMetrics(ctx context.Context, id partition.ID) (Metrics, error)

	// AccessRecency returns last observed read/write times, or ErrNoRecency
	// when the underlying engine cannot provide them.
	AccessRecency(ctx context.Context, id partition.ID) (Recency, error)
}

// ErrNoRecency signals that access recency tracking is unavailable; callers
// fall back to age-based classification.
var ErrNoRecency = errors.New("access recency not available")

// OpError wraps an engine failure with the operation and partition for audit
// logging.
type OpError struct {
	Op        string
	Partition partition.ID
	Err       error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Partition, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
