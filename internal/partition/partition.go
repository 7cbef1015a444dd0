// Package partition defines the partition metadata model shared by the
// planner, classifier, evaluation and execution engines. A partition is a
// named, ordered, boundary-addressable unit of a dataset; this system never
// touches its rows, only its metadata.
package partition

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"strata/internal/tier"
)

var ErrNotFound = errors.New("partition not found")

type ID uuid.UUID

func NewID() ID {
	return ID(uuid.Must(uuid.NewV7()))
}

func ParseID(value string) (ID, error) {
	parsed, err := uuid.Parse(value)
	if err != nil {
		return ID{}, err
	}
	return ID(parsed), nil
}

func (id ID) String() string {
	return uuid.UUID(id).String()
}

// Partition is the metadata for one storage unit. Lower is inclusive, Upper
// exclusive. An open partition (the newest one, still auto-extending) has a
// zero Upper. Boundaries never change except via split/merge.
type Partition struct {
	ID       ID
	Dataset  string
	Lower    time.Time
	Upper    time.Time
	Tier     tier.Tier
	Location string
	Codec    tier.Codec

	Rows  int64
	Bytes int64

	CreatedAt time.Time
	LastWrite time.Time
	LastRead  time.Time
}

// Open reports whether the partition's upper boundary is still open for
// ongoing auto-extension.
func (p Partition) Open() bool { return p.Upper.IsZero() }

// BoundaryAgeDays is the partition's age in whole days, measured from its
// upper boundary date. Open partitions have age zero; they are still being
// written.
func (p Partition) BoundaryAgeDays(now time.Time) int {
	if p.Open() {
		return 0
	}
	return tier.DaysBetween(p.Upper, now)
}

// Key identifies a partition within its dataset, the unit of exclusive
// locking during execution.
type Key struct {
	Dataset   string
	Partition ID
}

func (p Partition) Key() Key { return Key{Dataset: p.Dataset, Partition: p.ID} }

// Adjacent reports whether b starts exactly where a ends: no gap, no
// overlap. This is a hard requirement of the storage engine's merge
// primitive.
func Adjacent(a, b Partition) bool {
	if a.Open() || a.Upper.IsZero() || b.Lower.IsZero() {
		return false
	}
	return a.Upper.Equal(b.Lower)
}

// Snapshot is an immutable view of one dataset's partitions at a point in
// time. Partitions are sorted by Lower ascending (oldest first). Decisions
// are made against snapshots without further IO.
type Snapshot struct {
	Dataset    string
	Partitions []Partition
	Now        time.Time
}

// CheckContiguous verifies the sibling-boundary invariant: sorted partitions
// must be contiguous and non-overlapping. Only the last partition may be
// open.
func (s Snapshot) CheckContiguous() error {
	for i := 1; i < len(s.Partitions); i++ {
		prev, cur := s.Partitions[i-1], s.Partitions[i]
		if prev.Open() {
			return fmt.Errorf("partition %s is open but not last", prev.ID)
		}
		if !prev.Upper.Equal(cur.Lower) {
			return fmt.Errorf("boundary break between %s (upper %s) and %s (lower %s)",
				prev.ID, prev.Upper.Format(time.DateOnly), cur.ID, cur.Lower.Format(time.DateOnly))
		}
	}
	return nil
}

// Find returns the partition with the given ID, or ErrNotFound.
func (s Snapshot) Find(id ID) (Partition, error) {
	for _, p := range s.Partitions {
		if p.ID == id {
			return p, nil
		}
	}
	return Partition{}, ErrNotFound
}
