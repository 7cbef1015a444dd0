// Package policy defines declarative lifecycle policies and their
// evaluation. A policy maps trigger conditions on a dataset's partitions to
// a tiering action; evaluation is a pure function over a metadata snapshot,
// with no IO.
package policy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"strata/internal/partition"
	"strata/internal/tier"
)

// Action is the tiering operation a policy carries out when it matches.
type Action string

const (
	ActionCompress Action = "COMPRESS"
	ActionMove     Action = "MOVE"
	ActionReadOnly Action = "READ_ONLY"
	ActionDrop     Action = "DROP"
	ActionTruncate Action = "TRUNCATE"
	ActionCustom   Action = "CUSTOM"
)

// KnownAction reports whether a is a supported action kind.
func KnownAction(a Action) bool {
	switch a {
	case ActionCompress, ActionMove, ActionReadOnly, ActionDrop, ActionTruncate, ActionCustom:
		return true
	default:
		return false
	}
}

// MaxPriority bounds policy priority; lower numbers are evaluated first.
const MaxPriority = 100

// Params carries action-specific parameters. Which fields are mandatory
// depends on the action kind; Validate enforces that.
type Params struct {
	// Codec is required for COMPRESS and MOVE.
	Codec tier.Codec `json:"codec,omitempty"`

	// TargetTier is required for MOVE; the destination location and codec
	// are resolved against the dataset's tier template so post-move
	// classification stays consistent.
	TargetTier *tier.Tier `json:"targetTier,omitempty"`

	// Custom names a registered custom action block, required for CUSTOM.
	Custom string `json:"custom,omitempty"`
}

// Conditions are the trigger conditions of a policy. All configured
// conditions must hold (conjunction); a nil field means "don't care".
type Conditions struct {
	// MinAgeDays requires partition age (days since upper boundary) to be
	// at least this many days.
	MinAgeDays *int `json:"minAgeDays,omitempty"`

	// MinAgeMonths is an alternative age unit, converted at 30 days/month.
	MinAgeMonths *int `json:"minAgeMonths,omitempty"`

	// Temperature requires the classifier's output under the policy's
	// resolved threshold profile to equal this value.
	Temperature *tier.Tier `json:"temperature,omitempty"`

	// MinBytes / MaxBytes bound the partition's byte size.
	MinBytes *int64 `json:"minBytes,omitempty"`
	MaxBytes *int64 `json:"maxBytes,omitempty"`

	// Predicate names a registered custom predicate.
	Predicate string `json:"predicate,omitempty"`
}

// Count returns the number of configured conditions.
func (c Conditions) Count() int {
	n := 0
	if c.MinAgeDays != nil {
		n++
	}
	if c.MinAgeMonths != nil {
		n++
	}
	if c.Temperature != nil {
		n++
	}
	if c.MinBytes != nil {
		n++
	}
	if c.MaxBytes != nil {
		n++
	}
	if c.Predicate != "" {
		n++
	}
	return n
}

// Policy is one declarative lifecycle rule. Policies are created and updated
// by operators, validated synchronously at write time, and evaluated
// repeatedly; they are never auto-deleted.
type Policy struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Dataset    string     `json:"dataset"`
	Conditions Conditions `json:"conditions"`
	Action     Action     `json:"action"`
	Params     Params     `json:"params"`

	// Priority orders execution; lower runs first. Bounded to 0..MaxPriority.
	Priority int `json:"priority"`

	Enabled bool `json:"enabled"`
	Paused  bool `json:"paused"`

	// Profile references a threshold profile by name; empty resolves to the
	// global default profile.
	Profile string `json:"profile,omitempty"`

	// UpdatedAt is bumped on every write. A terminal execution failure for
	// a (policy, partition) pair blocks further attempts until the policy
	// is updated again.
	UpdatedAt time.Time `json:"updatedAt"`
}

// Active reports whether the policy should be evaluated at all.
func (p Policy) Active() bool { return p.Enabled && !p.Paused }

// Validate checks the policy. One specific error per defect; invalid
// policies are rejected at write time, never silently stored.
func (p Policy) Validate() error {
	var errs []error
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, errors.New("policy name is required"))
	}
	if strings.TrimSpace(p.Dataset) == "" {
		errs = append(errs, errors.New("target dataset is required"))
	}
	if !KnownAction(p.Action) {
		errs = append(errs, fmt.Errorf("unknown action: %q", p.Action))
	}
	if p.Priority < 0 || p.Priority > MaxPriority {
		errs = append(errs, fmt.Errorf("priority %d out of range 0..%d", p.Priority, MaxPriority))
	}
	if p.Conditions.Count() == 0 {
		errs = append(errs, errors.New("at least one trigger condition is required"))
	}

	if p.Conditions.MinAgeDays != nil && *p.Conditions.MinAgeDays <= 0 {
		errs = append(errs, fmt.Errorf("minAgeDays must be positive, got %d", *p.Conditions.MinAgeDays))
	}
	if p.Conditions.MinAgeMonths != nil && *p.Conditions.MinAgeMonths <= 0 {
		errs = append(errs, fmt.Errorf("minAgeMonths must be positive, got %d", *p.Conditions.MinAgeMonths))
	}
	if p.Conditions.MinBytes != nil && *p.Conditions.MinBytes < 0 {
		errs = append(errs, fmt.Errorf("minBytes must not be negative, got %d", *p.Conditions.MinBytes))
	}
	if p.Conditions.MaxBytes != nil && *p.Conditions.MaxBytes < 0 {
		errs = append(errs, fmt.Errorf("maxBytes must not be negative, got %d", *p.Conditions.MaxBytes))
	}

	switch p.Action {
	case ActionCompress:
		if p.Params.Codec == "" {
			errs = append(errs, errors.New("COMPRESS requires a codec"))
		}
	case ActionMove:
		if p.Params.TargetTier == nil {
			errs = append(errs, errors.New("MOVE requires a target tier"))
		}
		if p.Params.Codec == "" {
			errs = append(errs, errors.New("MOVE requires a codec"))
		}
	case ActionCustom:
		if strings.TrimSpace(p.Params.Custom) == "" {
			errs = append(errs, errors.New("CUSTOM requires a custom action name"))
		}
	}
	if p.Params.Codec != "" && !tier.KnownCodec(p.Params.Codec) {
		errs = append(errs, fmt.Errorf("unknown codec: %q", p.Params.Codec))
	}

	return errors.Join(errs...)
}

// MinAgeDaysTotal folds the day and month age conditions into a single day
// count, or false when no age condition is configured.
func (c Conditions) MinAgeDaysTotal() (int, bool) {
	days := 0
	set := false
	if c.MinAgeDays != nil {
		days = *c.MinAgeDays
		set = true
	}
	if c.MinAgeMonths != nil {
		if d := *c.MinAgeMonths * 30; d > days {
			days = d
		}
		set = true
	}
	return days, set
}

// Predicate is an operator-supplied custom trigger condition.
type Predicate func(partition.Partition) bool

// IntPtr returns a pointer to n.
func IntPtr(n int) *int { return &n }

// Int64Ptr returns a pointer to n.
func Int64Ptr(n int64) *int64 { return &n }

// TierPtr returns a pointer to t.
func TierPtr(t tier.Tier) *tier.Tier { return &t }
