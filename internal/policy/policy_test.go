package policy

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"strata/internal/partition"
	"strata/internal/tier"
)

func validPolicy() Policy {
	return Policy{
		ID:      uuid.Must(uuid.NewV7()),
		Name:    "compress-warm",
		Dataset: "events",
		Conditions: Conditions{
			MinAgeDays:  IntPtr(365),
			Temperature: TierPtr(tier.Warm),
		},
		Action:   ActionCompress,
		Params:   Params{Codec: tier.CodecZstd},
		Priority: 10,
		Enabled:  true,
	}
}

func TestPolicyValidate(t *testing.T) {
	if err := validPolicy().Validate(); err != nil {
		t.Fatalf("valid policy rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Policy)
		wantErr string
	}{
		{
			name:    "missing dataset",
			mutate:  func(p *Policy) { p.Dataset = "" },
			wantErr: "target dataset is required",
		},
		{
			name:    "unknown action",
			mutate:  func(p *Policy) { p.Action = "ARCHIVE" },
			wantErr: `unknown action: "ARCHIVE"`,
		},
		{
			name:    "priority out of range",
			mutate:  func(p *Policy) { p.Priority = 101 },
			wantErr: "priority 101 out of range 0..100",
		},
		{
			name:    "negative priority",
			mutate:  func(p *Policy) { p.Priority = -1 },
			wantErr: "priority -1 out of range",
		},
		{
			name:    "no conditions",
			mutate:  func(p *Policy) { p.Conditions = Conditions{} },
			wantErr: "at least one trigger condition is required",
		},
		{
			name:    "compress without codec",
			mutate:  func(p *Policy) { p.Params.Codec = "" },
			wantErr: "COMPRESS requires a codec",
		},
		{
			name: "move without target tier",
			mutate: func(p *Policy) {
				p.Action = ActionMove
				p.Params = Params{Codec: tier.CodecZstd}
			},
			wantErr: "MOVE requires a target tier",
		},
		{
			name: "custom without action name",
			mutate: func(p *Policy) {
				p.Action = ActionCustom
				p.Params = Params{}
			},
			wantErr: "CUSTOM requires a custom action name",
		},
		{
			name:    "unknown codec",
			mutate:  func(p *Policy) { p.Params.Codec = "brotli" },
			wantErr: `unknown codec: "brotli"`,
		},
		{
			name:    "non-positive age",
			mutate:  func(p *Policy) { p.Conditions.MinAgeDays = IntPtr(0) },
			wantErr: "minAgeDays must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPolicy()
			tt.mutate(&p)
			err := p.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q missing %q", err, tt.wantErr)
			}
		})
	}
}

func testPartition(ageDays int, bytes int64) partition.Partition {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	upper := now.AddDate(0, 0, -ageDays)
	return partition.Partition{
		ID:       partition.NewID(),
		Dataset:  "events",
		Lower:    upper.AddDate(0, -1, 0),
		Upper:    upper,
		Tier:     tier.Warm,
		Location: "hdd",
		Codec:    tier.CodecLZ4,
		Bytes:    bytes,
	}
}

// TestEvaluateConjunction exercises the eligibility conjunction property: a
// partition is eligible iff all configured conditions hold, and flipping any
// one condition flips eligibility with a non-empty reason.
func TestEvaluateConjunction(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	preds := map[string]Predicate{
		"always": func(partition.Partition) bool { return true },
		"never":  func(partition.Partition) bool { return false },
	}

	base := Policy{
		ID:      uuid.Must(uuid.NewV7()),
		Name:    "all-conditions",
		Dataset: "events",
		Conditions: Conditions{
			MinAgeDays:  IntPtr(100),
			Temperature: TierPtr(tier.Warm),
			MinBytes:    Int64Ptr(1000),
			MaxBytes:    Int64Ptr(1 << 30),
			Predicate:   "always",
		},
		Action:   ActionCompress,
		Params:   Params{Codec: tier.CodecZstd},
		Priority: 5,
		Enabled:  true,
	}

	part := testPartition(200, 4096)

	if v := Evaluate(base, part, tier.Warm, now, preds); !v.Eligible {
		t.Fatalf("all conditions hold, expected eligible, got reason %q", v.Reason)
	}

	flips := []struct {
		name   string
		policy func() Policy
		temp   tier.Tier
		part   partition.Partition
	}{
		{
			name: "age too young",
			policy: func() Policy {
				p := base
				p.Conditions.MinAgeDays = IntPtr(365)
				return p
			},
			temp: tier.Warm,
			part: part,
		},
		{
			name:   "temperature mismatch",
			policy: func() Policy { return base },
			temp:   tier.Cold,
			part:   part,
		},
		{
			name: "below min size",
			policy: func() Policy {
				p := base
				p.Conditions.MinBytes = Int64Ptr(1 << 20)
				return p
			},
			temp: tier.Warm,
			part: part,
		},
		{
			name: "above max size",
			policy: func() Policy {
				p := base
				p.Conditions.MaxBytes = Int64Ptr(100)
				return p
			},
			temp: tier.Warm,
			part: part,
		},
		{
			name: "predicate false",
			policy: func() Policy {
				p := base
				p.Conditions.Predicate = "never"
				return p
			},
			temp: tier.Warm,
			part: part,
		},
	}

	for _, tt := range flips {
		t.Run(tt.name, func(t *testing.T) {
			v := Evaluate(tt.policy(), tt.part, tt.temp, now, preds)
			if v.Eligible {
				t.Fatal("expected ineligible")
			}
			if v.Reason == "" {
				t.Error("ineligible verdict must carry a reason")
			}
		})
	}
}

func TestEvaluateAbsentConditionsDontCare(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	p := validPolicy()
	p.Conditions = Conditions{MinAgeDays: IntPtr(30)} // only age configured

	// Tiny partition, wrong-looking temperature: neither matters.
	part := testPartition(60, 1)
	if v := Evaluate(p, part, tier.Cold, now, nil); !v.Eligible {
		t.Errorf("absent conditions must not constrain, got reason %q", v.Reason)
	}
}

func TestEvaluateOpenPartition(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	p := validPolicy()

	open := testPartition(200, 4096)
	open.Upper = time.Time{}

	if v := Evaluate(p, open, tier.Warm, now, nil); v.Eligible {
		t.Error("open partitions are never eligible")
	}
}

func TestEvaluateMonthsCondition(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	p := validPolicy()
	p.Conditions = Conditions{MinAgeMonths: IntPtr(12)}

	if v := Evaluate(p, testPartition(200, 0), tier.Warm, now, nil); v.Eligible {
		t.Error("200 days is under 12 months")
	}
	if v := Evaluate(p, testPartition(400, 0), tier.Warm, now, nil); !v.Eligible {
		t.Errorf("400 days exceeds 12 months, got reason %q", v.Reason)
	}
}

func TestEvaluateUnknownPredicate(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	p := validPolicy()
	p.Conditions = Conditions{Predicate: "missing"}

	v := Evaluate(p, testPartition(200, 0), tier.Warm, now, nil)
	if v.Eligible {
		t.Error("unknown predicate must not match")
	}
	if !strings.Contains(v.Reason, "missing") {
		t.Errorf("reason %q should name the predicate", v.Reason)
	}
}
