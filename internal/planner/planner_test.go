package planner

import (
	"strings"
	"testing"
	"time"

	"strata/internal/tier"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func standardTemplate() tier.Template {
	return tier.Template{
		Name: "standard",
		Hot:  tier.Def{MaxAgeDays: 365, Granularity: tier.Monthly, Location: "ssd", Codec: tier.CodecLZ4},
		Warm: tier.Def{MaxAgeDays: 1095, Granularity: tier.Yearly, Location: "hdd", Codec: tier.CodecZstd},
		Cold: tier.Def{MaxAgeDays: 2555, Granularity: tier.Yearly, Location: "archive", Codec: tier.CodecZstd},
	}
}

// checkCoverage verifies the boundary coverage invariant: contiguous,
// non-overlapping boundaries covering [minDate, maxDate].
func checkCoverage(t *testing.T, plan *Plan, minDate, maxDate time.Time) {
	t.Helper()
	bs := plan.Boundaries
	if len(bs) == 0 {
		t.Fatal("empty plan")
	}
	if bs[0].Lower.After(minDate) {
		t.Errorf("plan starts %s, after min date %s", bs[0].Lower.Format(time.DateOnly), minDate.Format(time.DateOnly))
	}
	for i := 1; i < len(bs); i++ {
		if !bs[i-1].Upper.Equal(bs[i].Lower) {
			t.Errorf("gap/overlap between boundary %d (upper %s) and %d (lower %s)",
				i-1, bs[i-1].Upper.Format(time.DateOnly), i, bs[i].Lower.Format(time.DateOnly))
		}
	}
	last := bs[len(bs)-1]
	if last.Upper.Before(maxDate) {
		t.Errorf("plan ends %s, before max date %s", last.Upper.Format(time.DateOnly), maxDate.Format(time.DateOnly))
	}
	if !last.Open {
		t.Error("final boundary should be open for auto-extension")
	}
	for i, b := range bs[:len(bs)-1] {
		if b.Open {
			t.Errorf("boundary %d is open but not last", i)
		}
	}
}

func TestPlanBoundariesScenario(t *testing.T) {
	// Dataset spans 2013-01-01..2025-11-10 under the standard template:
	// 9 COLD yearly (2013-2021), 3 WARM yearly (2022-2024), 12 HOT monthly
	// (Dec 2024 - Nov 2025) = 24 partitions.
	minDate := date(2013, 1, 1)
	maxDate := date(2025, 11, 10)
	now := date(2025, 11, 10)

	plan, err := PlanBoundaries("events", minDate, maxDate, standardTemplate(), now)
	if err != nil {
		t.Fatalf("PlanBoundaries: %v", err)
	}

	if plan.Total() != 24 {
		t.Fatalf("total partitions = %d, want 24", plan.Total())
	}
	if got := plan.PerTier[tier.Cold]; got != 9 {
		t.Errorf("COLD partitions = %d, want 9", got)
	}
	if got := plan.PerTier[tier.Warm]; got != 3 {
		t.Errorf("WARM partitions = %d, want 3", got)
	}
	if got := plan.PerTier[tier.Hot]; got != 12 {
		t.Errorf("HOT partitions = %d, want 12", got)
	}

	checkCoverage(t, plan, minDate, maxDate)

	// Spot-check tier edges.
	if b := plan.Boundaries[0]; !b.Lower.Equal(date(2013, 1, 1)) || b.Tier != tier.Cold || b.Location != "archive" {
		t.Errorf("first boundary = %+v", b)
	}
	if b := plan.Boundaries[8]; !b.Upper.Equal(date(2022, 1, 1)) {
		t.Errorf("last COLD boundary ends %s, want 2022-01-01", b.Upper.Format(time.DateOnly))
	}
	if b := plan.Boundaries[11]; !b.Upper.Equal(date(2024, 12, 1)) || b.Tier != tier.Warm {
		t.Errorf("last WARM boundary = %+v", b)
	}
	if b := plan.Boundaries[12]; !b.Lower.Equal(date(2024, 12, 1)) || b.Tier != tier.Hot || b.Granularity != tier.Monthly {
		t.Errorf("first HOT boundary = %+v", b)
	}
}

func TestPlanBoundariesAllHot(t *testing.T) {
	// All data newer than the HOT threshold: WARM and COLD contribute zero
	// partitions, which is not an error.
	minDate := date(2025, 9, 5)
	maxDate := date(2025, 11, 10)
	now := date(2025, 11, 10)

	plan, err := PlanBoundaries("events", minDate, maxDate, standardTemplate(), now)
	if err != nil {
		t.Fatalf("PlanBoundaries: %v", err)
	}
	if got := plan.PerTier[tier.Cold]; got != 0 {
		t.Errorf("COLD partitions = %d, want 0", got)
	}
	if got := plan.PerTier[tier.Warm]; got != 0 {
		t.Errorf("WARM partitions = %d, want 0", got)
	}
	if got := plan.PerTier[tier.Hot]; got != 3 {
		t.Errorf("HOT partitions = %d, want 3 (Sep, Oct, Nov)", got)
	}
	checkCoverage(t, plan, minDate, maxDate)
}

func TestPlanBoundariesRangeSkipsColdOnly(t *testing.T) {
	// Data reaches back into WARM territory but not COLD.
	minDate := date(2024, 3, 15)
	maxDate := date(2025, 11, 10)
	now := date(2025, 11, 10)

	plan, err := PlanBoundaries("events", minDate, maxDate, standardTemplate(), now)
	if err != nil {
		t.Fatalf("PlanBoundaries: %v", err)
	}
	if got := plan.PerTier[tier.Cold]; got != 0 {
		t.Errorf("COLD partitions = %d, want 0", got)
	}
	if plan.PerTier[tier.Warm] == 0 {
		t.Error("expected WARM partitions")
	}
	checkCoverage(t, plan, minDate, maxDate)
}

func TestPlanBoundariesCoverageTable(t *testing.T) {
	tmpl := standardTemplate()
	now := date(2025, 11, 10)

	tests := []struct {
		name     string
		min, max time.Time
	}{
		{"decade", date(2015, 7, 20), date(2025, 11, 10)},
		{"single day", date(2025, 11, 10), date(2025, 11, 10)},
		{"warm only history", date(2023, 2, 1), date(2023, 6, 30)},
		{"cold only history", date(2010, 1, 1), date(2012, 12, 31)},
		{"aligned start", date(2020, 1, 1), date(2025, 11, 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := PlanBoundaries("events", tt.min, tt.max, tmpl, now)
			if err != nil {
				t.Fatalf("PlanBoundaries: %v", err)
			}
			checkCoverage(t, plan, tt.min, tt.max)

			// Within each tier, all boundaries except the last must span a
			// full granularity interval.
			byTier := make(map[tier.Tier][]Boundary)
			for _, b := range plan.Boundaries {
				byTier[b.Tier] = append(byTier[b.Tier], b)
			}
			for tr, bs := range byTier {
				for i, b := range bs[:len(bs)-1] {
					want := b.Granularity.Advance(b.Lower, 1)
					if !b.Upper.Equal(want) {
						t.Errorf("%s boundary %d: upper %s, want full interval to %s",
							tr, i, b.Upper.Format(time.DateOnly), want.Format(time.DateOnly))
					}
				}
			}
		})
	}
}

func TestPlanBoundariesInvalidTemplate(t *testing.T) {
	tmpl := standardTemplate()
	tmpl.Warm.Location = ""

	_, err := PlanBoundaries("events", date(2020, 1, 1), date(2025, 1, 1), tmpl, date(2025, 1, 1))
	if err == nil {
		t.Fatal("expected error for invalid template")
	}
	if !strings.Contains(err.Error(), "warm tier: location is required") {
		t.Errorf("error %q should name the defective field", err)
	}
}

func TestPlanBoundariesBadRange(t *testing.T) {
	tmpl := standardTemplate()
	if _, err := PlanBoundaries("events", date(2025, 1, 1), date(2020, 1, 1), tmpl, date(2025, 1, 1)); err == nil {
		t.Fatal("expected error for inverted range")
	}
	if _, err := PlanBoundaries("events", time.Time{}, date(2020, 1, 1), tmpl, date(2025, 1, 1)); err == nil {
		t.Fatal("expected error for missing min date")
	}
}

func TestColumnWeightsPick(t *testing.T) {
	w := DefaultColumnWeights()

	cols := []ColumnStats{
		{Name: "created_at", NullRate: 0, HasTimeComponent: true, UsageScore: 0.8, RangeDays: 3000},
		{Name: "updated_at", NullRate: 0.4, HasTimeComponent: true, UsageScore: 0.2, RangeDays: 3000},
		{Name: "imported_at", NullRate: 0, HasTimeComponent: false, UsageScore: 0.1, RangeDays: 100, QualityPenalty: true},
	}

	best, ok := w.Pick(cols)
	if !ok {
		t.Fatal("expected a pick")
	}
	if best.Name != "created_at" {
		t.Errorf("picked %s, want created_at", best.Name)
	}

	if _, ok := w.Pick(nil); ok {
		t.Error("empty candidate list should not pick")
	}
}
