// Package planner computes the initial partition layout for a dataset at
// bulk-load time: a complete, contiguous list of boundary definitions with a
// target tier, location and codec per partition, derived from the dataset's
// observed date range and a tier template.
package planner

import (
	"fmt"
	"time"

	"strata/internal/tier"
)

// Boundary is one planned partition: [Lower, Upper) plus its placement.
// The consumer of a plan is the external schema-creation collaborator.
type Boundary struct {
	Lower       time.Time
	Upper       time.Time
	Tier        tier.Tier
	Granularity tier.Granularity
	Location    string
	Codec       tier.Codec

	// Open marks the final HOT boundary, which is left open for continuous
	// auto-extension by the storage engine. Upper still records the planned
	// end of the interval for reporting.
	Open bool
}

// Plan is an ordered, contiguous partition layout plus per-tier counts for
// logging.
type Plan struct {
	Dataset    string
	Boundaries []Boundary
	PerTier    map[tier.Tier]int
}

// Total returns the number of planned partitions.
func (p *Plan) Total() int { return len(p.Boundaries) }

// PlanBoundaries lays out partitions covering [minDate, maxDate] under the
// template, as of now.
//
// The layout runs from the observed range's start to the current HOT
// interval, rounded up to the HOT granularity (that interval is still
// receiving data). Each tier starts at its age cutoff floored to the tier's
// own granularity, and boundaries advance by the tier's granularity until
// the next tier begins. A tier the observed range never reaches (all data
// HOT, or too young for COLD) simply contributes zero partitions.
//
// An invalid template fails the whole call; no partial layout is produced.
func PlanBoundaries(dataset string, minDate, maxDate time.Time, tmpl tier.Template, now time.Time) (*Plan, error) {
	if err := tmpl.Validate(); err != nil {
		return nil, fmt.Errorf("plan %s: invalid template %q: %w", dataset, tmpl.Name, err)
	}
	if minDate.IsZero() || maxDate.IsZero() {
		return nil, fmt.Errorf("plan %s: observed date range is required", dataset)
	}
	if maxDate.Before(minDate) {
		return nil, fmt.Errorf("plan %s: max date %s before min date %s",
			dataset, maxDate.Format(time.DateOnly), minDate.Format(time.DateOnly))
	}

	// Exclusive end of the layout: the current HOT interval, aligned up.
	// Age cutoffs are anchored here so that placement at load time matches
	// how the data will classify afterwards.
	anchor := tmpl.Hot.Granularity.Advance(tmpl.Hot.Granularity.Floor(laterOf(maxDate, now)), 1)

	hotStart := tmpl.Hot.Granularity.Floor(anchor.AddDate(0, 0, -tmpl.Hot.MaxAgeDays))
	warmStart := tmpl.Warm.Granularity.Floor(anchor.AddDate(0, 0, -tmpl.Warm.MaxAgeDays))
	if warmStart.After(hotStart) {
		warmStart = hotStart
	}

	plan := &Plan{Dataset: dataset, PerTier: make(map[tier.Tier]int)}

	// COLD covers everything older than the WARM cutoff, from the start of
	// the observed range.
	appendTier(plan, tier.Cold, tmpl.Cold, tmpl.Cold.Granularity.Floor(minDate), warmStart)

	// WARM spans from its cutoff (or the range start, whichever is later)
	// up to the HOT cutoff.
	appendTier(plan, tier.Warm, tmpl.Warm, laterOf(warmStart, tmpl.Warm.Granularity.Floor(minDate)), hotStart)

	// HOT spans from its cutoff to the anchor; the final boundary stays open.
	appendTier(plan, tier.Hot, tmpl.Hot, laterOf(hotStart, tmpl.Hot.Granularity.Floor(minDate)), anchor)

	if n := len(plan.Boundaries); n > 0 {
		plan.Boundaries[n-1].Open = true
	}

	return plan, nil
}

// appendTier emits boundaries from start to end, advancing by the tier's
// granularity and truncating the last interval at end.
func appendTier(plan *Plan, tr tier.Tier, def tier.Def, start, end time.Time) {
	if !start.Before(end) {
		return
	}
	for lower := start; lower.Before(end); {
		upper := def.Granularity.Advance(lower, 1)
		if upper.After(end) {
			upper = end
		}
		plan.Boundaries = append(plan.Boundaries, Boundary{
			Lower:       lower,
			Upper:       upper,
			Tier:        tr,
			Granularity: def.Granularity,
			Location:    def.Location,
			Codec:       def.Codec,
		})
		plan.PerTier[tr]++
		lower = upper
	}
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
