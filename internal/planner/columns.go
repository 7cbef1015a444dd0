package planner

// ColumnStats summarizes one candidate date column, as observed by the
// external schema front end.
type ColumnStats struct {
	Name string

	// NullRate is the fraction of rows with a null value, 0..1.
	NullRate float64

	// HasTimeComponent reports whether values carry a time-of-day component.
	HasTimeComponent bool

	// UsageScore is a relative measure of how often the column appears in
	// query predicates, 0..1.
	UsageScore float64

	// RangeDays is the span between the column's min and max values.
	RangeDays int

	// QualityPenalty flags data-quality defects (future dates, sentinel
	// values) found during sampling.
	QualityPenalty bool
}

// ColumnWeights holds the scoring weights for partitioning-column selection.
// The numeric values are policy choices, not structural requirements; they
// are exposed here so product can tune them without code changes.
type ColumnWeights struct {
	QualityPenalty   float64 `json:"qualityPenalty"`
	NullRateWeight   float64 `json:"nullRateWeight"`
	TimeComponent    float64 `json:"timeComponent"`
	UsageWeight      float64 `json:"usageWeight"`
	RangeWeight      float64 `json:"rangeWeight"`
	RangeTiebreakPct float64 `json:"rangeTiebreakPct"`
}

// DefaultColumnWeights returns the provisional defaults.
func DefaultColumnWeights() ColumnWeights {
	return ColumnWeights{
		QualityPenalty:   50,
		NullRateWeight:   100,
		TimeComponent:    10,
		UsageWeight:      25,
		RangeWeight:      0.01,
		RangeTiebreakPct: 0.10,
	}
}

// Score ranks a candidate column; higher is better. The cascade mirrors the
// selection priority: data quality, then null rate, then time-component
// presence, then usage, then range.
func (w ColumnWeights) Score(c ColumnStats) float64 {
	score := 0.0
	if c.QualityPenalty {
		score -= w.QualityPenalty
	}
	score -= c.NullRate * w.NullRateWeight
	if c.HasTimeComponent {
		score += w.TimeComponent
	}
	score += c.UsageScore * w.UsageWeight
	score += float64(c.RangeDays) * w.RangeWeight
	return score
}

// Pick returns the best-scoring column, or false when no candidates exist.
// Ties within RangeTiebreakPct of the best score fall back to the wider
// range.
func (w ColumnWeights) Pick(candidates []ColumnStats) (ColumnStats, bool) {
	if len(candidates) == 0 {
		return ColumnStats{}, false
	}
	best := candidates[0]
	bestScore := w.Score(best)
	for _, c := range candidates[1:] {
		s := w.Score(c)
		switch {
		case s > bestScore*(1+w.RangeTiebreakPct) || s > bestScore && bestScore <= 0:
			best, bestScore = c, s
		case withinPct(s, bestScore, w.RangeTiebreakPct) && c.RangeDays > best.RangeDays:
			best, bestScore = c, s
		case s > bestScore:
			best, bestScore = c, s
		}
	}
	return best, true
}

func withinPct(a, b, pct float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	scale := b
	if scale < 0 {
		scale = -scale
	}
	if scale == 0 {
		return diff == 0
	}
	return diff/scale <= pct
}
