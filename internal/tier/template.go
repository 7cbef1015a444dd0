package tier

import (
	"errors"
	"fmt"
	"strings"
)

// Def is the per-tier slice of a Template: how old data must be to land in
// the tier, how wide its partitions are, and where/how it is stored.
type Def struct {
	// MaxAgeDays is the tier's age threshold. Data younger than the HOT
	// threshold is HOT; data between the HOT and WARM thresholds is WARM;
	// everything older is COLD.
	MaxAgeDays  int         `json:"maxAgeDays"`
	Granularity Granularity `json:"granularity"`
	Location    string      `json:"location"`
	Codec       Codec       `json:"codec"`
}

// Template is a reusable tier configuration consumed once by the boundary
// planner at initial load time, and by the execution engine to resolve MOVE
// targets. Thresholds must be strictly ascending, mirroring ThresholdProfile
// ordering.
type Template struct {
	Name string `json:"name"`
	Hot  Def    `json:"hot"`
	Warm Def    `json:"warm"`
	Cold Def    `json:"cold"`
}

// Def returns the definition for the given tier.
func (t Template) Def(tr Tier) Def {
	switch tr {
	case Hot:
		return t.Hot
	case Warm:
		return t.Warm
	default:
		return t.Cold
	}
}

// Validate checks that all three tiers are fully specified with strictly
// ascending age thresholds. One error per tier per defect; planning is never
// attempted against a partially valid template.
func (t Template) Validate() error {
	var errs []error
	if strings.TrimSpace(t.Name) == "" {
		errs = append(errs, errors.New("template name is required"))
	}
	for _, td := range []struct {
		tier Tier
		def  Def
	}{{Hot, t.Hot}, {Warm, t.Warm}, {Cold, t.Cold}} {
		name := strings.ToLower(td.tier.String())
		if td.def.MaxAgeDays <= 0 {
			errs = append(errs, fmt.Errorf("%s tier: maxAgeDays must be positive, got %d", name, td.def.MaxAgeDays))
		}
		if strings.TrimSpace(td.def.Location) == "" {
			errs = append(errs, fmt.Errorf("%s tier: location is required", name))
		}
		if td.def.Codec == "" {
			errs = append(errs, fmt.Errorf("%s tier: codec is required", name))
		} else if !KnownCodec(td.def.Codec) {
			errs = append(errs, fmt.Errorf("%s tier: unknown codec %q", name, td.def.Codec))
		}
	}
	if t.Hot.MaxAgeDays > 0 && t.Warm.MaxAgeDays > 0 && t.Warm.MaxAgeDays <= t.Hot.MaxAgeDays {
		errs = append(errs, fmt.Errorf("warm tier: maxAgeDays (%d) must exceed hot threshold (%d)", t.Warm.MaxAgeDays, t.Hot.MaxAgeDays))
	}
	if t.Warm.MaxAgeDays > 0 && t.Cold.MaxAgeDays > 0 && t.Cold.MaxAgeDays <= t.Warm.MaxAgeDays {
		errs = append(errs, fmt.Errorf("cold tier: maxAgeDays (%d) must exceed warm threshold (%d)", t.Cold.MaxAgeDays, t.Warm.MaxAgeDays))
	}
	return errors.Join(errs...)
}

// TierForLocation returns the tier whose location matches, so that a moved
// partition can be reclassified consistently after relocation.
func (t Template) TierForLocation(location string) (Tier, bool) {
	switch location {
	case t.Hot.Location:
		return Hot, true
	case t.Warm.Location:
		return Warm, true
	case t.Cold.Location:
		return Cold, true
	default:
		return 0, false
	}
}
