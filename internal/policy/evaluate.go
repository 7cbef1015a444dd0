package policy

import (
	"fmt"
	"time"

	"strata/internal/partition"
	"strata/internal/tier"
)

// Verdict is the outcome of matching one policy against one partition.
// Ineligible verdicts always carry a human-readable reason: observability,
// not just a boolean.
type Verdict struct {
	Eligible bool
	Reason   string
}

func ineligible(format string, args ...any) Verdict {
	return Verdict{Eligible: false, Reason: fmt.Sprintf(format, args...)}
}

// Evaluate determines whether part is eligible under p. Conditions are
// conjunctive: the first failing condition short-circuits with its reason.
// temp is the classifier's output for part under the policy's resolved
// threshold profile.
func Evaluate(p Policy, part partition.Partition, temp tier.Tier, now time.Time, predicates map[string]Predicate) Verdict {
	if part.Open() {
		return ineligible("partition is open for writes")
	}

	age := part.BoundaryAgeDays(now)
	if minDays, ok := p.Conditions.MinAgeDaysTotal(); ok && age < minDays {
		return ineligible("age %dd below minimum %dd", age, minDays)
	}

	if p.Conditions.Temperature != nil && temp != *p.Conditions.Temperature {
		return ineligible("temperature %s, policy requires %s", temp, *p.Conditions.Temperature)
	}

	if p.Conditions.MinBytes != nil && part.Bytes < *p.Conditions.MinBytes {
		return ineligible("size %dB below minimum %dB", part.Bytes, *p.Conditions.MinBytes)
	}
	if p.Conditions.MaxBytes != nil && part.Bytes > *p.Conditions.MaxBytes {
		return ineligible("size %dB above maximum %dB", part.Bytes, *p.Conditions.MaxBytes)
	}

	if p.Conditions.Predicate != "" {
		pred, ok := predicates[p.Conditions.Predicate]
		if !ok {
			return ineligible("unknown predicate %q", p.Conditions.Predicate)
		}
		if !pred(part) {
			return ineligible("predicate %q did not match", p.Conditions.Predicate)
		}
	}

	return Verdict{Eligible: true}
}
