package tier

import "time"

// Basis records which signal a classification was derived from.
type Basis string

const (
	BasisAge    Basis = "age"
	BasisAccess Basis = "access"
)

// Classification is the result of classifying one partition.
type Classification struct {
	Temperature Tier
	Basis       Basis

	// AgeDays is the age used for the decision, in whole days.
	AgeDays int

	// Warning is set when the classifier had to fall back (e.g. an
	// unparseable boundary date forced a COLD classification).
	Warning string
}

// Access carries observed access recency for a partition, when the metadata
// collaborator can provide it.
type Access struct {
	LastRead  time.Time
	LastWrite time.Time

	// RefreshedAt is when the recency signals were last pulled from the
	// metadata store. Operators are shown time-since-refresh.
	RefreshedAt time.Time
}

// DaysBetween returns the whole days elapsed from t to now, never negative.
func DaysBetween(t, now time.Time) int {
	d := int(now.Sub(t).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// Classify assigns a temperature under the given profile.
//
// Primary mode is age-based: a step function of days since the partition's
// upper boundary date. When access signals are available they take
// precedence, with the same threshold semantics applied to days since the
// last observed read or write.
//
// A zero boundary (the boundary date could not be parsed) classifies as
// maximally COLD with a warning: fail-safe toward more aggressive archival,
// never silent exclusion.
func Classify(profile ThresholdProfile, boundary time.Time, access *Access, now time.Time) Classification {
	if access != nil {
		last := access.LastRead
		if access.LastWrite.After(last) {
			last = access.LastWrite
		}
		if !last.IsZero() {
			age := DaysBetween(last, now)
			return Classification{Temperature: profile.Classify(age), Basis: BasisAccess, AgeDays: age}
		}
	}

	if boundary.IsZero() {
		return Classification{
			Temperature: Cold,
			Basis:       BasisAge,
			AgeDays:     profile.ColdDays,
			Warning:     "unparseable boundary date, classified COLD",
		}
	}

	age := DaysBetween(boundary, now)
	return Classification{Temperature: profile.Classify(age), Basis: BasisAge, AgeDays: age}
}

// Staleness returns how long ago the access signals were refreshed, or zero
// when no refresh has happened.
func (a *Access) Staleness(now time.Time) time.Duration {
	if a == nil || a.RefreshedAt.IsZero() {
		return 0
	}
	return now.Sub(a.RefreshedAt)
}
