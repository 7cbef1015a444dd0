// Package tier defines the shared tiering vocabulary: storage tiers,
// partitioning granularities, compression codecs, threshold profiles and
// tier templates. Every other package speaks in these types.
package tier

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Tier is a named storage/performance class. It doubles as a partition's
// temperature: the classifier and the planner share one vocabulary so that
// data placed at load time ages consistently with ongoing policies.
type Tier int

const (
	Hot Tier = iota
	Warm
	Cold
)

func (t Tier) String() string {
	switch t {
	case Hot:
		return "HOT"
	case Warm:
		return "WARM"
	case Cold:
		return "COLD"
	default:
		return "unknown"
	}
}

// ParseTier parses a tier name, case-insensitively.
func ParseTier(s string) (Tier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HOT":
		return Hot, nil
	case "WARM":
		return Warm, nil
	case "COLD":
		return Cold, nil
	default:
		return 0, fmt.Errorf("unknown tier: %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Codec names a compression codec understood by the storage engine.
// The engine performs the actual (re)compression; this system only
// carries the name.
type Codec string

const (
	CodecNone Codec = "none"
	CodecLZ4  Codec = "lz4"
	CodecZstd Codec = "zstd"
	CodecGzip Codec = "gzip"
)

// KnownCodec reports whether c is one of the codecs the storage engine accepts.
func KnownCodec(c Codec) bool {
	switch c {
	case CodecNone, CodecLZ4, CodecZstd, CodecGzip:
		return true
	default:
		return false
	}
}

// Granularity is the width of a partition interval within a tier.
type Granularity int

const (
	Daily Granularity = iota
	Weekly
	Monthly
	Yearly
)

func (g Granularity) String() string {
	switch g {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	case Yearly:
		return "yearly"
	default:
		return "unknown"
	}
}

// ParseGranularity parses a granularity name, case-insensitively.
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "day":
		return Daily, nil
	case "weekly", "week":
		return Weekly, nil
	case "monthly", "month":
		return Monthly, nil
	case "yearly", "year":
		return Yearly, nil
	default:
		return 0, fmt.Errorf("unknown granularity: %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (g Granularity) MarshalText() ([]byte, error) { return []byte(g.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *Granularity) UnmarshalText(b []byte) error {
	parsed, err := ParseGranularity(string(b))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// Floor truncates t down to the start of the interval containing it.
// Weeks start on Monday. All arithmetic is in UTC.
func (g Granularity) Floor(t time.Time) time.Time {
	t = t.UTC()
	switch g {
	case Daily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case Weekly:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
		return day.AddDate(0, 0, -offset)
	case Monthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Yearly:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

// Advance moves t forward by n intervals. t should already be interval-aligned.
func (g Granularity) Advance(t time.Time, n int) time.Time {
	switch g {
	case Daily:
		return t.AddDate(0, 0, n)
	case Weekly:
		return t.AddDate(0, 0, 7*n)
	case Monthly:
		return t.AddDate(0, n, 0)
	case Yearly:
		return t.AddDate(n, 0, 0)
	default:
		return t
	}
}

// Coarser reports whether g spans wider intervals than other.
func (g Granularity) Coarser(other Granularity) bool { return g > other }

// ThresholdProfile is a reusable (hot, warm, cold) age-day triple used for
// ongoing temperature classification. Thresholds must be strictly ascending.
type ThresholdProfile struct {
	Name     string `json:"name"`
	HotDays  int    `json:"hotDays"`
	WarmDays int    `json:"warmDays"`
	ColdDays int    `json:"coldDays"`
}

// DefaultProfileName is the reserved name of the global default profile.
// A policy with no profile reference resolves to it.
const DefaultProfileName = "default"

// DefaultProfile returns the built-in global default profile.
func DefaultProfile() ThresholdProfile {
	return ThresholdProfile{Name: DefaultProfileName, HotDays: 90, WarmDays: 365, ColdDays: 1095}
}

// Validate checks the profile. Each defect yields its own error so operators
// can fix profiles without guesswork.
func (p ThresholdProfile) Validate() error {
	var errs []error
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, errors.New("profile name is required"))
	}
	if p.HotDays <= 0 {
		errs = append(errs, fmt.Errorf("hotDays must be positive, got %d", p.HotDays))
	}
	if p.WarmDays <= p.HotDays {
		errs = append(errs, fmt.Errorf("warmDays (%d) must exceed hotDays (%d)", p.WarmDays, p.HotDays))
	}
	if p.ColdDays <= p.WarmDays {
		errs = append(errs, fmt.Errorf("coldDays (%d) must exceed warmDays (%d)", p.ColdDays, p.WarmDays))
	}
	return errors.Join(errs...)
}

// Classify maps an age in days to a temperature. Boundary ages resolve to
// the next (colder) tier: age == HotDays is already WARM.
func (p ThresholdProfile) Classify(ageDays int) Tier {
	switch {
	case ageDays < p.HotDays:
		return Hot
	case ageDays < p.WarmDays:
		return Warm
	default:
		return Cold
	}
}
