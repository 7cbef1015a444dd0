package executor

import (
	"fmt"
	"time"
)

// Window is a daily execution window in UTC. New actions are dispatched
// only while the wall clock falls inside it; actions already running are
// never interrupted when the window closes. A window may wrap past
// midnight (e.g. 22:00 to 06:00).
type Window struct {
	start time.Duration // offset from midnight
	end   time.Duration
}

// ParseWindow parses "HH:MM"-"HH:MM" clock times into a Window. Equal
// start and end is rejected; use a nil *Window for always-on execution.
func ParseWindow(start, end string) (Window, error) {
	s, err := parseClock(start)
	if err != nil {
		return Window{}, fmt.Errorf("window start: %w", err)
	}
	e, err := parseClock(end)
	if err != nil {
		return Window{}, fmt.Errorf("window end: %w", err)
	}
	if s == e {
		return Window{}, fmt.Errorf("window start and end are both %s", start)
	}
	return Window{start: s, end: e}, nil
}

func parseClock(s string) (time.Duration, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	t = t.UTC()
	offset := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
	if w.start < w.end {
		return offset >= w.start && offset < w.end
	}
	// Wraps past midnight.
	return offset >= w.start || offset < w.end
}
