package executor

import (
	"testing"
	"time"
)

func TestParseWindow(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		wantErr    bool
	}{
		{"valid", "22:00", "06:00", false},
		{"same day", "02:00", "04:00", false},
		{"equal", "12:00", "12:00", true},
		{"bad hour", "25:00", "06:00", true},
		{"bad minute", "22:61", "06:00", true},
		{"garbage", "night", "06:00", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseWindow(tt.start, tt.end)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseWindow(%q, %q) error = %v, wantErr %v", tt.start, tt.end, err, tt.wantErr)
			}
		})
	}
}

func TestWindowContains(t *testing.T) {
	day := func(h, m int) time.Time {
		return time.Date(2025, 6, 1, h, m, 0, 0, time.UTC)
	}

	w, err := ParseWindow("02:00", "04:00")
	if err != nil {
		t.Fatalf("ParseWindow: %v", err)
	}
	if !w.Contains(day(3, 0)) {
		t.Error("03:00 should be inside 02:00-04:00")
	}
	if w.Contains(day(4, 0)) {
		t.Error("window end is exclusive")
	}
	if w.Contains(day(12, 0)) {
		t.Error("noon is outside 02:00-04:00")
	}

	// Wrapping past midnight.
	wrap, err := ParseWindow("22:00", "06:00")
	if err != nil {
		t.Fatalf("ParseWindow: %v", err)
	}
	if !wrap.Contains(day(23, 30)) {
		t.Error("23:30 should be inside 22:00-06:00")
	}
	if !wrap.Contains(day(5, 59)) {
		t.Error("05:59 should be inside 22:00-06:00")
	}
	if wrap.Contains(day(12, 0)) {
		t.Error("noon is outside 22:00-06:00")
	}
}
