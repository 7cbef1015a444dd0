package notify

import (
	"testing"
	"time"
)

func TestAlerterThreshold(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var alerts []Alert
	a := NewAlerter(nil, AlerterOptions{
		Sink:        func(al Alert) { alerts = append(alerts, al) },
		Window:      10 * time.Minute,
		Threshold:   3,
		MinInterval: 5 * time.Minute,
		Now:         func() time.Time { return now },
	})

	if a.Failure("events", "relocate failed") {
		t.Error("first failure should not alert")
	}
	if a.Failure("events", "relocate failed") {
		t.Error("second failure should not alert")
	}
	if !a.Failure("events", "relocate failed") {
		t.Error("third failure should alert")
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].Failures != 3 || alerts[0].Dataset != "events" {
		t.Errorf("unexpected alert %+v", alerts[0])
	}
}

func TestAlerterRateLimit(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fired := 0
	a := NewAlerter(nil, AlerterOptions{
		Sink:        func(Alert) { fired++ },
		Window:      time.Hour,
		Threshold:   2,
		MinInterval: 10 * time.Minute,
		Now:         func() time.Time { return now },
	})

	a.Failure("events", "drop failed")
	a.Failure("events", "drop failed")
	if fired != 1 {
		t.Fatalf("expected 1 alert, got %d", fired)
	}

	// Still within the rate-limit interval: accumulating failures stays quiet.
	now = now.Add(5 * time.Minute)
	a.Failure("events", "drop failed")
	a.Failure("events", "drop failed")
	a.Failure("events", "drop failed")
	if fired != 1 {
		t.Fatalf("expected alert to be rate-limited, got %d", fired)
	}

	now = now.Add(6 * time.Minute)
	a.Failure("events", "drop failed")
	if fired != 2 {
		t.Fatalf("expected second alert after interval, got %d", fired)
	}
}

func TestAlerterWindowExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fired := 0
	a := NewAlerter(nil, AlerterOptions{
		Sink:      func(Alert) { fired++ },
		Window:    10 * time.Minute,
		Threshold: 3,
		Now:       func() time.Time { return now },
	})

	a.Failure("events", "compress failed")
	a.Failure("events", "compress failed")

	// Old failures age out of the window before the third arrives.
	now = now.Add(15 * time.Minute)
	if a.Failure("events", "compress failed") {
		t.Error("expired failures should not count toward the threshold")
	}
	if fired != 0 {
		t.Fatalf("expected no alerts, got %d", fired)
	}
}

func TestAlerterPage(t *testing.T) {
	var got *Alert
	a := NewAlerter(nil, AlerterOptions{
		Sink: func(al Alert) { got = &al },
	})
	a.Page("events", "action exceeded execution timeout")
	if got == nil {
		t.Fatal("expected immediate alert")
	}
	if got.Reason != "action exceeded execution timeout" {
		t.Errorf("unexpected reason %q", got.Reason)
	}
}
