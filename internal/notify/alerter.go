package notify

import (
	"log/slog"
	"sync"
	"time"

	"strata/internal/logging"
)

// Alert is a single operator notification.
type Alert struct {
	Reason   string
	Dataset  string
	Failures int
	At       time.Time
}

// AlertFunc receives fired alerts. Implementations must not block.
type AlertFunc func(Alert)

// Alerter tracks execution failures over a rolling window and notifies an
// operator sink when they accumulate past a threshold. Repeated alerts are
// rate-limited so a persistent failure doesn't page on every sweep.
type Alerter struct {
	log         *slog.Logger
	sink        AlertFunc
	window      time.Duration
	threshold   int
	minInterval time.Duration
	now         func() time.Time

	mu        sync.Mutex
	failures  []time.Time
	lastAlert time.Time
}

// AlerterOptions configures an Alerter. Zero values fall back to defaults:
// a 15 minute window, 5 failures, 15 minutes between alerts.
type AlerterOptions struct {
	Sink        AlertFunc
	Window      time.Duration
	Threshold   int
	MinInterval time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewAlerter creates an Alerter. A nil logger discards output.
func NewAlerter(log *slog.Logger, opts AlerterOptions) *Alerter {
	log = logging.Default(log)
	if opts.Window <= 0 {
		opts.Window = 15 * time.Minute
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 5
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = 15 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Alerter{
		log:         log,
		sink:        opts.Sink,
		window:      opts.Window,
		threshold:   opts.Threshold,
		minInterval: opts.MinInterval,
		now:         opts.Now,
	}
}

// Failure records one execution failure for dataset. When the rolling
// window holds at least the threshold of failures and the rate limit
// allows, an alert fires. Returns true when an alert fired.
func (a *Alerter) Failure(dataset, reason string) bool {
	now := a.now()

	a.mu.Lock()
	a.failures = append(a.failures, now)
	a.prune(now)
	count := len(a.failures)
	fire := count >= a.threshold && now.Sub(a.lastAlert) >= a.minInterval
	if fire {
		a.lastAlert = now
		a.failures = a.failures[:0]
	}
	a.mu.Unlock()

	if !fire {
		return false
	}
	a.fire(Alert{Reason: reason, Dataset: dataset, Failures: count, At: now})
	return true
}

// Page fires an alert immediately, bypassing the window and threshold.
// Used for conditions an operator must see at once, like an action that
// exceeded its execution timeout.
func (a *Alerter) Page(dataset, reason string) {
	a.fire(Alert{Reason: reason, Dataset: dataset, Failures: 1, At: a.now()})
}

func (a *Alerter) fire(alert Alert) {
	a.log.Warn("operator alert",
		"reason", alert.Reason,
		"dataset", alert.Dataset,
		"failures", alert.Failures)
	if a.sink != nil {
		a.sink(alert)
	}
}

// prune drops failures older than the window. Caller holds the lock.
func (a *Alerter) prune(now time.Time) {
	cutoff := now.Add(-a.window)
	i := 0
	for i < len(a.failures) && a.failures[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		a.failures = append(a.failures[:0], a.failures[i:]...)
	}
}
