// Package executor runs claimed queue entries against the storage engine
// with a bounded worker pool. It owns the busy registry that guarantees at
// most one in-flight action per partition, wraps every attempt in an
// execution log entry, and escalates failures to the operator alerter.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"strata/internal/audit"
	"strata/internal/logging"
	"strata/internal/metrics"
	"strata/internal/notify"
	"strata/internal/partition"
	"strata/internal/policy"
	"strata/internal/storage"
	"strata/internal/store"
	"strata/internal/tier"
)

// CustomAction is a registered handler for CUSTOM policies. It receives
// the partition the policy matched; the executor holds the partition's
// busy lock for the duration of the call.
type CustomAction func(ctx context.Context, p partition.Partition) error

// MoveHook is called after a successful MOVE with the partition's
// post-move state and its dataset's template. The merge scheduler hangs
// off this hook.
type MoveHook func(ctx context.Context, moved partition.Partition, tmpl tier.Template)

// Options configures an Executor.
type Options struct {
	// MaxWorkers bounds concurrent actions. Defaults to 4.
	MaxWorkers int

	// ActionTimeout unblocks a worker when a single action runs too long.
	// The underlying storage call is not abortable; the partition stays
	// busy until it actually returns. Zero disables the timeout.
	ActionTimeout time.Duration

	// Window restricts when new actions are dispatched. Nil means always.
	Window *Window

	Custom map[string]CustomAction
	OnMove MoveHook

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Alerter *notify.Alerter

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Stats summarizes one execution pass.
type Stats struct {
	Executed int
	Failed   int
	Skipped  int
	Deferred int
}

// Executor drains the pending queue.
type Executor struct {
	engine storage.Engine
	meta   storage.Metadata
	queue  audit.Store
	cfg    store.Store
	busy   *Busy

	mu         sync.Mutex // guards maxWorkers and window
	maxWorkers int
	timeout    time.Duration
	window     *Window
	custom     map[string]CustomAction
	onMove     MoveHook

	log     *slog.Logger
	metrics *metrics.Metrics
	alerter *notify.Alerter
	now     func() time.Time
}

// New creates an Executor. The busy registry is shared with the merge
// scheduler so consolidation and policy actions never overlap on a
// partition.
func New(engine storage.Engine, meta storage.Metadata, queue audit.Store, cfg store.Store, busy *Busy, opts Options) *Executor {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := logging.Default(opts.Logger).With("component", "executor")
	return &Executor{
		engine:     engine,
		meta:       meta,
		queue:      queue,
		cfg:        cfg,
		busy:       busy,
		maxWorkers: opts.MaxWorkers,
		timeout:    opts.ActionTimeout,
		window:     opts.Window,
		custom:     opts.Custom,
		onMove:     opts.OnMove,
		log:        log,
		metrics:    opts.Metrics,
		alerter:    opts.Alerter,
		now:        opts.Now,
	}
}

// SetWindow replaces the execution window. Takes effect on the next pass;
// nil removes the restriction.
func (x *Executor) SetWindow(w *Window) {
	x.mu.Lock()
	x.window = w
	x.mu.Unlock()
}

// SetMaxWorkers changes the worker pool bound for subsequent passes.
// Values below one reset to the default.
func (x *Executor) SetMaxWorkers(n int) {
	if n <= 0 {
		n = 4
	}
	x.mu.Lock()
	x.maxWorkers = n
	x.mu.Unlock()
}

// RunPending executes eligible queue entries in priority order. Entries
// whose partition is busy, or that arrive outside the execution window,
// stay pending for the next pass.
func (x *Executor) RunPending(ctx context.Context) (Stats, error) {
	x.mu.Lock()
	maxWorkers, window := x.maxWorkers, x.window
	x.mu.Unlock()

	entries, err := x.queue.ListPending(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list pending: %w", err)
	}
	if x.metrics != nil {
		x.metrics.QueueDepth.Set(float64(len(entries)))
	}
	if len(entries) == 0 {
		return Stats{}, nil
	}

	// One partition listing per dataset per pass.
	snapshots := map[string][]partition.Partition{}

	var stats Stats
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	results := make(chan outcome, len(entries))

	// Workers spawned before an error must finish and be counted, or the
	// returned stats lie about what this pass did.
	drain := func() {
		g.Wait()
		close(results)
		for o := range results {
			if o.failed {
				stats.Failed++
			} else {
				stats.Executed++
			}
		}
	}

	for i, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if window != nil && !window.Contains(x.now()) {
			stats.Deferred += len(entries) - i
			break
		}

		pol, part, tmpl, skip, err := x.resolve(ctx, entry, snapshots)
		if err != nil {
			drain()
			return stats, err
		}
		if skip != "" {
			if err := x.queue.MarkSkipped(ctx, entry.ID, skip); err != nil {
				drain()
				return stats, fmt.Errorf("mark skipped: %w", err)
			}
			stats.Skipped++
			continue
		}

		if !x.busy.TryAcquire(part.Key()) {
			stats.Deferred++
			continue
		}

		claimed, err := x.queue.Claim(ctx, entry.ID)
		if err != nil {
			x.busy.Release(part.Key())
			drain()
			return stats, fmt.Errorf("claim entry: %w", err)
		}
		if !claimed {
			x.busy.Release(part.Key())
			continue
		}
		x.updateBusyGauge()

		g.Go(func() error {
			results <- x.execute(gctx, entry, *pol, part, tmpl)
			return nil
		})
	}

	drain()
	return stats, ctx.Err()
}

type outcome struct {
	failed bool
}

// resolve loads the entry's policy, partition and template. A non-empty
// skip reason means the entry can no longer be executed.
func (x *Executor) resolve(ctx context.Context, e audit.QueueEntry, snapshots map[string][]partition.Partition) (*policy.Policy, partition.Partition, tier.Template, string, error) {
	var zero partition.Partition
	var ztmpl tier.Template

	pol, err := x.cfg.GetPolicy(ctx, e.PolicyID)
	if err != nil {
		return nil, zero, ztmpl, "", fmt.Errorf("get policy: %w", err)
	}
	if pol == nil {
		return nil, zero, ztmpl, "policy deleted", nil
	}
	if !pol.Active() {
		return nil, zero, ztmpl, "policy disabled or paused", nil
	}

	parts, ok := snapshots[e.Dataset]
	if !ok {
		parts, err = x.meta.ListPartitions(ctx, e.Dataset)
		if err != nil {
			return nil, zero, ztmpl, "", fmt.Errorf("list partitions for %s: %w", e.Dataset, err)
		}
		snapshots[e.Dataset] = parts
	}
	snap := partition.Snapshot{Dataset: e.Dataset, Partitions: parts}
	part, err := snap.Find(e.PartitionID)
	if err != nil {
		return nil, zero, ztmpl, "partition no longer exists", nil
	}

	var tmpl tier.Template
	if pol.Action == policy.ActionMove {
		ds, err := x.cfg.GetDataset(ctx, e.Dataset)
		if err != nil {
			return nil, zero, ztmpl, "", fmt.Errorf("get dataset: %w", err)
		}
		if ds == nil {
			return nil, zero, ztmpl, "dataset no longer registered", nil
		}
		t, err := x.cfg.GetTemplate(ctx, ds.Template)
		if err != nil {
			return nil, zero, ztmpl, "", fmt.Errorf("get template: %w", err)
		}
		if t == nil {
			return nil, zero, ztmpl, fmt.Sprintf("template %q no longer exists", ds.Template), nil
		}
		tmpl = *t
	}

	return pol, part, tmpl, "", nil
}

// execute runs one claimed action. The caller has already acquired the
// partition's busy lock; execute releases it when the storage call
// returns, even if that is long after the action timed out.
func (x *Executor) execute(ctx context.Context, entry audit.QueueEntry, pol policy.Policy, part partition.Partition, tmpl tier.Template) outcome {
	started := x.now()
	logEntry := audit.LogEntry{
		ID:             entry.ID,
		PolicyID:       pol.ID,
		PartitionID:    part.ID,
		Dataset:        part.Dataset,
		Action:         pol.Action,
		BeforeBytes:    part.Bytes,
		BeforeLocation: part.Location,
		AfterLocation:  part.Location,
		Status:         audit.LogRunning,
		StartedAt:      started,
	}
	if err := x.queue.BeginLog(ctx, logEntry); err != nil {
		x.busy.Release(part.Key())
		x.updateBusyGauge()
		x.log.Error("begin log failed", "entry", entry.ID, "error", err)
		return outcome{failed: true}
	}

	if x.metrics != nil {
		x.metrics.ActiveWorkers.Inc()
		defer x.metrics.ActiveWorkers.Dec()
	}

	done := make(chan error, 1)
	go func() {
		done <- x.dispatch(ctx, pol, part, tmpl)
	}()

	var timeout <-chan time.Time
	if x.timeout > 0 {
		timer := time.NewTimer(x.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case err := <-done:
		x.busy.Release(part.Key())
		x.updateBusyGauge()
		return x.finish(ctx, logEntry, pol, part, tmpl, err)
	case <-timeout:
		// The storage call cannot be cancelled. Unblock the worker, but
		// hold the busy lock until the call actually returns so no second
		// action touches the partition.
		go func() {
			<-done
			x.busy.Release(part.Key())
			x.updateBusyGauge()
		}()
		logEntry.Status = audit.LogFailed
		logEntry.ErrorKind = storage.KindRetryable
		logEntry.Error = fmt.Sprintf("action still running after %s", x.timeout)
		x.finishLog(ctx, logEntry)
		x.observe(pol.Action, "failed", x.now().Sub(started))
		if x.alerter != nil {
			x.alerter.Page(part.Dataset, fmt.Sprintf("%s on partition %s exceeded the %s execution timeout", pol.Action, part.ID, x.timeout))
		}
		if x.metrics != nil {
			x.metrics.AlertsTotal.Inc()
		}
		return outcome{failed: true}
	}
}

// dispatch maps a policy action to the storage engine call.
func (x *Executor) dispatch(ctx context.Context, pol policy.Policy, part partition.Partition, tmpl tier.Template) error {
	switch pol.Action {
	case policy.ActionCompress:
		return x.engine.SetCodec(ctx, part.ID, pol.Params.Codec)
	case policy.ActionMove:
		dest := tmpl.Def(*pol.Params.TargetTier)
		return x.engine.Relocate(ctx, part.ID, dest.Location, pol.Params.Codec)
	case policy.ActionReadOnly:
		return x.engine.SealReadOnly(ctx, part.ID)
	case policy.ActionDrop:
		return x.engine.Drop(ctx, part.ID)
	case policy.ActionTruncate:
		return x.engine.Truncate(ctx, part.ID)
	case policy.ActionCustom:
		fn, ok := x.custom[pol.Params.Custom]
		if !ok {
			return fmt.Errorf("custom action %q is not registered", pol.Params.Custom)
		}
		return fn(ctx, part)
	default:
		return fmt.Errorf("unknown action %q", pol.Action)
	}
}

func (x *Executor) finish(ctx context.Context, logEntry audit.LogEntry, pol policy.Policy, part partition.Partition, tmpl tier.Template, err error) outcome {
	duration := x.now().Sub(logEntry.StartedAt)

	if err != nil {
		kind := storage.Classify(err)
		logEntry.Status = audit.LogFailed
		logEntry.ErrorKind = kind
		logEntry.Error = err.Error()
		x.finishLog(ctx, logEntry)
		x.observe(pol.Action, "failed", duration)

		x.log.Warn("action failed",
			"action", pol.Action,
			"partition", part.ID,
			"dataset", part.Dataset,
			"kind", kind,
			"error", err)
		if x.alerter != nil {
			if x.alerter.Failure(part.Dataset, fmt.Sprintf("%s failures accumulating", pol.Action)) && x.metrics != nil {
				x.metrics.AlertsTotal.Inc()
			}
		}
		return outcome{failed: true}
	}

	logEntry.Status = audit.LogSuccess
	logEntry.AfterBytes, logEntry.AfterLocation = x.afterState(ctx, pol, part, tmpl)
	x.finishLog(ctx, logEntry)
	x.observe(pol.Action, "success", duration)
	if x.metrics != nil && logEntry.AfterBytes < logEntry.BeforeBytes {
		x.metrics.BytesFreedTotal.Add(float64(logEntry.BeforeBytes - logEntry.AfterBytes))
	}

	x.log.Info("action executed",
		"action", pol.Action,
		"partition", part.ID,
		"dataset", part.Dataset,
		"duration", duration)

	if pol.Action == policy.ActionMove && x.onMove != nil {
		moved := part
		dest := tmpl.Def(*pol.Params.TargetTier)
		moved.Tier = *pol.Params.TargetTier
		moved.Location = dest.Location
		moved.Codec = pol.Params.Codec
		x.onMove(ctx, moved, tmpl)
	}
	return outcome{}
}

// afterState computes the audit record's post-action measurements.
func (x *Executor) afterState(ctx context.Context, pol policy.Policy, part partition.Partition, tmpl tier.Template) (int64, string) {
	location := part.Location
	if pol.Action == policy.ActionMove {
		location = tmpl.Def(*pol.Params.TargetTier).Location
	}
	switch pol.Action {
	case policy.ActionDrop, policy.ActionTruncate:
		return 0, location
	}
	m, err := x.meta.PartitionMetrics(ctx, part.ID)
	if err != nil {
		// Best effort; the action itself succeeded.
		return part.Bytes, location
	}
	return m.Bytes, location
}

func (x *Executor) finishLog(ctx context.Context, e audit.LogEntry) {
	e.FinishedAt = x.now()
	e.Duration = e.FinishedAt.Sub(e.StartedAt)
	if err := x.queue.FinishLog(ctx, e); err != nil && !errors.Is(err, context.Canceled) {
		x.log.Error("finish log failed", "entry", e.ID, "error", err)
	}
}

func (x *Executor) observe(action policy.Action, status string, d time.Duration) {
	if x.metrics == nil {
		return
	}
	x.metrics.ExecutionsTotal.WithLabelValues(string(action), status).Inc()
	x.metrics.ExecutionDuration.WithLabelValues(string(action)).Observe(d.Seconds())
}

func (x *Executor) updateBusyGauge() {
	if x.metrics != nil {
		x.metrics.BusyPartitions.Set(float64(x.busy.Len()))
	}
}
