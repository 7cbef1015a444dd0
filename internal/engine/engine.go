// Package engine ties the planner, classifier, policy evaluator, executor
// and merge scheduler together behind cron-driven sweeps. It owns the
// operational surface: manual triggers, pause/resume, dataset status views
// and queue hygiene.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"strata/internal/audit"
	"strata/internal/executor"
	"strata/internal/logging"
	"strata/internal/mergesched"
	"strata/internal/metrics"
	"strata/internal/notify"
	"strata/internal/partition"
	"strata/internal/planner"
	"strata/internal/policy"
	"strata/internal/storage"
	"strata/internal/store"
	"strata/internal/tier"
)

// Job names on the shared scheduler.
const (
	jobEvaluate = "evaluate"
	jobExecute  = "execute"
	jobSweep    = "merge-sweep"
	jobPurge    = "queue-purge"
)

// Options configures an Engine. Zero values fall back to the documented
// defaults.
type Options struct {
	// Cron schedules for the periodic jobs.
	EvaluateSchedule string // default "0 * * * *"
	ExecuteSchedule  string // default "*/15 * * * *"
	SweepSchedule    string // default "30 2 * * *"
	PurgeSchedule    string // default "0 3 * * *"

	// AutoExecute drains the queue on the execute schedule. When false,
	// evaluation still fills the queue but actions only run via
	// ExecuteNow.
	AutoExecute bool

	// QueueRetention bounds how long consumed queue entries are kept.
	// Default 7 days.
	QueueRetention time.Duration

	// MinReevalInterval suppresses re-queuing a (policy, partition) pair
	// this soon after a successful execution. Default 24h.
	MinReevalInterval time.Duration

	// RecencyStaleness bounds how old cached access signals may get
	// before they are refreshed. Default 1h.
	RecencyStaleness time.Duration

	// Executor tuning.
	MaxWorkers    int
	ActionTimeout time.Duration
	Window        *executor.Window
	Custom        map[string]executor.CustomAction

	// Predicates are the registered custom eligibility predicates.
	Predicates map[string]policy.Predicate

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Alerter *notify.Alerter

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Engine is the lifecycle tiering engine.
type Engine struct {
	cfg     store.Store
	storEng storage.Engine
	meta    storage.Metadata
	queue   audit.Store

	busy    *executor.Busy
	exec    *executor.Executor
	merge   *mergesched.Scheduler
	sched   *Scheduler
	recency *recencyCache

	ctlMu          sync.Mutex // guards autoExecute, runCtx and schedules
	autoExecute    bool
	runCtx         context.Context
	schedules      map[string]string
	queueRetention time.Duration
	minReeval      time.Duration
	predicates     map[string]policy.Predicate

	log     *slog.Logger
	metrics *metrics.Metrics
	alerter *notify.Alerter
	now     func() time.Time

	// Reconfigured broadcasts after ApplySchedules changes the cron
	// layout; the config watcher and tests wait on it.
	Reconfigured *notify.Signal
}

// New wires an Engine. The executor and merge scheduler share one busy
// registry so policy actions and consolidations never overlap on a
// partition.
func New(cfg store.Store, storEng storage.Engine, meta storage.Metadata, queue audit.Store, opts Options) (*Engine, error) {
	if opts.EvaluateSchedule == "" {
		opts.EvaluateSchedule = "0 * * * *"
	}
	if opts.ExecuteSchedule == "" {
		opts.ExecuteSchedule = "*/15 * * * *"
	}
	if opts.SweepSchedule == "" {
		opts.SweepSchedule = "30 2 * * *"
	}
	if opts.PurgeSchedule == "" {
		opts.PurgeSchedule = "0 3 * * *"
	}
	if opts.QueueRetention <= 0 {
		opts.QueueRetention = 7 * 24 * time.Hour
	}
	if opts.MinReevalInterval <= 0 {
		opts.MinReevalInterval = 24 * time.Hour
	}
	if opts.RecencyStaleness <= 0 {
		opts.RecencyStaleness = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := logging.Default(opts.Logger)

	e := &Engine{
		cfg:         cfg,
		storEng:     storEng,
		meta:        meta,
		queue:       queue,
		busy:        executor.NewBusy(),
		autoExecute: opts.AutoExecute,
		schedules: map[string]string{
			jobEvaluate: opts.EvaluateSchedule,
			jobExecute:  opts.ExecuteSchedule,
			jobSweep:    opts.SweepSchedule,
			jobPurge:    opts.PurgeSchedule,
		},
		queueRetention: opts.QueueRetention,
		minReeval:      opts.MinReevalInterval,
		predicates:     opts.Predicates,
		log:            log.With("component", "engine"),
		metrics:        opts.Metrics,
		alerter:        opts.Alerter,
		now:            opts.Now,
		Reconfigured:   notify.NewSignal(),
	}
	e.recency = newRecencyCache(meta, opts.RecencyStaleness, opts.Now)
	e.merge = mergesched.New(storEng, meta, e.busy, log, opts.Metrics)
	e.exec = executor.New(storEng, meta, queue, cfg, e.busy, executor.Options{
		MaxWorkers:    opts.MaxWorkers,
		ActionTimeout: opts.ActionTimeout,
		Window:        opts.Window,
		Custom:        opts.Custom,
		OnMove:        e.onMove,
		Logger:        log,
		Metrics:       opts.Metrics,
		Alerter:       opts.Alerter,
		Now:           opts.Now,
	})

	sched, err := newScheduler(log.With("component", "scheduler"))
	if err != nil {
		return nil, err
	}
	e.sched = sched
	return e, nil
}

// onMove is the executor's move hook: consolidation runs inline after each
// successful MOVE, and the partition's cached recency is dropped since the
// move itself counts as engine activity, not user access.
func (e *Engine) onMove(ctx context.Context, moved partition.Partition, tmpl tier.Template) {
	e.recency.forget(moved.ID)
	e.merge.Consolidate(ctx, moved, tmpl)
}

// Start registers the periodic jobs and starts the scheduler.
func (e *Engine) Start(ctx context.Context) error {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	e.runCtx = ctx
	if err := e.sched.AddJob(jobEvaluate, e.schedules[jobEvaluate], func() { e.runEvaluate(ctx) }); err != nil {
		return err
	}
	if e.autoExecute {
		if err := e.sched.AddJob(jobExecute, e.schedules[jobExecute], func() { e.runExecute(ctx) }); err != nil {
			return err
		}
	}
	if err := e.sched.AddJob(jobSweep, e.schedules[jobSweep], func() { e.runSweep(ctx) }); err != nil {
		return err
	}
	if err := e.sched.AddJob(jobPurge, e.schedules[jobPurge], func() { e.runPurge(ctx) }); err != nil {
		return err
	}
	e.sched.Start()
	return nil
}

// Stop shuts the scheduler down and waits for running jobs.
func (e *Engine) Stop() error {
	return e.sched.Stop()
}

// Jobs returns the scheduler's registered jobs.
func (e *Engine) Jobs() []JobInfo { return e.sched.ListJobs() }

// ApplySchedules replaces the cron schedules at runtime. Empty strings
// leave the current schedule in place.
func (e *Engine) ApplySchedules(ctx context.Context, evaluate, execute, sweep, purge string) error {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	update := func(name, expr string, fn func()) error {
		if expr == "" || e.schedules[name] == expr {
			return nil
		}
		if err := e.sched.UpdateJob(name, expr, fn); err != nil {
			return err
		}
		e.schedules[name] = expr
		return nil
	}
	if err := update(jobEvaluate, evaluate, func() { e.runEvaluate(ctx) }); err != nil {
		return err
	}
	if e.autoExecute {
		if err := update(jobExecute, execute, func() { e.runExecute(ctx) }); err != nil {
			return err
		}
	}
	if err := update(jobSweep, sweep, func() { e.runSweep(ctx) }); err != nil {
		return err
	}
	if err := update(jobPurge, purge, func() { e.runPurge(ctx) }); err != nil {
		return err
	}
	e.Reconfigured.Notify()
	return nil
}

func (e *Engine) runEvaluate(ctx context.Context) {
	if _, err := e.EvaluateAll(ctx); err != nil {
		e.log.Error("evaluation sweep failed", "error", err)
	}
}

func (e *Engine) runExecute(ctx context.Context) {
	if _, err := e.ExecuteNow(ctx); err != nil {
		e.log.Error("execution sweep failed", "error", err)
	}
}

func (e *Engine) runSweep(ctx context.Context) {
	if _, err := e.SweepAll(ctx); err != nil {
		e.log.Error("merge sweep failed", "error", err)
	}
}

func (e *Engine) runPurge(ctx context.Context) {
	n, err := e.queue.PurgeQueue(ctx, e.now().Add(-e.queueRetention))
	if err != nil {
		e.log.Error("queue purge failed", "error", err)
		return
	}
	if n > 0 {
		e.log.Info("queue purged", "removed", n)
	}
}

// ExecuteNow drains the pending queue once.
func (e *Engine) ExecuteNow(ctx context.Context) (executor.Stats, error) {
	return e.exec.RunPending(ctx)
}

// SweepAll runs the consolidation sweep over every registered dataset.
func (e *Engine) SweepAll(ctx context.Context) (int, error) {
	datasets, err := e.cfg.ListDatasets(ctx)
	if err != nil {
		return 0, fmt.Errorf("list datasets: %w", err)
	}
	total := 0
	for _, ds := range datasets {
		tmpl, err := e.cfg.GetTemplate(ctx, ds.Template)
		if err != nil {
			return total, fmt.Errorf("get template %q: %w", ds.Template, err)
		}
		if tmpl == nil {
			e.log.Warn("dataset references missing template", "dataset", ds.Name, "template", ds.Template)
			continue
		}
		n, err := e.merge.Sweep(ctx, ds.Name, *tmpl)
		total += n
		if err != nil {
			return total, fmt.Errorf("sweep %s: %w", ds.Name, err)
		}
	}
	return total, nil
}

// SetAutoExecute turns the scheduled queue drain on or off at runtime.
// Evaluation keeps filling the queue either way; with auto-execute off,
// actions only run through ExecuteNow.
func (e *Engine) SetAutoExecute(enabled bool) error {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	if e.autoExecute == enabled {
		return nil
	}
	e.autoExecute = enabled
	if enabled {
		ctx := e.runCtx
		if ctx == nil {
			ctx = context.Background()
		}
		if err := e.sched.AddJob(jobExecute, e.schedules[jobExecute], func() { e.runExecute(ctx) }); err != nil {
			e.autoExecute = false
			return err
		}
	} else {
		e.sched.RemoveJob(jobExecute)
	}
	e.log.Info("auto-execute toggled", "enabled", enabled)
	e.Reconfigured.Notify()
	return nil
}

// SetExecutionWindow replaces the daily dispatch window; nil removes it.
func (e *Engine) SetExecutionWindow(w *executor.Window) {
	e.exec.SetWindow(w)
}

// SetMaxWorkers changes the execution worker pool bound.
func (e *Engine) SetMaxWorkers(n int) {
	e.exec.SetMaxWorkers(n)
}

// EffectiveThresholds reports which threshold profile a policy resolves to
// and where it came from: the policy's own reference, the stored default
// profile, or the built-in default.
type EffectiveThresholds struct {
	Policy  string
	Profile tier.ThresholdProfile
	Source  string // "policy", "stored default" or "built-in default"
}

// ResolveThresholds computes the effective threshold view for a policy.
func (e *Engine) ResolveThresholds(ctx context.Context, id uuid.UUID) (*EffectiveThresholds, error) {
	pol, err := e.cfg.GetPolicy(ctx, id)
	if err != nil {
		return nil, err
	}
	if pol == nil {
		return nil, fmt.Errorf("policy %s not found", id)
	}
	profile, err := store.ResolveProfile(ctx, e.cfg, pol.Profile)
	if err != nil {
		return nil, err
	}

	source := "policy"
	if pol.Profile == "" || pol.Profile == tier.DefaultProfileName {
		stored, err := e.cfg.GetProfile(ctx, tier.DefaultProfileName)
		if err != nil {
			return nil, err
		}
		if stored != nil {
			source = "stored default"
		} else {
			source = "built-in default"
		}
	}
	return &EffectiveThresholds{Policy: pol.Name, Profile: profile, Source: source}, nil
}

// SetPolicyPaused pauses or resumes a policy. Pausing is an operational
// toggle, not a configuration change: the policy's UpdatedAt stays put so
// a terminal-failure block is not silently cleared.
func (e *Engine) SetPolicyPaused(ctx context.Context, id uuid.UUID, paused bool) error {
	p, err := e.cfg.GetPolicy(ctx, id)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("policy %s not found", id)
	}
	if p.Paused == paused {
		return nil
	}
	p.Paused = paused
	if err := e.cfg.PutPolicy(ctx, *p); err != nil {
		return err
	}
	e.log.Info("policy pause toggled", "policy", p.Name, "paused", paused)
	return nil
}

// PlanDataset computes the tier boundary layout for a dataset's date range
// and, when apply is set, materializes it through the storage engine.
func (e *Engine) PlanDataset(ctx context.Context, dataset string, minDate, maxDate time.Time, apply bool) (*planner.Plan, error) {
	ds, err := e.cfg.GetDataset(ctx, dataset)
	if err != nil {
		return nil, err
	}
	if ds == nil {
		return nil, fmt.Errorf("dataset %q not registered", dataset)
	}
	tmpl, err := e.cfg.GetTemplate(ctx, ds.Template)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, fmt.Errorf("template %q not found", ds.Template)
	}

	plan, err := planner.PlanBoundaries(dataset, minDate, maxDate, *tmpl, e.now())
	if err != nil {
		return nil, err
	}
	if apply {
		if err := e.storEng.CreatePartitions(ctx, dataset, plan.Boundaries); err != nil {
			return nil, fmt.Errorf("create partitions: %w", err)
		}
		e.log.Info("partition layout applied",
			"dataset", dataset,
			"partitions", len(plan.Boundaries))
	}
	return plan, nil
}

// PartitionStatus is one row of a dataset status view.
type PartitionStatus struct {
	Partition      partition.Partition
	Classification tier.Classification
	AccessStale    time.Duration
	Busy           bool
}

// DatasetStatus is the operator-facing view of a dataset: every partition
// with its current temperature under the given profile.
type DatasetStatus struct {
	Dataset    string
	Profile    tier.ThresholdProfile
	Partitions []PartitionStatus
}

// Status classifies every partition of a dataset under a threshold
// profile. An empty profileName resolves the stored or built-in default.
func (e *Engine) Status(ctx context.Context, dataset, profileName string) (*DatasetStatus, error) {
	profile, err := store.ResolveProfile(ctx, e.cfg, profileName)
	if err != nil {
		return nil, err
	}
	parts, err := e.meta.ListPartitions(ctx, dataset)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	now := e.now()
	st := &DatasetStatus{Dataset: dataset, Profile: profile}
	for _, p := range parts {
		access, err := e.recency.get(ctx, p.ID)
		if err != nil {
			e.log.Warn("recency lookup failed", "partition", p.ID, "error", err)
		}
		st.Partitions = append(st.Partitions, PartitionStatus{
			Partition:      p,
			Classification: tier.Classify(profile, p.Upper, access, now),
			AccessStale:    access.Staleness(now),
			Busy:           e.busy.Held(p.Key()),
		})
	}
	return st, nil
}

// PendingQueue returns the eligible entries awaiting execution.
func (e *Engine) PendingQueue(ctx context.Context) ([]audit.QueueEntry, error) {
	return e.queue.ListPending(ctx)
}

// AuditLog queries the execution log.
func (e *Engine) AuditLog(ctx context.Context, f audit.LogFilter) ([]audit.LogEntry, error) {
	return e.queue.QueryLog(ctx, f)
}
