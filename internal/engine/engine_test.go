package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"strata/internal/audit"
	auditmem "strata/internal/audit/memory"
	"strata/internal/partition"
	"strata/internal/policy"
	"strata/internal/storage"
	storagemem "strata/internal/storage/memory"
	"strata/internal/store"
	storemem "strata/internal/store/memory"
	"strata/internal/tier"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newV7() (uuid.UUID, error) { return uuid.NewV7() }

type fixture struct {
	cfg    *storemem.Store
	stor   *storagemem.Store
	queue  *auditmem.Store
	engine *Engine
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ctx := context.Background()

	cfg := storemem.NewStore()
	tmpl := tier.Template{
		Name: "standard",
		Hot:  tier.Def{MaxAgeDays: 365, Granularity: tier.Monthly, Location: "ssd", Codec: tier.CodecLZ4},
		Warm: tier.Def{MaxAgeDays: 1095, Granularity: tier.Yearly, Location: "hdd", Codec: tier.CodecZstd},
		Cold: tier.Def{MaxAgeDays: 2555, Granularity: tier.Yearly, Location: "archive", Codec: tier.CodecZstd},
	}
	if err := cfg.PutTemplate(ctx, tmpl); err != nil {
		t.Fatalf("PutTemplate: %v", err)
	}
	if err := cfg.PutDataset(ctx, store.Dataset{Name: "events", Template: "standard"}); err != nil {
		t.Fatalf("PutDataset: %v", err)
	}

	stor := storagemem.NewStore("ssd", "hdd", "archive")
	queue := auditmem.NewStore()

	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	eng, err := New(cfg, stor, stor, queue, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{cfg: cfg, stor: stor, queue: queue, engine: eng}
}

func (f *fixture) addPartition(t *testing.T, lower, upper time.Time, tr tier.Tier, location string) partition.Partition {
	t.Helper()
	p := partition.Partition{
		ID:       partition.NewID(),
		Dataset:  "events",
		Lower:    lower,
		Upper:    upper,
		Tier:     tr,
		Location: location,
		Codec:    tier.CodecLZ4,
		Rows:     1000,
		Bytes:    1 << 26,
	}
	f.stor.Add(p)
	return p
}

func (f *fixture) putPolicy(t *testing.T, p policy.Policy) policy.Policy {
	t.Helper()
	if err := f.cfg.PutPolicy(context.Background(), p); err != nil {
		t.Fatalf("PutPolicy: %v", err)
	}
	return p
}

func compressPolicy(t *testing.T) policy.Policy {
	t.Helper()
	id, err := newV7()
	if err != nil {
		t.Fatalf("uuid: %v", err)
	}
	return policy.Policy{
		ID:      id,
		Name:    "compress-warm",
		Dataset: "events",
		Conditions: policy.Conditions{
			MinAgeDays:  policy.IntPtr(90),
			Temperature: policy.TierPtr(tier.Warm),
		},
		Action:    policy.ActionCompress,
		Params:    policy.Params{Codec: tier.CodecZstd},
		Priority:  10,
		Enabled:   true,
		UpdatedAt: testNow.Add(-30 * 24 * time.Hour),
	}
}

func day(d time.Time, days int) time.Time { return d.AddDate(0, 0, days) }

func TestEvaluateFillsQueue(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	// Warm by age (about 150 days), young hot, and an open partition.
	warm := f.addPartition(t, day(testNow, -180), day(testNow, -150), tier.Hot, "ssd")
	f.addPartition(t, day(testNow, -40), day(testNow, -10), tier.Hot, "ssd")
	f.addPartition(t, day(testNow, -10), time.Time{}, tier.Hot, "ssd")
	pol := f.putPolicy(t, compressPolicy(t))

	stats, err := f.engine.EvaluateDataset(ctx, "events")
	if err != nil {
		t.Fatalf("EvaluateDataset: %v", err)
	}
	if stats.Eligible != 1 || stats.Ineligible != 2 {
		t.Fatalf("expected 1 eligible / 2 ineligible, got %+v", stats)
	}

	pending, err := f.engine.PendingQueue(ctx)
	if err != nil {
		t.Fatalf("PendingQueue: %v", err)
	}
	if len(pending) != 1 || pending[0].PartitionID != warm.ID {
		t.Fatalf("expected the warm partition pending, got %+v", pending)
	}

	// Ineligible outcomes are recorded, not dropped.
	for _, p := range []partition.Partition{warm} {
		entry, err := f.queue.GetEntry(ctx, pol.ID, p.ID)
		if err != nil || entry == nil {
			t.Fatalf("expected entry for %s: %v", p.ID, err)
		}
	}
}

func TestEvaluationIsDeterministic(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.addPartition(t, day(testNow, -180), day(testNow, -150), tier.Hot, "ssd")
	f.addPartition(t, day(testNow, -40), day(testNow, -10), tier.Hot, "ssd")
	f.putPolicy(t, compressPolicy(t))

	first, err := f.engine.EvaluateDataset(ctx, "events")
	if err != nil {
		t.Fatalf("EvaluateDataset: %v", err)
	}
	for range 3 {
		again, err := f.engine.EvaluateDataset(ctx, "events")
		if err != nil {
			t.Fatalf("EvaluateDataset: %v", err)
		}
		if again != first {
			t.Fatalf("evaluation diverged: %+v vs %+v", first, again)
		}
	}
}

func TestExecuteAndMinReevalInterval(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	warm := f.addPartition(t, day(testNow, -180), day(testNow, -150), tier.Hot, "ssd")
	pol := f.putPolicy(t, compressPolicy(t))

	if _, err := f.engine.EvaluateDataset(ctx, "events"); err != nil {
		t.Fatalf("EvaluateDataset: %v", err)
	}
	stats, err := f.engine.ExecuteNow(ctx)
	if err != nil {
		t.Fatalf("ExecuteNow: %v", err)
	}
	if stats.Executed != 1 {
		t.Fatalf("expected 1 executed, got %+v", stats)
	}
	got, _ := f.stor.Get(warm.ID)
	if got.Codec != tier.CodecZstd {
		t.Errorf("expected recompressed partition, got codec %s", got.Codec)
	}

	// Re-evaluating right after a success parks the pair.
	if _, err := f.engine.EvaluateDataset(ctx, "events"); err != nil {
		t.Fatalf("EvaluateDataset: %v", err)
	}
	entry, err := f.queue.GetEntry(ctx, pol.ID, warm.ID)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if entry.Status != audit.QueueSkipped {
		t.Fatalf("expected SKIPPED within the re-evaluation interval, got %s", entry.Status)
	}
}

func TestTerminalFailureBlocksUntilPolicyUpdated(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	warm := f.addPartition(t, day(testNow, -180), day(testNow, -150), tier.Hot, "ssd")
	pol := f.putPolicy(t, compressPolicy(t))

	if _, err := f.engine.EvaluateDataset(ctx, "events"); err != nil {
		t.Fatalf("EvaluateDataset: %v", err)
	}
	f.stor.FailNext("set_codec", storage.ErrNotFound)
	if _, err := f.engine.ExecuteNow(ctx); err != nil {
		t.Fatalf("ExecuteNow: %v", err)
	}

	// Same policy: blocked.
	if _, err := f.engine.EvaluateDataset(ctx, "events"); err != nil {
		t.Fatalf("EvaluateDataset: %v", err)
	}
	entry, err := f.queue.GetEntry(ctx, pol.ID, warm.ID)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if entry.Status != audit.QueueSkipped {
		t.Fatalf("expected terminal failure to block the pair, got %s", entry.Status)
	}

	// Updating the policy clears the block.
	pol.UpdatedAt = testNow.Add(time.Hour)
	f.putPolicy(t, pol)
	if _, err := f.engine.EvaluateDataset(ctx, "events"); err != nil {
		t.Fatalf("EvaluateDataset: %v", err)
	}
	entry, err = f.queue.GetEntry(ctx, pol.ID, warm.ID)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if entry.Status != audit.QueuePending {
		t.Fatalf("expected pair requeued after policy update, got %s (%s)", entry.Status, entry.Reason)
	}
}

func TestRetryableFailureRequeues(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	warm := f.addPartition(t, day(testNow, -180), day(testNow, -150), tier.Hot, "ssd")
	f.putPolicy(t, compressPolicy(t))

	if _, err := f.engine.EvaluateDataset(ctx, "events"); err != nil {
		t.Fatalf("EvaluateDataset: %v", err)
	}
	f.stor.FailNext("set_codec", storage.ErrContended)
	stats, err := f.engine.ExecuteNow(ctx)
	if err != nil {
		t.Fatalf("ExecuteNow: %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("expected 1 failed, got %+v", stats)
	}

	// The next pass requeues and the retry succeeds.
	if _, err := f.engine.EvaluateDataset(ctx, "events"); err != nil {
		t.Fatalf("EvaluateDataset: %v", err)
	}
	stats, err = f.engine.ExecuteNow(ctx)
	if err != nil {
		t.Fatalf("ExecuteNow: %v", err)
	}
	if stats.Executed != 1 {
		t.Fatalf("expected retry to execute, got %+v", stats)
	}
	got, _ := f.stor.Get(warm.ID)
	if got.Codec != tier.CodecZstd {
		t.Errorf("expected recompressed partition after retry, got %s", got.Codec)
	}
}

func TestMoveTriggersConsolidation(t *testing.T) {
	f := newFixture(t, Options{MaxWorkers: 1})
	ctx := context.Background()

	// Two adjacent monthly partitions old enough to demote. Sequential
	// execution moves the older one first, so the second move finds its
	// coarse neighbor already on the warm tier and folds into it.
	jan := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2022, 2, 1, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)
	f.addPartition(t, jan, feb, tier.Hot, "ssd")
	f.addPartition(t, feb, mar, tier.Hot, "ssd")

	id, err := newV7()
	if err != nil {
		t.Fatalf("uuid: %v", err)
	}
	f.putPolicy(t, policy.Policy{
		ID:      id,
		Name:    "demote-to-warm",
		Dataset: "events",
		Conditions: policy.Conditions{
			MinAgeDays: policy.IntPtr(365),
		},
		Action:    policy.ActionMove,
		Params:    policy.Params{Codec: tier.CodecZstd, TargetTier: policy.TierPtr(tier.Warm)},
		Priority:  10,
		Enabled:   true,
		UpdatedAt: testNow.Add(-30 * 24 * time.Hour),
	})

	if _, err := f.engine.EvaluateDataset(ctx, "events"); err != nil {
		t.Fatalf("EvaluateDataset: %v", err)
	}
	stats, err := f.engine.ExecuteNow(ctx)
	if err != nil {
		t.Fatalf("ExecuteNow: %v", err)
	}
	if stats.Executed != 2 {
		t.Fatalf("expected both moves executed, got %+v", stats)
	}

	parts, err := f.stor.ListPartitions(ctx, "events")
	if err != nil {
		t.Fatalf("ListPartitions: %v", err)
	}
	if len(parts) != 1 {
		t.Fatalf("expected moves to consolidate into one partition, got %d", len(parts))
	}
	got := parts[0]
	if got.Location != "hdd" {
		t.Errorf("expected consolidated partition on hdd, got %s", got.Location)
	}
	if !got.Lower.Equal(jan) || !got.Upper.Equal(mar) {
		t.Errorf("expected span 2022-01..2022-03, got %s..%s", got.Lower, got.Upper)
	}

	// Nothing left for the sweep.
	n, err := f.engine.SweepAll(ctx)
	if err != nil {
		t.Fatalf("SweepAll: %v", err)
	}
	if n != 0 {
		t.Errorf("expected idle sweep, got %d merges", n)
	}
}

func TestPausedPolicyNotEvaluated(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.addPartition(t, day(testNow, -180), day(testNow, -150), tier.Hot, "ssd")
	pol := compressPolicy(t)
	pol.Paused = true
	f.putPolicy(t, pol)

	stats, err := f.engine.EvaluateDataset(ctx, "events")
	if err != nil {
		t.Fatalf("EvaluateDataset: %v", err)
	}
	if stats.Policies != 0 || stats.Eligible != 0 {
		t.Fatalf("paused policy must not evaluate, got %+v", stats)
	}

	// Resume through the engine and evaluate again.
	if err := f.engine.SetPolicyPaused(ctx, pol.ID, false); err != nil {
		t.Fatalf("SetPolicyPaused: %v", err)
	}
	stats, err = f.engine.EvaluateDataset(ctx, "events")
	if err != nil {
		t.Fatalf("EvaluateDataset: %v", err)
	}
	if stats.Eligible != 1 {
		t.Fatalf("expected resumed policy to queue work, got %+v", stats)
	}
}

func TestStatusView(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	warm := f.addPartition(t, day(testNow, -180), day(testNow, -150), tier.Hot, "ssd")
	f.addPartition(t, day(testNow, -40), day(testNow, -10), tier.Hot, "ssd")

	// Fresh access keeps an old partition hot.
	f.stor.SetRecency(warm.ID, storage.Recency{LastRead: day(testNow, -2)})

	st, err := f.engine.Status(ctx, "events", "")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Profile.HotDays != 90 {
		t.Errorf("expected built-in default profile, got %+v", st.Profile)
	}
	if len(st.Partitions) != 2 {
		t.Fatalf("expected 2 partitions, got %d", len(st.Partitions))
	}
	for _, ps := range st.Partitions {
		if ps.Partition.ID == warm.ID {
			if ps.Classification.Temperature != tier.Hot || ps.Classification.Basis != tier.BasisAccess {
				t.Errorf("expected access-based HOT classification, got %+v", ps.Classification)
			}
		}
	}
}

func TestPlanDatasetApply(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	plan, err := f.engine.PlanDataset(ctx, "events",
		time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC),
		true)
	if err != nil {
		t.Fatalf("PlanDataset: %v", err)
	}
	if plan.Total() == 0 {
		t.Fatal("expected a non-empty plan")
	}

	parts, err := f.stor.ListPartitions(ctx, "events")
	if err != nil {
		t.Fatalf("ListPartitions: %v", err)
	}
	if len(parts) != plan.Total() {
		t.Errorf("expected %d materialized partitions, got %d", plan.Total(), len(parts))
	}
	last := parts[len(parts)-1]
	if !last.Open() {
		t.Error("expected the newest partition to be open")
	}
}

func TestEvaluatePolicyTargetsOnePolicy(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	warm := f.addPartition(t, day(testNow, -180), day(testNow, -150), tier.Hot, "ssd")
	pol := f.putPolicy(t, compressPolicy(t))

	other := compressPolicy(t)
	id, err := newV7()
	if err != nil {
		t.Fatalf("uuid: %v", err)
	}
	other.ID = id
	other.Name = "seal-old"
	other.Action = policy.ActionReadOnly
	other.Params = policy.Params{}
	f.putPolicy(t, other)

	stats, err := f.engine.EvaluatePolicy(ctx, pol.ID)
	if err != nil {
		t.Fatalf("EvaluatePolicy: %v", err)
	}
	if stats.Policies != 1 || stats.Eligible != 1 {
		t.Fatalf("expected one eligible pair from one policy, got %+v", stats)
	}

	// Only the targeted policy produced entries.
	if entry, err := f.queue.GetEntry(ctx, other.ID, warm.ID); err != nil || entry != nil {
		t.Fatalf("expected no entry for the untargeted policy, got %+v (%v)", entry, err)
	}
}

func TestEvaluatePolicyRejectsPaused(t *testing.T) {
	f := newFixture(t, Options{})
	pol := compressPolicy(t)
	pol.Paused = true
	f.putPolicy(t, pol)

	if _, err := f.engine.EvaluatePolicy(context.Background(), pol.ID); err == nil {
		t.Fatal("expected an error for a paused policy")
	}
}

func TestResolveThresholdsPrecedence(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	// No stored default: the built-in profile applies.
	pol := f.putPolicy(t, compressPolicy(t))
	et, err := f.engine.ResolveThresholds(ctx, pol.ID)
	if err != nil {
		t.Fatalf("ResolveThresholds: %v", err)
	}
	if et.Source != "built-in default" || et.Profile.HotDays != 90 {
		t.Fatalf("expected built-in default, got %+v", et)
	}

	// A stored default overrides the built-in one.
	stored := tier.ThresholdProfile{Name: tier.DefaultProfileName, HotDays: 30, WarmDays: 180, ColdDays: 720}
	if err := f.cfg.PutProfile(ctx, stored); err != nil {
		t.Fatalf("PutProfile: %v", err)
	}
	et, err = f.engine.ResolveThresholds(ctx, pol.ID)
	if err != nil {
		t.Fatalf("ResolveThresholds: %v", err)
	}
	if et.Source != "stored default" || et.Profile.HotDays != 30 {
		t.Fatalf("expected stored default, got %+v", et)
	}

	// A policy-level reference wins over both.
	custom := tier.ThresholdProfile{Name: "aggressive", HotDays: 7, WarmDays: 60, ColdDays: 365}
	if err := f.cfg.PutProfile(ctx, custom); err != nil {
		t.Fatalf("PutProfile: %v", err)
	}
	pol.Profile = "aggressive"
	f.putPolicy(t, pol)
	et, err = f.engine.ResolveThresholds(ctx, pol.ID)
	if err != nil {
		t.Fatalf("ResolveThresholds: %v", err)
	}
	if et.Source != "policy" || et.Profile.HotDays != 7 {
		t.Fatalf("expected the policy's own profile, got %+v", et)
	}
}

func TestSetAutoExecuteTogglesJob(t *testing.T) {
	f := newFixture(t, Options{AutoExecute: false})
	ctx := context.Background()

	if err := f.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.engine.Stop()

	hasExecute := func() bool {
		for _, j := range f.engine.Jobs() {
			if j.Name == "execute" {
				return true
			}
		}
		return false
	}
	if hasExecute() {
		t.Fatal("execute job registered with auto-execute off")
	}

	if err := f.engine.SetAutoExecute(true); err != nil {
		t.Fatalf("SetAutoExecute: %v", err)
	}
	if !hasExecute() {
		t.Fatal("expected execute job after enabling auto-execute")
	}

	if err := f.engine.SetAutoExecute(false); err != nil {
		t.Fatalf("SetAutoExecute: %v", err)
	}
	if hasExecute() {
		t.Fatal("expected execute job removed after disabling auto-execute")
	}
}

func TestSetAutoExecuteConcurrentWithReschedule(t *testing.T) {
	f := newFixture(t, Options{AutoExecute: false})
	ctx := context.Background()

	if err := f.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.engine.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(on bool) {
			defer wg.Done()
			if err := f.engine.SetAutoExecute(on); err != nil {
				t.Errorf("SetAutoExecute: %v", err)
			}
			if err := f.engine.ApplySchedules(ctx, "", "", "", ""); err != nil {
				t.Errorf("ApplySchedules: %v", err)
			}
		}(i%2 == 0)
	}
	wg.Wait()

	if err := f.engine.SetAutoExecute(false); err != nil {
		t.Fatalf("SetAutoExecute: %v", err)
	}
	for _, j := range f.engine.Jobs() {
		if j.Name == "execute" {
			t.Fatal("execute job still registered after disabling auto-execute")
		}
	}
}

func TestSchedulerLifecycle(t *testing.T) {
	f := newFixture(t, Options{AutoExecute: true})
	ctx := context.Background()

	if err := f.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.engine.Stop()

	jobs := f.engine.Jobs()
	names := map[string]bool{}
	for _, j := range jobs {
		names[j.Name] = true
	}
	for _, want := range []string{"evaluate", "execute", "merge-sweep", "queue-purge"} {
		if !names[want] {
			t.Errorf("missing scheduled job %q", want)
		}
	}

	woken := f.engine.Reconfigured.C()
	if err := f.engine.ApplySchedules(ctx, "15 * * * *", "", "", ""); err != nil {
		t.Fatalf("ApplySchedules: %v", err)
	}
	select {
	case <-woken:
	default:
		t.Error("expected reconfiguration broadcast")
	}

	for _, j := range f.engine.Jobs() {
		if j.Name == "evaluate" && j.Schedule != "15 * * * *" {
			t.Errorf("expected updated schedule, got %q", j.Schedule)
		}
	}
}
