// Package storetest provides a shared conformance test suite for
// store.Store implementations. Each backend (memory, sqlite) wires this
// suite to verify it satisfies the full Store contract, including
// write-time validation.
package storetest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"strata/internal/policy"
	"strata/internal/store"
	"strata/internal/tier"
)

func newID() uuid.UUID { return uuid.Must(uuid.NewV7()) }

func validTemplate(name string) tier.Template {
	return tier.Template{
		Name: name,
		Hot:  tier.Def{MaxAgeDays: 365, Granularity: tier.Monthly, Location: "ssd", Codec: tier.CodecLZ4},
		Warm: tier.Def{MaxAgeDays: 1095, Granularity: tier.Yearly, Location: "hdd", Codec: tier.CodecZstd},
		Cold: tier.Def{MaxAgeDays: 2555, Granularity: tier.Yearly, Location: "archive", Codec: tier.CodecZstd},
	}
}

// seedDataset registers a template and a dataset bound to it.
func seedDataset(t *testing.T, s store.Store, name string) {
	t.Helper()
	ctx := context.Background()
	if err := s.PutTemplate(ctx, validTemplate("standard")); err != nil {
		t.Fatalf("PutTemplate: %v", err)
	}
	if err := s.PutDataset(ctx, store.Dataset{Name: name, Template: "standard"}); err != nil {
		t.Fatalf("PutDataset: %v", err)
	}
}

func validPolicy(dataset string) policy.Policy {
	return policy.Policy{
		ID:      newID(),
		Name:    "compress-warm",
		Dataset: dataset,
		Conditions: policy.Conditions{
			MinAgeDays:  policy.IntPtr(365),
			Temperature: policy.TierPtr(tier.Warm),
		},
		Action:    policy.ActionCompress,
		Params:    policy.Params{Codec: tier.CodecZstd},
		Priority:  10,
		Enabled:   true,
		UpdatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// TestStore runs the full conformance suite against a Store implementation.
// newStore must return a fresh, empty store for each sub-test.
func TestStore(t *testing.T, newStore func(t *testing.T) store.Store) {
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		p, err := s.GetPolicy(ctx, newID())
		if err != nil {
			t.Fatalf("GetPolicy: %v", err)
		}
		if p != nil {
			t.Fatalf("expected nil for missing policy, got %+v", p)
		}
		tm, err := s.GetTemplate(ctx, "nope")
		if err != nil {
			t.Fatalf("GetTemplate: %v", err)
		}
		if tm != nil {
			t.Fatalf("expected nil for missing template, got %+v", tm)
		}
	})

	t.Run("PutGetPolicy", func(t *testing.T) {
		s := newStore(t)
		seedDataset(t, s, "events")

		p := validPolicy("events")
		if err := s.PutPolicy(ctx, p); err != nil {
			t.Fatalf("PutPolicy: %v", err)
		}

		got, err := s.GetPolicy(ctx, p.ID)
		if err != nil {
			t.Fatalf("GetPolicy: %v", err)
		}
		if got == nil {
			t.Fatal("expected policy, got nil")
		}
		if got.Name != p.Name || got.Dataset != p.Dataset || got.Action != p.Action {
			t.Errorf("round-trip mismatch: %+v", got)
		}
		if got.Conditions.MinAgeDays == nil || *got.Conditions.MinAgeDays != 365 {
			t.Errorf("conditions lost: %+v", got.Conditions)
		}
		if got.Params.Codec != tier.CodecZstd {
			t.Errorf("params lost: %+v", got.Params)
		}
		if !got.UpdatedAt.Equal(p.UpdatedAt) {
			t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, p.UpdatedAt)
		}
	})

	t.Run("UpdatePolicy", func(t *testing.T) {
		s := newStore(t)
		seedDataset(t, s, "events")

		p := validPolicy("events")
		if err := s.PutPolicy(ctx, p); err != nil {
			t.Fatalf("PutPolicy: %v", err)
		}
		p.Priority = 3
		p.Paused = true
		if err := s.PutPolicy(ctx, p); err != nil {
			t.Fatalf("PutPolicy update: %v", err)
		}

		got, err := s.GetPolicy(ctx, p.ID)
		if err != nil {
			t.Fatalf("GetPolicy: %v", err)
		}
		if got.Priority != 3 || !got.Paused {
			t.Errorf("update lost: %+v", got)
		}

		all, err := s.ListPolicies(ctx)
		if err != nil {
			t.Fatalf("ListPolicies: %v", err)
		}
		if len(all) != 1 {
			t.Errorf("expected 1 policy after upsert, got %d", len(all))
		}
	})

	t.Run("RejectInvalidPolicy", func(t *testing.T) {
		s := newStore(t)
		seedDataset(t, s, "events")

		p := validPolicy("events")
		p.Params.Codec = "" // COMPRESS without codec
		err := s.PutPolicy(ctx, p)
		if err == nil {
			t.Fatal("expected validation error")
		}
		if !strings.Contains(err.Error(), "COMPRESS requires a codec") {
			t.Errorf("error %q should name the defect", err)
		}

		got, gerr := s.GetPolicy(ctx, p.ID)
		if gerr != nil {
			t.Fatalf("GetPolicy: %v", gerr)
		}
		if got != nil {
			t.Error("invalid policy must not be persisted")
		}
	})

	t.Run("RejectPolicyUnknownDataset", func(t *testing.T) {
		s := newStore(t)
		p := validPolicy("ghost")
		err := s.PutPolicy(ctx, p)
		if err == nil {
			t.Fatal("expected error for nonexistent dataset")
		}
		if !strings.Contains(err.Error(), `nonexistent dataset "ghost"`) {
			t.Errorf("error %q should name the dataset", err)
		}
	})

	t.Run("RejectPolicyUnknownProfile", func(t *testing.T) {
		s := newStore(t)
		seedDataset(t, s, "events")
		p := validPolicy("events")
		p.Profile = "aggressive"
		err := s.PutPolicy(ctx, p)
		if err == nil {
			t.Fatal("expected error for nonexistent profile")
		}
		if !strings.Contains(err.Error(), `nonexistent threshold profile "aggressive"`) {
			t.Errorf("error %q should name the profile", err)
		}
	})

	t.Run("DeletePolicy", func(t *testing.T) {
		s := newStore(t)
		seedDataset(t, s, "events")
		p := validPolicy("events")
		if err := s.PutPolicy(ctx, p); err != nil {
			t.Fatalf("PutPolicy: %v", err)
		}
		if err := s.DeletePolicy(ctx, p.ID); err != nil {
			t.Fatalf("DeletePolicy: %v", err)
		}
		got, err := s.GetPolicy(ctx, p.ID)
		if err != nil {
			t.Fatalf("GetPolicy: %v", err)
		}
		if got != nil {
			t.Error("policy still present after delete")
		}
	})

	t.Run("PutGetProfile", func(t *testing.T) {
		s := newStore(t)
		prof := tier.ThresholdProfile{Name: "aggressive", HotDays: 30, WarmDays: 90, ColdDays: 180}
		if err := s.PutProfile(ctx, prof); err != nil {
			t.Fatalf("PutProfile: %v", err)
		}
		got, err := s.GetProfile(ctx, "aggressive")
		if err != nil {
			t.Fatalf("GetProfile: %v", err)
		}
		if got == nil || *got != prof {
			t.Errorf("round-trip mismatch: %+v", got)
		}
	})

	t.Run("RejectNonMonotonicProfile", func(t *testing.T) {
		s := newStore(t)
		prof := tier.ThresholdProfile{Name: "bad", HotDays: 90, WarmDays: 90, ColdDays: 180}
		if err := s.PutProfile(ctx, prof); err == nil {
			t.Fatal("expected validation error")
		}
		got, err := s.GetProfile(ctx, "bad")
		if err != nil {
			t.Fatalf("GetProfile: %v", err)
		}
		if got != nil {
			t.Error("non-monotonic profile must never be persisted")
		}
	})

	t.Run("PutGetTemplate", func(t *testing.T) {
		s := newStore(t)
		tmpl := validTemplate("standard")
		if err := s.PutTemplate(ctx, tmpl); err != nil {
			t.Fatalf("PutTemplate: %v", err)
		}
		got, err := s.GetTemplate(ctx, "standard")
		if err != nil {
			t.Fatalf("GetTemplate: %v", err)
		}
		if got == nil {
			t.Fatal("expected template")
		}
		if *got != tmpl {
			t.Errorf("round-trip mismatch: %+v", got)
		}
	})

	t.Run("RejectNonMonotonicTemplate", func(t *testing.T) {
		s := newStore(t)
		tmpl := validTemplate("bad")
		tmpl.Cold.MaxAgeDays = 10
		if err := s.PutTemplate(ctx, tmpl); err == nil {
			t.Fatal("expected validation error")
		}
		got, err := s.GetTemplate(ctx, "bad")
		if err != nil {
			t.Fatalf("GetTemplate: %v", err)
		}
		if got != nil {
			t.Error("invalid template must never be persisted")
		}
	})

	t.Run("PutGetDataset", func(t *testing.T) {
		s := newStore(t)
		if err := s.PutTemplate(ctx, validTemplate("standard")); err != nil {
			t.Fatalf("PutTemplate: %v", err)
		}
		d := store.Dataset{Name: "events", Template: "standard", DateColumn: "created_at"}
		if err := s.PutDataset(ctx, d); err != nil {
			t.Fatalf("PutDataset: %v", err)
		}
		got, err := s.GetDataset(ctx, "events")
		if err != nil {
			t.Fatalf("GetDataset: %v", err)
		}
		if got == nil || *got != d {
			t.Errorf("round-trip mismatch: %+v", got)
		}
	})

	t.Run("RejectDatasetUnknownTemplate", func(t *testing.T) {
		s := newStore(t)
		err := s.PutDataset(ctx, store.Dataset{Name: "events", Template: "ghost"})
		if err == nil {
			t.Fatal("expected error for nonexistent template")
		}
		if !strings.Contains(err.Error(), `nonexistent tier template "ghost"`) {
			t.Errorf("error %q should name the template", err)
		}
	})

	t.Run("ResolveProfile", func(t *testing.T) {
		s := newStore(t)

		// No stored default: built-in default applies.
		got, err := store.ResolveProfile(ctx, s, "")
		if err != nil {
			t.Fatalf("ResolveProfile: %v", err)
		}
		if got != tier.DefaultProfile() {
			t.Errorf("expected built-in default, got %+v", got)
		}

		// A stored default overrides the built-in.
		custom := tier.ThresholdProfile{Name: tier.DefaultProfileName, HotDays: 10, WarmDays: 20, ColdDays: 30}
		if err := s.PutProfile(ctx, custom); err != nil {
			t.Fatalf("PutProfile: %v", err)
		}
		got, err = store.ResolveProfile(ctx, s, "")
		if err != nil {
			t.Fatalf("ResolveProfile: %v", err)
		}
		if got != custom {
			t.Errorf("expected stored default, got %+v", got)
		}

		// Named profile wins over default.
		named := tier.ThresholdProfile{Name: "aggressive", HotDays: 30, WarmDays: 90, ColdDays: 180}
		if err := s.PutProfile(ctx, named); err != nil {
			t.Fatalf("PutProfile: %v", err)
		}
		got, err = store.ResolveProfile(ctx, s, "aggressive")
		if err != nil {
			t.Fatalf("ResolveProfile: %v", err)
		}
		if got != named {
			t.Errorf("expected named profile, got %+v", got)
		}
	})
}
