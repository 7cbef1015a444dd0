package tier

import (
	"strings"
	"testing"
	"time"
)

func TestThresholdProfileValidate(t *testing.T) {
	tests := []struct {
		name    string
		profile ThresholdProfile
		wantErr []string
	}{
		{
			name:    "valid",
			profile: ThresholdProfile{Name: "p", HotDays: 30, WarmDays: 90, ColdDays: 180},
		},
		{
			name:    "default valid",
			profile: DefaultProfile(),
		},
		{
			name:    "hot not less than warm",
			profile: ThresholdProfile{Name: "p", HotDays: 90, WarmDays: 90, ColdDays: 180},
			wantErr: []string{"warmDays (90) must exceed hotDays (90)"},
		},
		{
			name:    "warm not less than cold",
			profile: ThresholdProfile{Name: "p", HotDays: 30, WarmDays: 180, ColdDays: 90},
			wantErr: []string{"coldDays (90) must exceed warmDays (180)"},
		},
		{
			name:    "missing name and non-positive hot",
			profile: ThresholdProfile{HotDays: 0, WarmDays: 90, ColdDays: 180},
			wantErr: []string{"profile name is required", "hotDays must be positive"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q missing %q", err, want)
				}
			}
		})
	}
}

func TestThresholdProfileClassify(t *testing.T) {
	p := ThresholdProfile{Name: "p", HotDays: 30, WarmDays: 90, ColdDays: 180}

	tests := []struct {
		age  int
		want Tier
	}{
		{0, Hot},
		{29, Hot},
		{30, Warm}, // boundary age resolves to the next tier
		{89, Warm},
		{90, Cold},
		{180, Cold},
		{10000, Cold},
	}

	for _, tt := range tests {
		if got := p.Classify(tt.age); got != tt.want {
			t.Errorf("Classify(%d) = %s, want %s", tt.age, got, tt.want)
		}
	}
}

func TestClassifyDeterministic(t *testing.T) {
	p := DefaultProfile()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	boundary := now.AddDate(0, 0, -100)

	first := Classify(p, boundary, nil, now)
	for range 10 {
		got := Classify(p, boundary, nil, now)
		if got != first {
			t.Fatalf("classification not deterministic: %+v vs %+v", got, first)
		}
	}
	if first.Temperature != Warm {
		t.Errorf("100 day old partition under default profile = %s, want WARM", first.Temperature)
	}
}

func TestClassifyAccessPrecedence(t *testing.T) {
	p := ThresholdProfile{Name: "p", HotDays: 30, WarmDays: 90, ColdDays: 180}
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// Boundary is ancient (COLD by age) but the partition was read yesterday.
	boundary := now.AddDate(-2, 0, 0)
	access := &Access{LastRead: now.AddDate(0, 0, -1), RefreshedAt: now}

	got := Classify(p, boundary, access, now)
	if got.Temperature != Hot {
		t.Errorf("Temperature = %s, want HOT (access recency wins)", got.Temperature)
	}
	if got.Basis != BasisAccess {
		t.Errorf("Basis = %s, want %s", got.Basis, BasisAccess)
	}
}

func TestClassifyUnparseableBoundary(t *testing.T) {
	p := DefaultProfile()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	got := Classify(p, time.Time{}, nil, now)
	if got.Temperature != Cold {
		t.Errorf("Temperature = %s, want COLD (fail-safe)", got.Temperature)
	}
	if got.Warning == "" {
		t.Error("expected a warning for unparseable boundary")
	}
}

func TestGranularityFloorAdvance(t *testing.T) {
	tests := []struct {
		name string
		g    Granularity
		in   time.Time
		flo  time.Time
		adv  time.Time
	}{
		{
			name: "monthly mid-month",
			g:    Monthly,
			in:   time.Date(2025, 11, 10, 13, 0, 0, 0, time.UTC),
			flo:  time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
			adv:  time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "yearly",
			g:    Yearly,
			in:   time.Date(2022, 11, 10, 0, 0, 0, 0, time.UTC),
			flo:  time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
			adv:  time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "weekly floors to monday",
			g:    Weekly,
			in:   time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC), // Thursday
			flo:  time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), // Monday
			adv:  time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "daily",
			g:    Daily,
			in:   time.Date(2025, 6, 5, 23, 59, 0, 0, time.UTC),
			flo:  time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC),
			adv:  time.Date(2025, 6, 6, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.g.Floor(tt.in); !got.Equal(tt.flo) {
				t.Errorf("Floor = %v, want %v", got, tt.flo)
			}
			if got := tt.g.Advance(tt.flo, 1); !got.Equal(tt.adv) {
				t.Errorf("Advance = %v, want %v", got, tt.adv)
			}
		})
	}
}

func TestTemplateValidate(t *testing.T) {
	valid := Template{
		Name: "standard",
		Hot:  Def{MaxAgeDays: 365, Granularity: Monthly, Location: "ssd", Codec: CodecLZ4},
		Warm: Def{MaxAgeDays: 1095, Granularity: Yearly, Location: "hdd", Codec: CodecZstd},
		Cold: Def{MaxAgeDays: 2555, Granularity: Yearly, Location: "archive", Codec: CodecZstd},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid template rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Template)
		wantErr string
	}{
		{
			name:    "missing warm location",
			mutate:  func(tm *Template) { tm.Warm.Location = "" },
			wantErr: "warm tier: location is required",
		},
		{
			name:    "missing cold codec",
			mutate:  func(tm *Template) { tm.Cold.Codec = "" },
			wantErr: "cold tier: codec is required",
		},
		{
			name:    "unknown hot codec",
			mutate:  func(tm *Template) { tm.Hot.Codec = "snappy" },
			wantErr: `hot tier: unknown codec "snappy"`,
		},
		{
			name:    "non-monotonic warm threshold",
			mutate:  func(tm *Template) { tm.Warm.MaxAgeDays = 365 },
			wantErr: "warm tier: maxAgeDays (365) must exceed hot threshold (365)",
		},
		{
			name:    "non-monotonic cold threshold",
			mutate:  func(tm *Template) { tm.Cold.MaxAgeDays = 100 },
			wantErr: "cold tier: maxAgeDays (100) must exceed warm threshold (1095)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm := valid
			tt.mutate(&tm)
			err := tm.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q missing %q", err, tt.wantErr)
			}
		})
	}
}

func TestTierForLocation(t *testing.T) {
	tm := Template{
		Name: "standard",
		Hot:  Def{MaxAgeDays: 365, Granularity: Monthly, Location: "ssd", Codec: CodecLZ4},
		Warm: Def{MaxAgeDays: 1095, Granularity: Yearly, Location: "hdd", Codec: CodecZstd},
		Cold: Def{MaxAgeDays: 2555, Granularity: Yearly, Location: "archive", Codec: CodecZstd},
	}
	if tr, ok := tm.TierForLocation("hdd"); !ok || tr != Warm {
		t.Errorf("TierForLocation(hdd) = %v, %v", tr, ok)
	}
	if _, ok := tm.TierForLocation("tape"); ok {
		t.Error("unknown location should not resolve")
	}
}
