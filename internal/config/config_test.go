package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
config_db: /var/lib/strata/config.db
audit_db: /var/lib/strata/audit.db
schedules:
  evaluate: "30 * * * *"
execution:
  auto_execute: false
  max_workers: 8
  action_timeout: 2h
  window_start: "22:00"
  window_end: "06:00"
evaluation:
  min_reeval_interval: 48h
logging:
  level: debug
  format: json
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.ConfigDB != "/var/lib/strata/config.db" {
		t.Errorf("config_db not applied: %q", cfg.ConfigDB)
	}
	if cfg.Schedules.Evaluate != "30 * * * *" {
		t.Errorf("evaluate schedule not applied: %q", cfg.Schedules.Evaluate)
	}
	// Untouched settings keep their defaults.
	if cfg.Schedules.Execute != "*/15 * * * *" {
		t.Errorf("execute schedule lost its default: %q", cfg.Schedules.Execute)
	}
	if cfg.Execution.AutoExecute {
		t.Error("auto_execute not applied")
	}
	if cfg.Execution.MaxWorkers != 8 || cfg.Execution.ActionTimeout.Std() != 2*time.Hour {
		t.Errorf("execution tuning not applied: %+v", cfg.Execution)
	}
	if cfg.Evaluation.MinReevalInterval.Std() != 48*time.Hour {
		t.Errorf("min_reeval_interval not applied: %s", cfg.Evaluation.MinReevalInterval.Std())
	}

	w, err := cfg.Window()
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if w == nil {
		t.Fatal("expected a parsed execution window")
	}
	if !w.Contains(time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)) {
		t.Error("23:00 should fall inside 22:00-06:00")
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	if _, err := Parse([]byte("max_wrokers: 8\n")); err == nil {
		t.Error("expected unknown key to be rejected")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"missing config db", func(c *Config) { c.ConfigDB = "" }, true},
		{"half window", func(c *Config) { c.Execution.WindowStart = "22:00" }, true},
		{"bad window", func(c *Config) {
			c.Execution.WindowStart = "25:00"
			c.Execution.WindowEnd = "06:00"
		}, true},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"negative workers", func(c *Config) { c.Execution.MaxWorkers = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strata.yaml")
	if err := os.WriteFile(path, []byte("config_db: a.db\naudit_db: b.db\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	changes := make(chan Config, 1)
	w := NewWatcher(path, func(c Config) { changes <- c }, nil)
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("config_db: c.db\naudit_db: b.db\n"), 0644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-changes:
		if cfg.ConfigDB != "c.db" {
			t.Errorf("expected reloaded config, got %q", cfg.ConfigDB)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
}

func TestWatcherKeepsLastGoodConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strata.yaml")
	if err := os.WriteFile(path, []byte("config_db: a.db\naudit_db: b.db\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	changes := make(chan Config, 1)
	w := NewWatcher(path, func(c Config) { changes <- c }, nil)
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	// Broken YAML must not reach the callback.
	if err := os.WriteFile(path, []byte("config_db: [broken\n"), 0644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-changes:
		t.Errorf("unexpected reload with broken file: %+v", cfg)
	case <-time.After(500 * time.Millisecond):
	}
}
