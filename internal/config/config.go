// Package config loads the daemon's YAML configuration file and watches it
// for changes. Policies, templates, profiles and datasets live in the
// config database, not here; this file covers process-level settings only.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"strata/internal/executor"
)

// Config is the daemon configuration.
type Config struct {
	// ConfigDB is the SQLite database holding policies, templates,
	// threshold profiles and datasets.
	ConfigDB string `yaml:"config_db"`

	// AuditDB is the SQLite database holding the queue and execution log.
	AuditDB string `yaml:"audit_db"`

	Schedules  Schedules  `yaml:"schedules"`
	Execution  Execution  `yaml:"execution"`
	Evaluation Evaluation `yaml:"evaluation"`
	Alerting   Alerting   `yaml:"alerting"`
	Metrics    Metrics    `yaml:"metrics"`
	Logging    Logging    `yaml:"logging"`
}

// Schedules holds the cron expressions for the periodic jobs.
type Schedules struct {
	Evaluate string `yaml:"evaluate"`
	Execute  string `yaml:"execute"`
	Sweep    string `yaml:"sweep"`
	Purge    string `yaml:"purge"`
}

// Execution tunes the worker pool.
type Execution struct {
	AutoExecute   bool     `yaml:"auto_execute"`
	MaxWorkers    int      `yaml:"max_workers"`
	ActionTimeout Duration `yaml:"action_timeout"`

	// WindowStart/WindowEnd restrict dispatch to a daily UTC window,
	// "HH:MM". Both empty means no restriction.
	WindowStart string `yaml:"window_start"`
	WindowEnd   string `yaml:"window_end"`
}

// Evaluation tunes the evaluation pass.
type Evaluation struct {
	MinReevalInterval Duration `yaml:"min_reeval_interval"`
	RecencyStaleness  Duration `yaml:"recency_staleness"`
	QueueRetention    Duration `yaml:"queue_retention"`
}

// Alerting tunes the operator alerter.
type Alerting struct {
	Window      Duration `yaml:"window"`
	Threshold   int      `yaml:"threshold"`
	MinInterval Duration `yaml:"min_interval"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Listen string `yaml:"listen"` // e.g. ":9090"; empty disables
}

// Logging configures log output.
type Logging struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ConfigDB: "strata.db",
		AuditDB:  "strata-audit.db",
		Schedules: Schedules{
			Evaluate: "0 * * * *",
			Execute:  "*/15 * * * *",
			Sweep:    "30 2 * * *",
			Purge:    "0 3 * * *",
		},
		Execution: Execution{
			AutoExecute: true,
			MaxWorkers:  4,
		},
		Logging: Logging{Level: "info", Format: "text"},
	}
}

// Load reads and validates a config file. Settings not present in the file
// keep their defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults. Unknown keys are an error: a
// typoed setting must not silently fall back to its default.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.ConfigDB == "" {
		return fmt.Errorf("config_db is required")
	}
	if c.AuditDB == "" {
		return fmt.Errorf("audit_db is required")
	}
	if (c.Execution.WindowStart == "") != (c.Execution.WindowEnd == "") {
		return fmt.Errorf("execution window needs both window_start and window_end")
	}
	if _, err := c.Window(); err != nil {
		return err
	}
	if c.Execution.MaxWorkers < 0 {
		return fmt.Errorf("max_workers must not be negative")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

// Window returns the configured execution window, or nil when unset.
func (c Config) Window() (*executor.Window, error) {
	if c.Execution.WindowStart == "" && c.Execution.WindowEnd == "" {
		return nil, nil
	}
	w, err := executor.ParseWindow(c.Execution.WindowStart, c.Execution.WindowEnd)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
