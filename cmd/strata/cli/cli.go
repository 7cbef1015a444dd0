// Package cli implements the strata admin subcommands. They operate
// directly on the configuration and audit databases named by the daemon
// config file.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	auditsqlite "strata/internal/audit/sqlite"
	"strata/internal/config"
	storesqlite "strata/internal/store/sqlite"
)

// AddCommands wires the admin subcommands onto the root command.
func AddCommands(root *cobra.Command) {
	root.AddCommand(
		newPolicyCmd(),
		newProfileCmd(),
		newTemplateCmd(),
		newDatasetCmd(),
		newQueueCmd(),
		newAuditCmd(),
		newPlanCmd(),
		newRunCmd(),
	)
}

// loadConfig resolves the daemon config from the persistent --config flag.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// openStore opens the configuration database.
func openStore(cmd *cobra.Command) (*storesqlite.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	s, err := storesqlite.NewStore(cfg.ConfigDB)
	if err != nil {
		return nil, fmt.Errorf("open config database: %w", err)
	}
	return s, nil
}

// openAudit opens the audit database.
func openAudit(cmd *cobra.Command) (*auditsqlite.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	s, err := auditsqlite.NewStore(cfg.AuditDB)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	return s, nil
}

func outputFormat(cmd *cobra.Command) string {
	format, _ := cmd.Flags().GetString("output")
	if format != "json" {
		format = "table"
	}
	return format
}
