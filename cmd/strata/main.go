// Command strata runs the lifecycle tiering engine.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"strata/cmd/strata/cli"
	auditsqlite "strata/internal/audit/sqlite"
	"strata/internal/config"
	"strata/internal/engine"
	"strata/internal/metrics"
	"strata/internal/notify"
	storagemem "strata/internal/storage/memory"
	storesqlite "strata/internal/store/sqlite"
	"strata/internal/tier"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "strata",
		Short: "Lifecycle tiering engine for time-partitioned datasets",
	}
	rootCmd.PersistentFlags().String("config", "", "config file path (default: built-in defaults)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "output format: table or json")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tiering engine daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg := config.Default()
			if path != "" {
				var err error
				if cfg, err = config.Load(path); err != nil {
					return err
				}
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return serve(ctx, cfg, path)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(serveCmd, versionCmd)
	cli.AddCommands(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg config.Config, cfgPath string) error {
	logger := buildLogger(cfg.Logging)

	// Open config and audit stores.
	cfgStore, err := storesqlite.NewStore(cfg.ConfigDB)
	if err != nil {
		return fmt.Errorf("open config database: %w", err)
	}
	defer cfgStore.Close()
	queue, err := auditsqlite.NewStore(cfg.AuditDB)
	if err != nil {
		return fmt.Errorf("open audit database: %w", err)
	}
	defer queue.Close()

	// Storage engine. The stock binary ships the in-memory engine for
	// local experiments; deployments embed the engine with their own
	// storage integration. Known locations come from the stored templates
	// so relocation targets resolve.
	templates, err := cfgStore.ListTemplates(ctx)
	if err != nil {
		return err
	}
	var locations []string
	for _, t := range templates {
		for _, tr := range []tier.Tier{tier.Hot, tier.Warm, tier.Cold} {
			locations = append(locations, t.Def(tr).Location)
		}
	}
	storEng := storagemem.NewStore(locations...)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	alerter := notify.NewAlerter(logger, notify.AlerterOptions{
		Window:      cfg.Alerting.Window.Std(),
		Threshold:   cfg.Alerting.Threshold,
		MinInterval: cfg.Alerting.MinInterval.Std(),
	})

	window, err := cfg.Window()
	if err != nil {
		return err
	}
	eng, err := engine.New(cfgStore, storEng, storEng, queue, engine.Options{
		EvaluateSchedule:  cfg.Schedules.Evaluate,
		ExecuteSchedule:   cfg.Schedules.Execute,
		SweepSchedule:     cfg.Schedules.Sweep,
		PurgeSchedule:     cfg.Schedules.Purge,
		AutoExecute:       cfg.Execution.AutoExecute,
		QueueRetention:    cfg.Evaluation.QueueRetention.Std(),
		MinReevalInterval: cfg.Evaluation.MinReevalInterval.Std(),
		RecencyStaleness:  cfg.Evaluation.RecencyStaleness.Std(),
		MaxWorkers:        cfg.Execution.MaxWorkers,
		ActionTimeout:     cfg.Execution.ActionTimeout.Std(),
		Window:            window,
		Logger:            logger,
		Metrics:           m,
		Alerter:           alerter,
	})
	if err != nil {
		return err
	}

	logger.Info("starting engine",
		"config_db", cfg.ConfigDB,
		"audit_db", cfg.AuditDB,
		"auto_execute", cfg.Execution.AutoExecute)
	if err := eng.Start(ctx); err != nil {
		return err
	}

	// Watch the config file so schedule edits apply without a restart.
	var watcher *config.Watcher
	if cfgPath != "" {
		watcher = config.NewWatcher(cfgPath, func(next config.Config) {
			err := eng.ApplySchedules(ctx,
				next.Schedules.Evaluate, next.Schedules.Execute,
				next.Schedules.Sweep, next.Schedules.Purge)
			if err != nil {
				logger.Error("apply reloaded schedules", "error", err)
			}
		}, logger)
		if err := watcher.Start(); err != nil {
			logger.Warn("config watch unavailable", "error", err)
			watcher = nil
		}
	}

	// Metrics endpoint.
	var metricsSrv *http.Server
	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		go func() {
			logger.Info("metrics listening", "addr", cfg.Metrics.Listen)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	// Wait for shutdown signal.
	<-ctx.Done()

	logger.Info("shutting down")
	if watcher != nil {
		watcher.Stop()
	}
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}
	if err := eng.Stop(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// buildLogger creates the base logger from the logging config.
func buildLogger(cfg config.Logging) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
