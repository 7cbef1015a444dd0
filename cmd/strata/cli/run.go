package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	auditsqlite "strata/internal/audit/sqlite"
	"strata/internal/engine"
	storagemem "strata/internal/storage/memory"
	storesqlite "strata/internal/store/sqlite"
	"strata/internal/tier"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single engine pass against the configured databases",
		Long: "Runs one evaluation, execution or sweep pass and exits. The stock\n" +
			"binary wires the built-in in-memory storage engine; deployments\n" +
			"embed the engine with their own storage integration instead.",
	}
	cmd.AddCommand(
		newRunEvaluateCmd(),
		newRunExecuteCmd(),
		newRunSweepCmd(),
	)
	return cmd
}

func newRunEvaluateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate [dataset]",
		Short: "Evaluate all policies, or only those targeting one dataset",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeStores, err := buildEngine(cmd)
			if err != nil {
				return err
			}
			defer closeStores()
			ctx := context.Background()
			var stats engine.EvalStats
			if len(args) == 1 {
				stats, err = eng.EvaluateDataset(ctx, args[0])
			} else {
				stats, err = eng.EvaluateAll(ctx)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Evaluated %d policies over %d partitions: %d eligible, %d ineligible\n",
				stats.Policies, stats.Partitions, stats.Eligible, stats.Ineligible)
			return nil
		},
	}
}

func newRunExecuteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "execute",
		Short: "Drain the pending queue once",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeStores, err := buildEngine(cmd)
			if err != nil {
				return err
			}
			defer closeStores()
			stats, err := eng.ExecuteNow(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Executed %d, failed %d, skipped %d, deferred %d\n",
				stats.Executed, stats.Failed, stats.Skipped, stats.Deferred)
			return nil
		},
	}
}

func newRunSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Merge consolidation sweep over all datasets",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeStores, err := buildEngine(cmd)
			if err != nil {
				return err
			}
			defer closeStores()
			merged, err := eng.SweepAll(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Merged %d partition pairs\n", merged)
			return nil
		},
	}
}

// buildEngine wires a one-shot engine over the configured databases and the
// in-memory storage engine. Known locations are collected from the stored
// templates so relocation targets resolve.
func buildEngine(cmd *cobra.Command) (*engine.Engine, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	cfgStore, err := storesqlite.NewStore(cfg.ConfigDB)
	if err != nil {
		return nil, nil, fmt.Errorf("open config database: %w", err)
	}
	queue, err := auditsqlite.NewStore(cfg.AuditDB)
	if err != nil {
		cfgStore.Close()
		return nil, nil, fmt.Errorf("open audit database: %w", err)
	}
	closeStores := func() {
		queue.Close()
		cfgStore.Close()
	}

	templates, err := cfgStore.ListTemplates(context.Background())
	if err != nil {
		closeStores()
		return nil, nil, err
	}
	var locations []string
	for _, t := range templates {
		for _, tr := range []tier.Tier{tier.Hot, tier.Warm, tier.Cold} {
			locations = append(locations, t.Def(tr).Location)
		}
	}
	storEng := storagemem.NewStore(locations...)

	window, err := cfg.Window()
	if err != nil {
		closeStores()
		return nil, nil, err
	}
	eng, err := engine.New(cfgStore, storEng, storEng, queue, engine.Options{
		QueueRetention:    cfg.Evaluation.QueueRetention.Std(),
		MinReevalInterval: cfg.Evaluation.MinReevalInterval.Std(),
		RecencyStaleness:  cfg.Evaluation.RecencyStaleness.Std(),
		MaxWorkers:        cfg.Execution.MaxWorkers,
		ActionTimeout:     cfg.Execution.ActionTimeout.Std(),
		Window:            window,
	})
	if err != nil {
		closeStores()
		return nil, nil, err
	}
	return eng, closeStores, nil
}
