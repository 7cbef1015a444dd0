package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"strata/internal/planner"
	"strata/internal/tier"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <dataset>",
		Short: "Compute the partition layout for a dataset's observed date range",
		Long: "Lays out tier boundaries for the dataset under its bound template.\n" +
			"The output is a report; materializing the layout is done by the\n" +
			"schema-creation side, or through the engine's plan API.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := dateRangeFromFlags(cmd)
			if err != nil {
				return err
			}

			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := context.Background()
			ds, err := s.GetDataset(ctx, args[0])
			if err != nil {
				return err
			}
			if ds == nil {
				return fmt.Errorf("dataset %q not found", args[0])
			}
			tmpl, err := s.GetTemplate(ctx, ds.Template)
			if err != nil {
				return err
			}
			if tmpl == nil {
				return fmt.Errorf("tier template %q not found", ds.Template)
			}

			plan, err := planner.PlanBoundaries(ds.Name, from, to, *tmpl, time.Now())
			if err != nil {
				return err
			}
			p := newPrinter(outputFormat(cmd))
			if outputFormat(cmd) == "json" {
				return p.json(plan)
			}
			var rows [][]string
			for _, b := range plan.Boundaries {
				upper := formatDate(b.Upper)
				if b.Open {
					upper += " (open)"
				}
				rows = append(rows, []string{
					formatDate(b.Lower), upper,
					b.Tier.String(), b.Granularity.String(),
					b.Location, string(b.Codec),
				})
			}
			p.table([]string{"LOWER", "UPPER", "TIER", "GRANULARITY", "LOCATION", "CODEC"}, rows)
			fmt.Printf("\n%d partitions (%d hot, %d warm, %d cold)\n",
				plan.Total(), plan.PerTier[tier.Hot], plan.PerTier[tier.Warm], plan.PerTier[tier.Cold])
			return nil
		},
	}
	cmd.Flags().String("from", "", "oldest observed date, YYYY-MM-DD (required)")
	cmd.Flags().String("to", "", "newest observed date, YYYY-MM-DD (required)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func dateRangeFromFlags(cmd *cobra.Command) (from, to time.Time, err error) {
	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")
	if from, err = time.Parse("2006-01-02", fromStr); err != nil {
		return from, to, fmt.Errorf("parse --from: %w", err)
	}
	if to, err = time.Parse("2006-01-02", toStr); err != nil {
		return from, to, fmt.Errorf("parse --to: %w", err)
	}
	return from, to, nil
}
