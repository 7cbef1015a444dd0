package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the evaluation queue",
	}
	cmd.AddCommand(
		newQueueListCmd(),
		newQueuePurgeCmd(),
	)
	return cmd
}

func newQueueListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending queue entries in execution order",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openAudit(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			entries, err := s.ListPending(context.Background())
			if err != nil {
				return err
			}
			p := newPrinter(outputFormat(cmd))
			if outputFormat(cmd) == "json" {
				return p.json(entries)
			}
			var rows [][]string
			for _, e := range entries {
				rows = append(rows, []string{
					e.ID.String(), e.Dataset,
					e.PolicyID.String(), e.PartitionID.String(),
					fmt.Sprintf("%d", e.Priority),
					fmt.Sprintf("%d", e.AgeDays),
					formatTime(e.EvaluatedAt),
				})
			}
			p.table([]string{"ID", "DATASET", "POLICY", "PARTITION", "PRIORITY", "AGE (d)", "EVALUATED"}, rows)
			return nil
		},
	}
}

func newQueuePurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove consumed queue entries older than --keep",
		RunE: func(cmd *cobra.Command, args []string) error {
			keep, _ := cmd.Flags().GetDuration("keep")
			s, err := openAudit(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			n, err := s.PurgeQueue(context.Background(), time.Now().Add(-keep))
			if err != nil {
				return err
			}
			fmt.Printf("Purged %d queue entries\n", n)
			return nil
		},
	}
	cmd.Flags().Duration("keep", 7*24*time.Hour, "retention for consumed entries")
	return cmd
}
