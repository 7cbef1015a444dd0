package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"strata/internal/audit"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the execution log",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := logFilterFromFlags(cmd)
			if err != nil {
				return err
			}
			s, err := openAudit(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			entries, err := s.QueryLog(context.Background(), f)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}
			p := newPrinter(outputFormat(cmd))
			if outputFormat(cmd) == "json" {
				return p.json(entries)
			}
			var rows [][]string
			for _, e := range entries {
				detail := ""
				if e.Error != "" {
					detail = fmt.Sprintf("[%s] %s", e.ErrorKind, e.Error)
				}
				rows = append(rows, []string{
					formatTime(e.StartedAt),
					e.Dataset, string(e.Action), string(e.Status),
					e.PartitionID.String(),
					formatBytes(e.BeforeBytes), formatBytes(e.AfterBytes),
					e.Duration.Round(time.Millisecond).String(),
					detail,
				})
			}
			p.table([]string{"STARTED", "DATASET", "ACTION", "STATUS", "PARTITION", "BEFORE", "AFTER", "DURATION", "ERROR"}, rows)
			return nil
		},
	}
	cmd.Flags().String("dataset", "", "filter by dataset")
	cmd.Flags().String("policy", "", "filter by policy id")
	cmd.Flags().String("status", "", "filter by status (RUNNING, SUCCESS, FAILED)")
	cmd.Flags().String("since", "", "only entries started at or after this RFC 3339 time")
	cmd.Flags().String("until", "", "only entries started before this RFC 3339 time")
	cmd.Flags().Int("limit", 50, "maximum entries to show, 0 for all")
	return cmd
}

func logFilterFromFlags(cmd *cobra.Command) (audit.LogFilter, error) {
	var f audit.LogFilter
	f.Dataset, _ = cmd.Flags().GetString("dataset")
	if v, _ := cmd.Flags().GetString("policy"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, fmt.Errorf("parse --policy: %w", err)
		}
		f.PolicyID = &id
	}
	if v, _ := cmd.Flags().GetString("status"); v != "" {
		f.Status = audit.LogStatus(v)
	}
	if v, _ := cmd.Flags().GetString("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("parse --since: %w", err)
		}
		f.Since = t
	}
	if v, _ := cmd.Flags().GetString("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("parse --until: %w", err)
		}
		f.Until = t
	}
	return f, nil
}
