package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"strata/internal/store"
)

func newDatasetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dataset",
		Aliases: []string{"ds"},
		Short:   "Manage datasets under lifecycle management",
	}
	cmd.AddCommand(
		newDatasetListCmd(),
		newDatasetPutCmd(),
		newDatasetDeleteCmd(),
	)
	return cmd
}

func newDatasetListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered datasets",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			datasets, err := s.ListDatasets(context.Background())
			if err != nil {
				return err
			}
			p := newPrinter(outputFormat(cmd))
			if outputFormat(cmd) == "json" {
				return p.json(datasets)
			}
			var rows [][]string
			for _, ds := range datasets {
				rows = append(rows, []string{ds.Name, ds.Template, ds.DateColumn})
			}
			p.table([]string{"NAME", "TEMPLATE", "DATE COLUMN"}, rows)
			return nil
		},
	}
}

func newDatasetPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put",
		Short: "Register a dataset or update its template binding",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			template, _ := cmd.Flags().GetString("template")
			dateColumn, _ := cmd.Flags().GetString("date-column")

			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			ds := store.Dataset{Name: name, Template: template, DateColumn: dateColumn}
			if err := s.PutDataset(context.Background(), ds); err != nil {
				return err
			}
			fmt.Printf("Registered dataset %q with template %q\n", name, template)
			return nil
		},
	}
	cmd.Flags().String("name", "", "dataset name (required)")
	cmd.Flags().String("template", "", "tier template name (required)")
	cmd.Flags().String("date-column", "", "partitioning date column, informational")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

func newDatasetDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a dataset from lifecycle management",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.DeleteDataset(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed dataset %q\n", args[0])
			return nil
		},
	}
}
