package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"strata/internal/tier"
)

func newTemplateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "template",
		Aliases: []string{"tmpl"},
		Short:   "Manage tier templates",
	}
	cmd.AddCommand(
		newTemplateListCmd(),
		newTemplateGetCmd(),
		newTemplatePutCmd(),
		newTemplateDeleteCmd(),
	)
	return cmd
}

func newTemplateListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tier templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			templates, err := s.ListTemplates(context.Background())
			if err != nil {
				return err
			}
			p := newPrinter(outputFormat(cmd))
			if outputFormat(cmd) == "json" {
				return p.json(templates)
			}
			var rows [][]string
			for _, t := range templates {
				rows = append(rows, []string{
					t.Name,
					formatDef(t.Hot),
					formatDef(t.Warm),
					formatDef(t.Cold),
				})
			}
			p.table([]string{"NAME", "HOT", "WARM", "COLD"}, rows)
			return nil
		},
	}
}

func formatDef(d tier.Def) string {
	return fmt.Sprintf("%dd/%s/%s/%s", d.MaxAgeDays, d.Granularity, d.Location, d.Codec)
}

func newTemplateGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Get tier template details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			t, err := s.GetTemplate(context.Background(), args[0])
			if err != nil {
				return err
			}
			if t == nil {
				return fmt.Errorf("tier template %q not found", args[0])
			}
			p := newPrinter(outputFormat(cmd))
			if outputFormat(cmd) == "json" {
				return p.json(t)
			}
			p.kv([][2]string{
				{"Name", t.Name},
				{"Hot", formatDef(t.Hot)},
				{"Warm", formatDef(t.Warm)},
				{"Cold", formatDef(t.Cold)},
			})
			return nil
		},
	}
}

func newTemplatePutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put",
		Short: "Create or replace a tier template from a JSON document",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			var data []byte
			var err error
			if path == "-" {
				data, err = io.ReadAll(os.Stdin)
			} else {
				data, err = os.ReadFile(path)
			}
			if err != nil {
				return err
			}
			var t tier.Template
			if err := json.Unmarshal(data, &t); err != nil {
				return fmt.Errorf("parse template: %w", err)
			}
			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.PutTemplate(context.Background(), t); err != nil {
				return err
			}
			fmt.Printf("Stored tier template %q\n", t.Name)
			return nil
		},
	}
	cmd.Flags().String("file", "-", "template JSON file, or - for stdin")
	return cmd
}

func newTemplateDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a tier template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.DeleteTemplate(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted tier template %q\n", args[0])
			return nil
		},
	}
}
