package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"strata/internal/tier"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "profile",
		Aliases: []string{"prof"},
		Short:   "Manage threshold profiles",
	}
	cmd.AddCommand(
		newProfileListCmd(),
		newProfilePutCmd(),
		newProfileDeleteCmd(),
	)
	return cmd
}

func newProfileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List threshold profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			profiles, err := s.ListProfiles(context.Background())
			if err != nil {
				return err
			}
			p := newPrinter(outputFormat(cmd))
			if outputFormat(cmd) == "json" {
				return p.json(profiles)
			}
			var rows [][]string
			for _, prof := range profiles {
				rows = append(rows, []string{
					prof.Name,
					fmt.Sprintf("%d", prof.HotDays),
					fmt.Sprintf("%d", prof.WarmDays),
					fmt.Sprintf("%d", prof.ColdDays),
				})
			}
			p.table([]string{"NAME", "HOT (d)", "WARM (d)", "COLD (d)"}, rows)
			return nil
		},
	}
}

func newProfilePutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put",
		Short: "Create or replace a threshold profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			hot, _ := cmd.Flags().GetInt("hot")
			warm, _ := cmd.Flags().GetInt("warm")
			cold, _ := cmd.Flags().GetInt("cold")

			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			prof := tier.ThresholdProfile{Name: name, HotDays: hot, WarmDays: warm, ColdDays: cold}
			if err := s.PutProfile(context.Background(), prof); err != nil {
				return err
			}
			fmt.Printf("Stored threshold profile %q\n", name)
			return nil
		},
	}
	cmd.Flags().String("name", "", "profile name (required)")
	cmd.Flags().Int("hot", 0, "hot threshold in days (required)")
	cmd.Flags().Int("warm", 0, "warm threshold in days (required)")
	cmd.Flags().Int("cold", 0, "cold threshold in days (required)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("hot")
	_ = cmd.MarkFlagRequired("warm")
	_ = cmd.MarkFlagRequired("cold")
	return cmd
}

func newProfileDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a threshold profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.DeleteProfile(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted threshold profile %q\n", args[0])
			return nil
		},
	}
}
