package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"strata/internal/policy"
	"strata/internal/store"
)

func newPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "policy",
		Aliases: []string{"pol"},
		Short:   "Manage lifecycle policies",
	}
	cmd.AddCommand(
		newPolicyListCmd(),
		newPolicyGetCmd(),
		newPolicyPutCmd(),
		newPolicyDeleteCmd(),
		newPolicyPauseCmd(true),
		newPolicyPauseCmd(false),
	)
	return cmd
}

func newPolicyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all lifecycle policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			policies, err := s.ListPolicies(context.Background())
			if err != nil {
				return err
			}
			p := newPrinter(outputFormat(cmd))
			if outputFormat(cmd) == "json" {
				return p.json(policies)
			}
			var rows [][]string
			for _, pol := range policies {
				state := "enabled"
				if !pol.Enabled {
					state = "disabled"
				} else if pol.Paused {
					state = "paused"
				}
				rows = append(rows, []string{
					pol.ID.String(), pol.Name, pol.Dataset,
					string(pol.Action),
					fmt.Sprintf("%d", pol.Priority),
					state,
				})
			}
			p.table([]string{"ID", "NAME", "DATASET", "ACTION", "PRIORITY", "STATE"}, rows)
			return nil
		},
	}
}

func newPolicyGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name-or-id>",
		Short: "Get lifecycle policy details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			pol, err := findPolicy(context.Background(), s, args[0])
			if err != nil {
				return err
			}
			p := newPrinter(outputFormat(cmd))
			if outputFormat(cmd) == "json" {
				return p.json(pol)
			}
			conditions, _ := json.Marshal(pol.Conditions)
			params, _ := json.Marshal(pol.Params)
			p.kv([][2]string{
				{"ID", pol.ID.String()},
				{"Name", pol.Name},
				{"Dataset", pol.Dataset},
				{"Action", string(pol.Action)},
				{"Conditions", string(conditions)},
				{"Params", string(params)},
				{"Priority", fmt.Sprintf("%d", pol.Priority)},
				{"Enabled", formatBool(pol.Enabled)},
				{"Paused", formatBool(pol.Paused)},
				{"Profile", pol.Profile},
				{"Updated", formatTime(pol.UpdatedAt)},
			})
			return nil
		},
	}
}

func newPolicyPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put",
		Short: "Create or update a policy from a JSON document",
		Long: "Reads a policy as JSON from --file (or stdin with -). A missing id\n" +
			"creates a new policy; an existing id updates it. Updating a policy\n" +
			"also clears any terminal-failure block it carries.",
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
			var pol policy.Policy
			if err := json.Unmarshal(data, &pol); err != nil {
				return fmt.Errorf("parse policy: %w", err)
			}
			if pol.ID == uuid.Nil {
				pol.ID = uuid.Must(uuid.NewV7())
			}
			pol.UpdatedAt = time.Now().UTC()

			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.PutPolicy(context.Background(), pol); err != nil {
				return err
			}
			fmt.Printf("Stored policy %q (%s)\n", pol.Name, pol.ID)
			return nil
		},
	}
	cmd.Flags().String("file", "-", "policy JSON file, or - for stdin")
	return cmd
}

func newPolicyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name-or-id>",
		Short: "Delete a lifecycle policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			pol, err := findPolicy(context.Background(), s, args[0])
			if err != nil {
				return err
			}
			if err := s.DeletePolicy(context.Background(), pol.ID); err != nil {
				return err
			}
			fmt.Printf("Deleted policy %q (%s)\n", pol.Name, pol.ID)
			return nil
		},
	}
}

// newPolicyPauseCmd builds both pause and resume. Pausing leaves UpdatedAt
// untouched so it cannot clear a terminal-failure block.
func newPolicyPauseCmd(pause bool) *cobra.Command {
	use, short, verb := "pause", "Pause a policy without losing its state", "Paused"
	if !pause {
		use, short, verb = "resume", "Resume a paused policy", "Resumed"
	}
	return &cobra.Command{
		Use:   use + " <name-or-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			pol, err := findPolicy(context.Background(), s, args[0])
			if err != nil {
				return err
			}
			pol.Paused = pause
			if err := s.PutPolicy(context.Background(), *pol); err != nil {
				return err
			}
			fmt.Printf("%s policy %q (%s)\n", verb, pol.Name, pol.ID)
			return nil
		},
	}
}

// findPolicy resolves a policy by id or unique name.
func findPolicy(ctx context.Context, s store.Store, ref string) (*policy.Policy, error) {
	if id, err := uuid.Parse(ref); err == nil {
		pol, err := s.GetPolicy(ctx, id)
		if err != nil {
			return nil, err
		}
		if pol != nil {
			return pol, nil
		}
	}
	policies, err := s.ListPolicies(ctx)
	if err != nil {
		return nil, err
	}
	var match *policy.Policy
	for i := range policies {
		if policies[i].Name == ref {
			if match != nil {
				return nil, fmt.Errorf("policy name %q is ambiguous, use the id", ref)
			}
			match = &policies[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("policy %q not found", ref)
	}
	return match, nil
}
