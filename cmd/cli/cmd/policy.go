// Package cmd - policy commands
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/honeybadger-technologies/finopsguard/core/policy"
)

var policyFromFiles []string

// policyCmd groups the policy subcommands.
var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Validate and inspect policy definitions",
	Long: `Work with policy definition files before uploading them to a server.

The registry here lives in memory for the duration of one invocation;
nothing persists. Stored policies are managed through the server API.

Examples:
  finopsguard policy list --from policies.json
  finopsguard policy create my-policy.json
  finopsguard policy delete no_large_dev --from policies.json`,
}

func init() {
	policyCmd.PersistentFlags().StringArrayVar(&policyFromFiles, "from", nil, "policy definition file to preload (repeatable)")

	policyCmd.AddCommand(policyListCmd)
	policyCmd.AddCommand(policyCreateCmd)
	policyCmd.AddCommand(policyDeleteCmd)
}

// seededRegistry loads every --from file into a fresh registry.
func seededRegistry() (*policy.Registry, error) {
	registry := policy.NewRegistry(nil, nil)
	for _, path := range policyFromFiles {
		policies, err := loadPolicyFile(path)
		if err != nil {
			return nil, err
		}
		if err := registry.Load(policies); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return registry, nil
}

// policyListCmd lists loaded policy definitions.
var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded policy definitions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := seededRegistry()
		if err != nil {
			return err
		}

		policies := registry.List()
		if len(policies) == 0 {
			fmt.Println("No policies loaded. Use --from to load definition files.")
			return nil
		}

		fmt.Println("┌──────────────────────────────┬────────────┬──────────────┬─────────┐")
		fmt.Println("│ ID                           │ TYPE       │ ON VIOLATION │ ENABLED │")
		fmt.Println("├──────────────────────────────┼────────────┼──────────────┼─────────┤")
		for _, pol := range policies {
			kind := "expression"
			if pol.Budget != nil {
				kind = "budget"
			}
			fmt.Printf("│ %-28s │ %-10s │ %-12s │ %-7t │\n",
				truncate(pol.ID, 28), kind, pol.OnViolation, pol.Enabled)
		}
		fmt.Println("└──────────────────────────────┴────────────┴──────────────┴─────────┘")
		return nil
	},
}

// policyCreateCmd validates definitions and adds them to the local registry.
var policyCreateCmd = &cobra.Command{
	Use:   "create <file.json>",
	Short: "Validate a policy definition file",
	Long: `Parse a policy definition file and run it through the same
validation the server applies on create. Prints the normalized policy
on success.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := seededRegistry()
		if err != nil {
			return err
		}

		policies, err := loadPolicyFile(args[0])
		if err != nil {
			return err
		}

		for _, pol := range policies {
			created, err := registry.Create(cmd.Context(), pol)
			if err != nil {
				return fmt.Errorf("policy %s: %w", pol.ID, err)
			}
			out, err := json.MarshalIndent(created, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
		}
		fmt.Printf("%d policy definition(s) valid\n", len(policies))
		return nil
	},
}

// policyDeleteCmd removes a policy from the loaded set.
var policyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a policy from the loaded set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := seededRegistry()
		if err != nil {
			return err
		}

		if err := registry.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted %s (%d remain)\n", args[0], len(registry.List()))
		return nil
	},
}
