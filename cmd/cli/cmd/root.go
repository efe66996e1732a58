// Package cmd provides the CLI commands for finopsguard.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/honeybadger-technologies/finopsguard/internal/logging"
)

// Build information, stamped via -ldflags "-X ...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var verbose bool

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "finopsguard",
	Short: "Cost impact checks for infrastructure as code",
	Long: `finopsguard estimates the cost impact of Terraform configurations
and evaluates them against budgets and policies before they deploy.

The CLI runs fully in-process with static catalog pricing, so it works
offline and inside CI.

Examples:
  finopsguard check main.tf
  finopsguard check --environment prod --budget 500 main.tf
  finopsguard check --policies policies.json --policy no_large_dev main.tf
  finopsguard policy list --from policies.json`,
	SilenceUsage: true,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(versionCmd)
}

func initLogging() {
	cfg := logging.DefaultConfig()
	if verbose {
		cfg.Level = "debug"
	} else {
		cfg.Level = "warn"
	}
	if err := logging.Initialize(cfg); err != nil {
		fmt.Printf("Error initializing logging: %v\n", err)
	}
}

// versionCmd prints version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("finopsguard version %s (commit %s, built %s)\n", version, commit, date)
	},
}
