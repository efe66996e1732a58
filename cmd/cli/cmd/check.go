// Package cmd - check command
package cmd

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/honeybadger-technologies/finopsguard/adapters/terraform"
	"github.com/honeybadger-technologies/finopsguard/core/cache"
	"github.com/honeybadger-technologies/finopsguard/core/cost"
	"github.com/honeybadger-technologies/finopsguard/core/engine"
	"github.com/honeybadger-technologies/finopsguard/core/policy"
	"github.com/honeybadger-technologies/finopsguard/core/pricing"
	"github.com/honeybadger-technologies/finopsguard/core/store"
	"github.com/honeybadger-technologies/finopsguard/internal/logging"
)

var (
	checkEnvironment  string
	checkBudget       string
	checkPolicyIDs    []string
	checkPoliciesFile string
	checkFormat       string
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check <file.tf>",
	Short: "Estimate the cost impact of a Terraform file",
	Long: `Parse a Terraform file, estimate its monthly cost from the static
catalog, and evaluate budgets and policies against the result.

The command exits non-zero when a blocking policy fails, so it can gate
CI pipelines directly.

Examples:
  finopsguard check main.tf
  finopsguard check --budget 250 main.tf
  finopsguard check --environment prod --format json main.tf
  finopsguard check --policies policies.json --policy no_large_dev main.tf`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVarP(&checkEnvironment, "environment", "e", "dev", "deployment environment for policy context")
	checkCmd.Flags().StringVarP(&checkBudget, "budget", "b", "", "monthly budget in USD; estimates above it fail the check")
	checkCmd.Flags().StringArrayVarP(&checkPolicyIDs, "policy", "p", nil, "policy id to evaluate (repeatable, requires --policies)")
	checkCmd.Flags().StringVar(&checkPoliciesFile, "policies", "", "JSON file with policy definitions to load")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "table", "output format (table, json)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	path := args[0]
	text, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	eng, err := newLocalEngine(checkPoliciesFile)
	if err != nil {
		return err
	}

	req := &engine.CheckRequest{
		IaCType:     "terraform",
		IaCPayload:  base64.StdEncoding.EncodeToString(text),
		Environment: checkEnvironment,
		PolicyIDs:   checkPolicyIDs,
	}
	if checkBudget != "" {
		budget, err := decimal.NewFromString(checkBudget)
		if err != nil {
			return fmt.Errorf("invalid budget %q: %w", checkBudget, err)
		}
		req.BudgetRules = &engine.BudgetRules{MonthlyBudget: budget}
	}

	resp, err := eng.CheckCostImpact(cmd.Context(), req)
	if err != nil {
		return err
	}

	switch checkFormat {
	case "json":
		out, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	case "table":
		printCheckTable(resp)
	default:
		return fmt.Errorf("unknown format %q (expected table or json)", checkFormat)
	}

	if resp.PolicyEval != nil && resp.PolicyEval.Status == policy.StatusFail {
		return fmt.Errorf("policy check failed")
	}
	return nil
}

// newLocalEngine wires an in-process engine with static catalog pricing
// and an in-memory store, optionally seeded with policy definitions.
func newLocalEngine(policiesFile string) (*engine.Engine, error) {
	registry := policy.NewRegistry(nil, nil)
	if policiesFile != "" {
		policies, err := loadPolicyFile(policiesFile)
		if err != nil {
			return nil, err
		}
		if err := registry.Load(policies); err != nil {
			return nil, err
		}
	}

	return engine.New(engine.Params{
		Parsers:            []engine.IaCParser{terraform.NewParser(logging.Named("terraform"))},
		Factory:            pricing.NewFactory(pricing.NewCatalog(), pricing.NewSourceRegistry(), pricing.Options{}, logging.Named("pricing")),
		Estimator:          cost.NewEstimator(logging.Named("cost")),
		Registry:           registry,
		Evaluator:          policy.NewEvaluator(logging.Named("policy")),
		Store:              store.NewMemoryStore(),
		Cache:              cache.New[*engine.CheckResponse]("analysis", time.Minute, nil),
		DefaultEnvironment: "dev",
		Log:                logging.Named("engine"),
	})
}

// loadPolicyFile reads a JSON policy file holding either a single policy
// object or an array of them.
func loadPolicyFile(path string) ([]*policy.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var pol policy.Policy
		if err := json.Unmarshal(data, &pol); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		return []*policy.Policy{&pol}, nil
	}

	var policies []*policy.Policy
	if err := json.Unmarshal(data, &policies); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return policies, nil
}

func printCheckTable(resp *engine.CheckResponse) {
	fmt.Println("┌─────────────────────────────────────────────────────────────────────────┐")
	fmt.Println("│                           COST IMPACT SUMMARY                           │")
	fmt.Println("├─────────────────────────────────────────────────────────────────────────┤")

	for _, item := range resp.Breakdown {
		fmt.Printf("│ %-50s %20s │\n",
			truncate(item.ResourceID, 50),
			fmt.Sprintf("$%.2f/month", item.MonthlyCost.InexactFloat64()))
		if item.Notes != "" {
			fmt.Printf("│   └─ %-46s %20s │\n", truncate(item.Notes, 46), "")
		}
	}

	fmt.Println("├─────────────────────────────────────────────────────────────────────────┤")
	fmt.Printf("│ %-50s %20s │\n",
		"ESTIMATED MONTHLY COST",
		fmt.Sprintf("$%.2f", resp.EstimatedMonthlyCost.InexactFloat64()))
	fmt.Printf("│ %-50s %20s │\n",
		"ESTIMATED FIRST WEEK COST",
		fmt.Sprintf("$%.2f", resp.EstimatedFirstWeekCost.InexactFloat64()))
	fmt.Printf("│ %-50s %20s │\n", "PRICING CONFIDENCE", strings.ToUpper(string(resp.PricingConfidence)))
	if resp.PolicyEval != nil {
		fmt.Printf("│ %-50s %20s │\n", "POLICY STATUS", strings.ToUpper(string(resp.PolicyEval.Status)))
	}
	fmt.Println("└─────────────────────────────────────────────────────────────────────────┘")

	if resp.PolicyEval != nil {
		fmt.Println("\nPolicy evaluations:")
		for _, ev := range resp.PolicyEval.Evaluations {
			fmt.Printf("  [%s] %s (%s): %s\n", ev.Status, ev.PolicyID, ev.Mode, ev.Reason)
		}
	}
	if len(resp.RiskFlags) > 0 {
		fmt.Println("\nRisk flags:")
		for _, flag := range resp.RiskFlags {
			fmt.Printf("  - %s\n", flag)
		}
	}
	if len(resp.Recommendations) > 0 {
		fmt.Println("\nRecommendations:")
		for _, rec := range resp.Recommendations {
			fmt.Printf("  - %s\n", rec)
		}
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
