package engine

import (
	"github.com/shopspring/decimal"

	"github.com/honeybadger-technologies/finopsguard/core/cost"
	"github.com/honeybadger-technologies/finopsguard/core/policy"
	"github.com/honeybadger-technologies/finopsguard/core/pricing"
)

// BudgetRules carries the caller's inline budget. A request with budget
// rules and no explicit policy ids is checked against the implicit
// monthly_budget policy.
type BudgetRules struct {
	MonthlyBudget decimal.Decimal `json:"monthly_budget"`
}

// CheckRequest is one cost impact check. IaCPayload is base64 of the
// configuration text; RequestID and Environment default when empty.
type CheckRequest struct {
	IaCType     string       `json:"iac_type"`
	IaCPayload  string       `json:"iac_payload"`
	Environment string       `json:"environment,omitempty"`
	BudgetRules *BudgetRules `json:"budget_rules,omitempty"`
	PolicyIDs   []string     `json:"policy_ids,omitempty"`
	RequestID   string       `json:"request_id,omitempty"`
}

// EvaluateRequest runs the parse and pricing path for a single policy
// verdict without recording anything. Mode overrides the policy's
// declared severity when set.
type EvaluateRequest struct {
	IaCType     string       `json:"iac_type"`
	IaCPayload  string       `json:"iac_payload"`
	Environment string       `json:"environment,omitempty"`
	PolicyID    string       `json:"policy_id,omitempty"`
	BudgetRules *BudgetRules `json:"budget_rules,omitempty"`
	Mode        policy.Mode  `json:"mode,omitempty"`
}

// PolicyOutcome aggregates the policy evaluations of one check. Status
// is fail iff any blocking evaluation failed. PolicyID names the policy
// that decided the outcome: the only one evaluated, or the first
// failure.
type PolicyOutcome struct {
	Status      policy.Status       `json:"status"`
	PolicyID    string              `json:"policy_id,omitempty"`
	Evaluations []policy.Evaluation `json:"evaluations,omitempty"`
}

// CheckResponse is the full result of a cost impact check.
type CheckResponse struct {
	RequestID              string               `json:"request_id"`
	Environment            string               `json:"environment"`
	EstimatedMonthlyCost   decimal.Decimal      `json:"estimated_monthly_cost"`
	EstimatedFirstWeekCost decimal.Decimal      `json:"estimated_first_week_cost"`
	Breakdown              []cost.BreakdownItem `json:"breakdown"`
	PricingConfidence      pricing.Confidence   `json:"pricing_confidence"`
	ResourceCount          int                  `json:"resource_count"`
	RiskFlags              []string             `json:"risk_flags,omitempty"`
	Recommendations        []string             `json:"recommendations,omitempty"`
	PolicyEval             *PolicyOutcome       `json:"policy_eval,omitempty"`
	DurationMS             int64                `json:"duration_ms"`
}

// clone returns a copy safe to mutate for per-caller fields on a cache
// hit. Breakdown items and evaluations are value types, so copying the
// slices is enough.
func (r *CheckResponse) clone() *CheckResponse {
	if r == nil {
		return nil
	}
	out := *r
	out.Breakdown = append([]cost.BreakdownItem(nil), r.Breakdown...)
	out.RiskFlags = append([]string(nil), r.RiskFlags...)
	out.Recommendations = append([]string(nil), r.Recommendations...)
	if r.PolicyEval != nil {
		pe := *r.PolicyEval
		pe.Evaluations = append([]policy.Evaluation(nil), r.PolicyEval.Evaluations...)
		out.PolicyEval = &pe
	}
	return &out
}
