package engine

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/honeybadger-technologies/finopsguard/adapters/terraform"
	"github.com/honeybadger-technologies/finopsguard/core/cache"
	"github.com/honeybadger-technologies/finopsguard/core/cost"
	"github.com/honeybadger-technologies/finopsguard/core/policy"
	"github.com/honeybadger-technologies/finopsguard/core/pricing"
	"github.com/honeybadger-technologies/finopsguard/core/store"
	apperrors "github.com/honeybadger-technologies/finopsguard/internal/errors"
)

func newTestEngine(t *testing.T, st store.AnalysisStore) *Engine {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore()
	}
	eng, err := New(Params{
		Parsers:            []IaCParser{terraform.NewParser(nil)},
		Factory:            pricing.NewFactory(pricing.NewCatalog(), pricing.NewSourceRegistry(), pricing.Options{}, nil),
		Estimator:          cost.NewEstimator(nil),
		Registry:           policy.NewRegistry(nil, nil),
		Evaluator:          policy.NewEvaluator(nil),
		Store:              st,
		Cache:              cache.New[*CheckResponse]("analysis", time.Minute, nil),
		DefaultEnvironment: "dev",
	})
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}
	return eng
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func mustCheck(t *testing.T, eng *Engine, req *CheckRequest) *CheckResponse {
	t.Helper()
	resp, err := eng.CheckCostImpact(context.Background(), req)
	if err != nil {
		t.Fatalf("CheckCostImpact failed: %v", err)
	}
	return resp
}

const basicInstance = `
provider "aws" {
  region = "us-east-1"
}

resource "aws_instance" "example" {
  instance_type = "t3.medium"
}
`

// TestCheckBasicInstance prices a single t3.medium in dev with no policy.
func TestCheckBasicInstance(t *testing.T) {
	st := store.NewMemoryStore()
	eng := newTestEngine(t, st)

	resp := mustCheck(t, eng, &CheckRequest{
		IaCType:    "terraform",
		IaCPayload: b64(basicInstance),
	})

	if resp.ResourceCount != 1 {
		t.Errorf("Expected resource_count 1, got %d", resp.ResourceCount)
	}
	if !resp.EstimatedMonthlyCost.Equal(decimal.RequireFromString("30.368")) {
		t.Errorf("Expected monthly cost 30.368, got %s", resp.EstimatedMonthlyCost)
	}
	if resp.PricingConfidence != pricing.ConfidenceMedium {
		t.Errorf("Expected medium confidence from the static catalog, got %s", resp.PricingConfidence)
	}
	if resp.PolicyEval != nil {
		t.Errorf("Expected no policy_eval without policies, got %+v", resp.PolicyEval)
	}
	if resp.RequestID == "" {
		t.Error("Expected a generated request_id")
	}
	if resp.Environment != "dev" {
		t.Errorf("Expected default environment dev, got %s", resp.Environment)
	}
	if st.Len() != 1 {
		t.Errorf("Expected 1 persisted record, got %d", st.Len())
	}

	rec, err := st.Get(context.Background(), resp.RequestID)
	if err != nil {
		t.Fatalf("Expected persisted record, got %v", err)
	}
	if !rec.EstimatedMonthlyCost.Equal(resp.EstimatedMonthlyCost) {
		t.Errorf("Expected record cost %s, got %s", resp.EstimatedMonthlyCost, rec.EstimatedMonthlyCost)
	}
}

// TestCheckBudgetViolation applies the implicit monthly_budget policy.
func TestCheckBudgetViolation(t *testing.T) {
	eng := newTestEngine(t, nil)
	budget := decimal.NewFromInt(25)

	resp := mustCheck(t, eng, &CheckRequest{
		IaCType:     "terraform",
		IaCPayload:  b64(basicInstance),
		BudgetRules: &BudgetRules{MonthlyBudget: budget},
	})

	if resp.PolicyEval == nil {
		t.Fatal("Expected policy_eval with budget rules")
	}
	if resp.PolicyEval.PolicyID != "monthly_budget" {
		t.Errorf("Expected policy_id monthly_budget, got %s", resp.PolicyEval.PolicyID)
	}
	if resp.PolicyEval.Status != policy.StatusFail {
		t.Errorf("Expected fail (30.37 > 25), got %s", resp.PolicyEval.Status)
	}
	if len(resp.PolicyEval.Evaluations) != 1 {
		t.Fatalf("Expected 1 evaluation, got %d", len(resp.PolicyEval.Evaluations))
	}
	if resp.PolicyEval.Evaluations[0].Mode != policy.ModeBlocking {
		t.Errorf("Expected implicit budget to be blocking, got %s", resp.PolicyEval.Evaluations[0].Mode)
	}
}

// TestCheckUnderBudgetPasses verifies the happy side of the budget policy.
func TestCheckUnderBudgetPasses(t *testing.T) {
	eng := newTestEngine(t, nil)

	resp := mustCheck(t, eng, &CheckRequest{
		IaCType:     "terraform",
		IaCPayload:  b64(basicInstance),
		BudgetRules: &BudgetRules{MonthlyBudget: decimal.NewFromInt(100)},
	})

	if resp.PolicyEval == nil || resp.PolicyEval.Status != policy.StatusPass {
		t.Errorf("Expected pass under budget, got %+v", resp.PolicyEval)
	}
}

const largeInstanceDev = `
provider "aws" {
  region = "us-east-1"
}

resource "aws_instance" "big" {
  instance_type = "m5.large"
}
`

func largeDevPolicy() *policy.Policy {
	return &policy.Policy{
		ID:   "no_large_instances_in_dev",
		Name: "No large instances in dev",
		Expression: &policy.Expression{
			Rules: []policy.Rule{
				{Field: "env", Operator: policy.OpEqual, Value: "dev"},
				{Field: "crm.resources.*.size", Operator: policy.OpContains, Value: "large"},
			},
		},
		OnViolation: policy.OnViolationBlock,
		Enabled:     true,
	}
}

// TestCheckBlockingPolicy fails an m5.large in dev against a stored
// blocking policy.
func TestCheckBlockingPolicy(t *testing.T) {
	eng := newTestEngine(t, nil)
	if _, err := eng.CreatePolicy(context.Background(), largeDevPolicy()); err != nil {
		t.Fatalf("CreatePolicy failed: %v", err)
	}

	resp := mustCheck(t, eng, &CheckRequest{
		IaCType:     "terraform",
		IaCPayload:  b64(largeInstanceDev),
		Environment: "dev",
		PolicyIDs:   []string{"no_large_instances_in_dev"},
	})

	if resp.PolicyEval == nil {
		t.Fatal("Expected policy_eval")
	}
	if resp.PolicyEval.Status != policy.StatusFail {
		t.Errorf("Expected fail, got %s", resp.PolicyEval.Status)
	}
	if resp.PolicyEval.PolicyID != "no_large_instances_in_dev" {
		t.Errorf("Expected policy id echoed, got %s", resp.PolicyEval.PolicyID)
	}
}

// TestEvaluatePolicyAdvisoryOverride runs the same policy in advisory
// mode: still a fail verdict, but advisory severity.
func TestEvaluatePolicyAdvisoryOverride(t *testing.T) {
	st := store.NewMemoryStore()
	eng := newTestEngine(t, st)
	if _, err := eng.CreatePolicy(context.Background(), largeDevPolicy()); err != nil {
		t.Fatalf("CreatePolicy failed: %v", err)
	}

	ev, err := eng.EvaluatePolicy(context.Background(), &EvaluateRequest{
		IaCType:     "terraform",
		IaCPayload:  b64(largeInstanceDev),
		Environment: "dev",
		PolicyID:    "no_large_instances_in_dev",
		Mode:        policy.ModeAdvisory,
	})
	if err != nil {
		t.Fatalf("EvaluatePolicy failed: %v", err)
	}
	if ev.Status != policy.StatusFail {
		t.Errorf("Expected fail, got %s", ev.Status)
	}
	if ev.Mode != policy.ModeAdvisory {
		t.Errorf("Expected advisory mode, got %s", ev.Mode)
	}
	if st.Len() != 0 {
		t.Errorf("Expected evaluate_policy to persist nothing, got %d records", st.Len())
	}
}

// TestCheckSpannerNodes prices a GCP Spanner instance by node count from
// the static catalog.
func TestCheckSpannerNodes(t *testing.T) {
	eng := newTestEngine(t, nil)

	resp := mustCheck(t, eng, &CheckRequest{
		IaCType: "terraform",
		IaCPayload: b64(`
resource "google_spanner_instance" "spanner" {
  num_nodes = 2
}
`),
	})

	if resp.ResourceCount != 1 {
		t.Fatalf("Expected 1 resource, got %d", resp.ResourceCount)
	}
	if resp.Breakdown[0].ResourceID != "gcp_spanner_instance.spanner" {
		t.Errorf("Expected canonical gcp id, got %s", resp.Breakdown[0].ResourceID)
	}
	// 2 nodes x 0.90/hr x 730
	if !resp.EstimatedMonthlyCost.Equal(decimal.RequireFromString("1314")) {
		t.Errorf("Expected monthly cost 1314, got %s", resp.EstimatedMonthlyCost)
	}
}

// TestCheckUnpricedResource keeps unknown types in the model at zero cost
// with a risk flag and degraded confidence.
func TestCheckUnpricedResource(t *testing.T) {
	eng := newTestEngine(t, nil)

	resp := mustCheck(t, eng, &CheckRequest{
		IaCType: "terraform",
		IaCPayload: b64(`
resource "aws_quantum_widget" "future" {
  qubits = 4
}
`),
	})

	if resp.ResourceCount != 1 {
		t.Errorf("Expected the unknown resource in the model, got count %d", resp.ResourceCount)
	}
	if !resp.EstimatedMonthlyCost.IsZero() {
		t.Errorf("Expected zero cost, got %s", resp.EstimatedMonthlyCost)
	}
	if resp.PricingConfidence != pricing.ConfidenceLow {
		t.Errorf("Expected low confidence, got %s", resp.PricingConfidence)
	}
	found := false
	for _, f := range resp.RiskFlags {
		if f == "unpriced_resource:aws_quantum_widget" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected unpriced_resource:aws_quantum_widget flag, got %v", resp.RiskFlags)
	}
}

// TestCheckCacheReuse verifies an identical request is served from the
// cache with fresh caller identity and no duplicate history.
func TestCheckCacheReuse(t *testing.T) {
	st := store.NewMemoryStore()
	eng := newTestEngine(t, st)

	first := mustCheck(t, eng, &CheckRequest{
		IaCType:    "terraform",
		IaCPayload: b64(basicInstance),
		RequestID:  "req-a",
	})
	second := mustCheck(t, eng, &CheckRequest{
		IaCType:    "terraform",
		IaCPayload: b64("  " + basicInstance + "\n"), // equivalent after trim
		RequestID:  "req-b",
	})

	if second.RequestID != "req-b" {
		t.Errorf("Expected caller's request_id on a cache hit, got %s", second.RequestID)
	}
	if !second.EstimatedMonthlyCost.Equal(first.EstimatedMonthlyCost) {
		t.Errorf("Expected identical cost, got %s vs %s", second.EstimatedMonthlyCost, first.EstimatedMonthlyCost)
	}
	if st.Len() != 1 {
		t.Errorf("Expected a cache hit to persist nothing, got %d records", st.Len())
	}
}

// TestCheckRequestValidation covers the envelope error kinds.
func TestCheckRequestValidation(t *testing.T) {
	eng := newTestEngine(t, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		req  *CheckRequest
		kind apperrors.Kind
	}{
		{"missing iac_type", &CheckRequest{IaCPayload: b64("x")}, apperrors.KindInvalidRequest},
		{"unsupported iac_type", &CheckRequest{IaCType: "pulumi", IaCPayload: b64("x")}, apperrors.KindInvalidRequest},
		{"missing payload", &CheckRequest{IaCType: "terraform"}, apperrors.KindInvalidRequest},
		{"bad base64", &CheckRequest{IaCType: "terraform", IaCPayload: "not base64!!!"}, apperrors.KindInvalidPayloadEncoding},
		{"empty decoded payload", &CheckRequest{IaCType: "terraform", IaCPayload: b64("   ")}, apperrors.KindInvalidRequest},
		{"syntax error", &CheckRequest{IaCType: "terraform", IaCPayload: b64(`resource "a" {`)}, apperrors.KindParse},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eng.CheckCostImpact(ctx, tc.req)
			if !apperrors.IsKind(err, tc.kind) {
				t.Errorf("Expected %s, got %v", tc.kind, err)
			}
		})
	}
}

// TestCheckUnknownPolicyID verifies explicit policy ids must exist.
func TestCheckUnknownPolicyID(t *testing.T) {
	eng := newTestEngine(t, nil)

	_, err := eng.CheckCostImpact(context.Background(), &CheckRequest{
		IaCType:    "terraform",
		IaCPayload: b64(basicInstance),
		PolicyIDs:  []string{"ghost"},
	})
	if !apperrors.IsKind(err, apperrors.KindPolicyNotFound) {
		t.Errorf("Expected policy_not_found, got %v", err)
	}
}

// TestCheckCancellation verifies a cancelled check reports cancelled and
// leaves no record behind.
func TestCheckCancellation(t *testing.T) {
	st := store.NewMemoryStore()
	eng := newTestEngine(t, st)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.CheckCostImpact(ctx, &CheckRequest{
		IaCType:    "terraform",
		IaCPayload: b64(basicInstance),
	})
	if !apperrors.IsKind(err, apperrors.KindCancelled) {
		t.Fatalf("Expected cancelled, got %v", err)
	}
	if st.Len() != 0 {
		t.Errorf("Expected nothing persisted after cancellation, got %d records", st.Len())
	}

	// The failed build must not poison the cache.
	resp := mustCheck(t, eng, &CheckRequest{
		IaCType:    "terraform",
		IaCPayload: b64(basicInstance),
	})
	if resp.ResourceCount != 1 {
		t.Errorf("Expected a clean retry after cancellation, got %+v", resp)
	}
}

// failingStore accepts reads but rejects every write.
type failingStore struct {
	*store.MemoryStore
}

func (f *failingStore) Put(ctx context.Context, rec *store.AnalysisRecord) error {
	return apperrors.Internal("persisting analysis record", errors.New("disk full"))
}

// TestCheckStoreFailureStillReturns verifies a store outage costs only
// the history entry, never the computed result.
func TestCheckStoreFailureStillReturns(t *testing.T) {
	eng := newTestEngine(t, &failingStore{store.NewMemoryStore()})

	resp, err := eng.CheckCostImpact(context.Background(), &CheckRequest{
		IaCType:    "terraform",
		IaCPayload: b64(basicInstance),
	})
	if err != nil {
		t.Fatalf("Expected result despite store failure, got %v", err)
	}
	if !resp.EstimatedMonthlyCost.Equal(decimal.RequireFromString("30.368")) {
		t.Errorf("Expected full result, got %s", resp.EstimatedMonthlyCost)
	}
}

// TestEvaluatePolicyRequiresTarget verifies the request must name a
// policy or carry budget rules.
func TestEvaluatePolicyRequiresTarget(t *testing.T) {
	eng := newTestEngine(t, nil)

	_, err := eng.EvaluatePolicy(context.Background(), &EvaluateRequest{
		IaCType:    "terraform",
		IaCPayload: b64(basicInstance),
	})
	if !apperrors.IsKind(err, apperrors.KindInvalidRequest) {
		t.Errorf("Expected invalid_request, got %v", err)
	}
}

// TestListRecentAnalyses verifies store passthrough with the limit clamp.
func TestListRecentAnalyses(t *testing.T) {
	st := store.NewMemoryStore()
	eng := newTestEngine(t, st)
	ctx := context.Background()

	for i, payload := range []string{basicInstance, largeInstanceDev} {
		mustCheck(t, eng, &CheckRequest{
			IaCType:    "terraform",
			IaCPayload: b64(payload),
			RequestID:  []string{"req-1", "req-2"}[i],
		})
	}

	page, err := eng.ListRecentAnalyses(ctx, store.ListQuery{})
	if err != nil {
		t.Fatalf("ListRecentAnalyses failed: %v", err)
	}
	if len(page.Items) != 2 {
		t.Errorf("Expected 2 analyses, got %d", len(page.Items))
	}

	if _, err := eng.ListRecentAnalyses(ctx, store.ListQuery{Limit: 10000}); err != nil {
		t.Errorf("Expected clamped list to succeed, got %v", err)
	}
}

// TestPolicyCRUDPassthrough exercises create, get, list, delete through
// the engine surface.
func TestPolicyCRUDPassthrough(t *testing.T) {
	eng := newTestEngine(t, nil)
	ctx := context.Background()

	created, err := eng.CreatePolicy(ctx, largeDevPolicy())
	if err != nil {
		t.Fatalf("CreatePolicy failed: %v", err)
	}
	if created.CreatedAt.IsZero() {
		t.Error("Expected created_at to be set")
	}

	if _, err := eng.CreatePolicy(ctx, largeDevPolicy()); !apperrors.IsKind(err, apperrors.KindPolicyExists) {
		t.Errorf("Expected policy_exists on duplicate, got %v", err)
	}

	got, err := eng.GetPolicy("no_large_instances_in_dev")
	if err != nil || got.Name != "No large instances in dev" {
		t.Errorf("Expected stored policy, got %+v err=%v", got, err)
	}

	if n := len(eng.ListPolicies()); n != 1 {
		t.Errorf("Expected 1 policy, got %d", n)
	}

	if err := eng.DeletePolicy(ctx, "no_large_instances_in_dev"); err != nil {
		t.Fatalf("DeletePolicy failed: %v", err)
	}
	if err := eng.DeletePolicy(ctx, "no_large_instances_in_dev"); !apperrors.IsKind(err, apperrors.KindPolicyNotFound) {
		t.Errorf("Expected policy_not_found on second delete, got %v", err)
	}
}
