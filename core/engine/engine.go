// Package engine is the in-process API of the analysis pipeline. It
// bundles the IaC parsers, the pricing factory, the estimator, the
// policy registry and evaluator, the analysis store, and the cache, and
// enforces the parse → price → estimate → evaluate → persist ordering
// for each request.
package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/honeybadger-technologies/finopsguard/core/cache"
	"github.com/honeybadger-technologies/finopsguard/core/cost"
	"github.com/honeybadger-technologies/finopsguard/core/crm"
	"github.com/honeybadger-technologies/finopsguard/core/policy"
	"github.com/honeybadger-technologies/finopsguard/core/pricing"
	"github.com/honeybadger-technologies/finopsguard/core/store"
	apperrors "github.com/honeybadger-technologies/finopsguard/internal/errors"
	"github.com/honeybadger-technologies/finopsguard/internal/metrics"
)

// maxListLimit caps list_recent_analyses page sizes.
const maxListLimit = 100

// IaCParser converts IaC text of one format into the canonical model.
type IaCParser interface {
	IaCType() string
	Parse(text string) (*crm.Model, error)
}

// Params collects the engine's dependencies. All of them are required
// except Log.
type Params struct {
	Parsers   []IaCParser
	Factory   *pricing.Factory
	Estimator *cost.Estimator
	Registry  *policy.Registry
	Evaluator *policy.Evaluator
	Store     store.AnalysisStore
	Cache     *cache.Cache[*CheckResponse]

	// DefaultEnvironment fills requests that omit one.
	DefaultEnvironment string

	Log *zap.Logger
}

// Engine executes checks and owns no mutable state of its own; all
// shared state lives in the registry, store, and cache it is given.
type Engine struct {
	parsers    map[string]IaCParser
	factory    *pricing.Factory
	estimator  *cost.Estimator
	registry   *policy.Registry
	evaluator  *policy.Evaluator
	store      store.AnalysisStore
	cache      *cache.Cache[*CheckResponse]
	defaultEnv string
	log        *zap.Logger
	now        func() time.Time
}

// New wires an engine from its dependencies.
func New(params Params) (*Engine, error) {
	if len(params.Parsers) == 0 {
		return nil, fmt.Errorf("engine requires at least one IaC parser")
	}
	if params.Factory == nil || params.Estimator == nil {
		return nil, fmt.Errorf("engine requires a pricing factory and an estimator")
	}
	if params.Registry == nil || params.Evaluator == nil {
		return nil, fmt.Errorf("engine requires a policy registry and evaluator")
	}
	if params.Store == nil || params.Cache == nil {
		return nil, fmt.Errorf("engine requires a store and a cache")
	}
	if params.Log == nil {
		params.Log = zap.NewNop()
	}
	if params.DefaultEnvironment == "" {
		params.DefaultEnvironment = "dev"
	}

	parsers := make(map[string]IaCParser, len(params.Parsers))
	for _, p := range params.Parsers {
		parsers[p.IaCType()] = p
	}

	return &Engine{
		parsers:    parsers,
		factory:    params.Factory,
		estimator:  params.Estimator,
		registry:   params.Registry,
		evaluator:  params.Evaluator,
		store:      params.Store,
		cache:      params.Cache,
		defaultEnv: params.DefaultEnvironment,
		log:        params.Log,
		now:        time.Now,
	}, nil
}

// CheckCostImpact runs one full check. Identical requests within the
// cache TTL share a single computation; a cached response is returned
// with the caller's request id and wall time.
func (e *Engine) CheckCostImpact(ctx context.Context, req *CheckRequest) (*CheckResponse, error) {
	started := e.now()

	payload, err := e.decodeRequest(req)
	if err != nil {
		metrics.ChecksTotal.WithLabelValues(checkStatusLabel(err)).Inc()
		return nil, err
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}
	environment := req.Environment
	if environment == "" {
		environment = e.defaultEnv
	}

	key := cache.Key(cache.KeyRequest{
		IaCType:       req.IaCType,
		Payload:       payload,
		Environment:   environment,
		PolicyIDs:     req.PolicyIDs,
		MonthlyBudget: budgetKey(req.BudgetRules),
	})

	resp, cached, err := e.cache.GetOrBuild(ctx, key, func(ctx context.Context) (*CheckResponse, error) {
		return e.runCheck(ctx, requestID, environment, payload, req)
	})
	if err != nil {
		metrics.ChecksTotal.WithLabelValues(checkStatusLabel(err)).Inc()
		return nil, err
	}

	if cached {
		resp = resp.clone()
		resp.RequestID = requestID
		resp.DurationMS = e.now().Sub(started).Milliseconds()
		e.log.Debug("served check from cache",
			zap.String("request_id", requestID),
			zap.String("cache_key", key))
	}

	metrics.ChecksTotal.WithLabelValues("ok").Inc()
	metrics.CheckDuration.Observe(e.now().Sub(started).Seconds())
	return resp, nil
}

// runCheck is the cache-miss path: parse → price → estimate → evaluate →
// persist, strictly in that order. Cancellation at any stage returns
// cancelled with nothing persisted.
func (e *Engine) runCheck(ctx context.Context, requestID, environment, payload string, req *CheckRequest) (*CheckResponse, error) {
	startedAt := e.now().UTC()

	parser := e.parsers[req.IaCType]
	model, err := parser.Parse(payload)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Cancelled(err)
	}

	prices, err := e.factory.PriceModel(ctx, model)
	if err != nil {
		return nil, err
	}

	result := e.estimator.Estimate(model, prices, environment)

	policies, err := e.policiesFor(req.PolicyIDs, req.BudgetRules)
	if err != nil {
		return nil, err
	}
	var outcome *PolicyOutcome
	if len(policies) > 0 {
		evals, aggregate := e.evaluator.EvaluateAll(model, result, environment, policies, "")
		outcome = summarizeOutcome(evals, aggregate)
		for _, ev := range evals {
			metrics.PolicyEvaluationsTotal.WithLabelValues(string(ev.Status)).Inc()
		}
	}

	completedAt := e.now().UTC()
	resp := &CheckResponse{
		RequestID:              requestID,
		Environment:            environment,
		EstimatedMonthlyCost:   result.EstimatedMonthlyCost,
		EstimatedFirstWeekCost: result.EstimatedFirstWeekCost,
		Breakdown:              result.Breakdown,
		PricingConfidence:      result.PricingConfidence,
		ResourceCount:          result.ResourceCount,
		RiskFlags:              result.RiskFlags,
		Recommendations:        result.Recommendations,
		PolicyEval:             outcome,
		DurationMS:             completedAt.Sub(startedAt).Milliseconds(),
	}

	if err := ctx.Err(); err != nil {
		return nil, apperrors.Cancelled(err)
	}
	e.persist(ctx, req.IaCType, resp, startedAt, completedAt)

	e.log.Info("check completed",
		zap.String("request_id", requestID),
		zap.String("environment", environment),
		zap.Int("resource_count", resp.ResourceCount),
		zap.String("estimated_monthly_cost", resp.EstimatedMonthlyCost.StringFixed(2)),
		zap.Int64("duration_ms", resp.DurationMS))

	return resp, nil
}

// persist writes the analysis record. Store failures are logged and
// swallowed: the caller still gets the computed result, the check just
// leaves no history.
func (e *Engine) persist(ctx context.Context, iacType string, resp *CheckResponse, startedAt, completedAt time.Time) {
	resultJSON, err := json.Marshal(resp)
	if err != nil {
		e.log.Error("failed to encode analysis result",
			zap.String("request_id", resp.RequestID), zap.Error(err))
		return
	}

	rec := &store.AnalysisRecord{
		RequestID:              resp.RequestID,
		StartedAt:              startedAt,
		CompletedAt:            completedAt,
		DurationMS:             resp.DurationMS,
		IaCType:                iacType,
		Environment:            resp.Environment,
		EstimatedMonthlyCost:   resp.EstimatedMonthlyCost,
		EstimatedFirstWeekCost: resp.EstimatedFirstWeekCost,
		ResourceCount:          resp.ResourceCount,
		RiskFlags:              resp.RiskFlags,
		RecommendationsCount:   len(resp.Recommendations),
		ResultJSON:             resultJSON,
	}
	if resp.PolicyEval != nil {
		rec.PolicyStatus = string(resp.PolicyEval.Status)
		rec.PolicyID = resp.PolicyEval.PolicyID
	}

	if err := e.store.Put(ctx, rec); err != nil {
		e.log.Error("failed to persist analysis record",
			zap.String("request_id", resp.RequestID), zap.Error(err))
		return
	}
	metrics.AnalysesPersistedTotal.Inc()
}

// EvaluatePolicy runs the parse and pricing path and returns a single
// policy verdict. Nothing is cached or persisted.
func (e *Engine) EvaluatePolicy(ctx context.Context, req *EvaluateRequest) (*policy.Evaluation, error) {
	payload, err := e.decodeRequest(&CheckRequest{IaCType: req.IaCType, IaCPayload: req.IaCPayload})
	if err != nil {
		return nil, err
	}

	var pol *policy.Policy
	switch {
	case req.PolicyID != "":
		pol, err = e.registry.Get(req.PolicyID)
		if err != nil {
			return nil, err
		}
	case req.BudgetRules != nil:
		pol = policy.ImplicitBudgetPolicy(req.BudgetRules.MonthlyBudget)
	default:
		return nil, apperrors.InvalidRequest("either policy_id or budget_rules is required")
	}

	environment := req.Environment
	if environment == "" {
		environment = e.defaultEnv
	}

	model, err := e.parsers[req.IaCType].Parse(payload)
	if err != nil {
		return nil, err
	}
	prices, err := e.factory.PriceModel(ctx, model)
	if err != nil {
		return nil, err
	}
	result := e.estimator.Estimate(model, prices, environment)

	ev := e.evaluator.Evaluate(model, result, environment, pol, req.Mode)
	metrics.PolicyEvaluationsTotal.WithLabelValues(string(ev.Status)).Inc()
	return &ev, nil
}

// ListRecentAnalyses pages stored analysis records, newest first.
func (e *Engine) ListRecentAnalyses(ctx context.Context, q store.ListQuery) (*store.ListPage, error) {
	if q.Limit <= 0 {
		q.Limit = store.DefaultListLimit
	}
	if q.Limit > maxListLimit {
		q.Limit = maxListLimit
	}
	return e.store.List(ctx, q)
}

// GetAnalysis returns one stored analysis record by request id.
func (e *Engine) GetAnalysis(ctx context.Context, requestID string) (*store.AnalysisRecord, error) {
	return e.store.Get(ctx, requestID)
}

// CreatePolicy registers and persists a policy.
func (e *Engine) CreatePolicy(ctx context.Context, pol *policy.Policy) (*policy.Policy, error) {
	return e.registry.Create(ctx, pol)
}

// GetPolicy returns one policy by id.
func (e *Engine) GetPolicy(id string) (*policy.Policy, error) {
	return e.registry.Get(id)
}

// ListPolicies returns all policies sorted by name.
func (e *Engine) ListPolicies() []*policy.Policy {
	return e.registry.List()
}

// DeletePolicy removes a policy from the registry and the persister.
func (e *Engine) DeletePolicy(ctx context.Context, id string) error {
	return e.registry.Delete(ctx, id)
}

// Healthy reports whether the engine's store is reachable.
func (e *Engine) Healthy(ctx context.Context) error {
	return e.store.Healthy(ctx)
}

// decodeRequest validates the request envelope and decodes the payload.
// Encoding failures are distinct from parse failures downstream.
func (e *Engine) decodeRequest(req *CheckRequest) (string, error) {
	if req == nil {
		return "", apperrors.InvalidRequest("request is nil")
	}
	if req.IaCType == "" {
		return "", apperrors.InvalidRequest("iac_type is required")
	}
	if _, ok := e.parsers[req.IaCType]; !ok {
		return "", apperrors.Newf(apperrors.KindInvalidRequest, "unsupported iac_type: %s", req.IaCType)
	}
	if req.IaCPayload == "" {
		return "", apperrors.InvalidRequest("iac_payload is required")
	}

	decoded, err := base64.StdEncoding.DecodeString(req.IaCPayload)
	if err != nil {
		return "", apperrors.InvalidPayloadEncoding(err)
	}
	return string(decoded), nil
}

// policiesFor resolves the policy set for a check: explicit ids from the
// registry snapshot, otherwise the implicit budget policy when budget
// rules are present.
func (e *Engine) policiesFor(policyIDs []string, budget *BudgetRules) ([]*policy.Policy, error) {
	if len(policyIDs) > 0 {
		return e.registry.GetAll(policyIDs)
	}
	if budget != nil {
		return []*policy.Policy{policy.ImplicitBudgetPolicy(budget.MonthlyBudget)}, nil
	}
	return nil, nil
}

func summarizeOutcome(evals []policy.Evaluation, aggregate policy.Status) *PolicyOutcome {
	out := &PolicyOutcome{Status: aggregate, Evaluations: evals}
	if len(evals) == 1 {
		out.PolicyID = evals[0].PolicyID
		return out
	}
	for _, ev := range evals {
		if ev.Status == policy.StatusFail {
			out.PolicyID = ev.PolicyID
			break
		}
	}
	return out
}

func budgetKey(b *BudgetRules) string {
	if b == nil {
		return ""
	}
	return b.MonthlyBudget.String()
}

func checkStatusLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case apperrors.IsKind(err, apperrors.KindCancelled):
		return "cancelled"
	default:
		return "error"
	}
}
