package policy

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/honeybadger-technologies/finopsguard/core/cost"
	"github.com/honeybadger-technologies/finopsguard/core/crm"
)

// Evaluator evaluates policies against a model and its cost result.
// Evaluation is deterministic and mutates nothing.
type Evaluator struct {
	log *zap.Logger
}

// NewEvaluator creates a policy evaluator.
func NewEvaluator(log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{log: log}
}

// Evaluate runs one policy. A disabled policy reports n/a. A budget
// policy fails iff the estimated monthly cost exceeds the budget; an
// expression policy fails iff its violation condition holds.
func (e *Evaluator) Evaluate(model *crm.Model, result *cost.Result, environment string, pol *Policy, override Mode) Evaluation {
	eval := Evaluation{
		PolicyID: pol.ID,
		Status:   StatusPass,
		Mode:     pol.mode(override),
	}
	if !pol.Enabled {
		eval.Status = StatusNA
		eval.Reason = "policy is disabled"
		return eval
	}

	if pol.Budget != nil {
		monthly := result.EstimatedMonthlyCost
		if monthly.GreaterThan(*pol.Budget) {
			eval.Status = StatusFail
			eval.Reason = fmt.Sprintf("estimated monthly cost %s exceeds budget %s",
				monthly.StringFixed(2), pol.Budget.StringFixed(2))
		} else {
			eval.Reason = fmt.Sprintf("estimated monthly cost %s is within budget %s",
				monthly.StringFixed(2), pol.Budget.StringFixed(2))
		}
		return eval
	}

	ctx := NewContext(model, result, environment)
	var held []Rule
	for _, rule := range pol.Expression.Rules {
		if evalRule(ctx, rule) {
			held = append(held, rule)
		}
	}

	violated := false
	switch pol.Expression.RuleOperator {
	case "or":
		violated = len(held) > 0
	default:
		violated = len(held) == len(pol.Expression.Rules)
	}
	if violated {
		eval.Status = StatusFail
		eval.ViolatedRules = held
		eval.Reason = fmt.Sprintf("violation condition held (%d of %d rules)",
			len(held), len(pol.Expression.Rules))
	} else {
		eval.Reason = "violation condition did not hold"
	}

	e.log.Debug("evaluated policy",
		zap.String("policy_id", pol.ID),
		zap.String("status", string(eval.Status)))
	return eval
}

// EvaluateAll runs a set of policies independently. The aggregate is
// fail iff any evaluation fails at blocking severity.
func (e *Evaluator) EvaluateAll(model *crm.Model, result *cost.Result, environment string, policies []*Policy, override Mode) ([]Evaluation, Status) {
	if len(policies) == 0 {
		return nil, StatusPass
	}
	aggregate := StatusPass
	evals := make([]Evaluation, 0, len(policies))
	for _, pol := range policies {
		eval := e.Evaluate(model, result, environment, pol, override)
		evals = append(evals, eval)
		if eval.Status == StatusFail && eval.Mode == ModeBlocking {
			aggregate = StatusFail
		}
	}
	return evals, aggregate
}

// evalRule resolves the rule's path and applies its operator. A leading
// `!` requires every resolved value to match; otherwise one match is
// enough. Paths that resolve to nothing evaluate false.
func evalRule(ctx Value, rule Rule) bool {
	field, forAll := strings.CutPrefix(rule.Field, "!")
	candidates := resolvePath(ctx, field)
	if len(candidates) == 0 {
		return false
	}
	matches := 0
	for _, candidate := range candidates {
		if compare(rule.Operator, candidate, rule.Value) {
			matches++
		}
	}
	if forAll {
		return matches == len(candidates)
	}
	return matches > 0
}

// compare applies one operator. Type mismatches and null candidates
// evaluate false, never error.
func compare(op Operator, candidate Value, ruleValue interface{}) bool {
	if candidate.IsNull() {
		return false
	}
	switch op {
	case OpEqual:
		return candidate.Equals(FromGo(ruleValue))
	case OpNotEqual:
		other := FromGo(ruleValue)
		if candidate.Kind() != other.Kind() {
			return false
		}
		return !candidate.Equals(other)
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual:
		return compareOrdered(op, candidate, FromGo(ruleValue))
	case OpIn, OpNotIn:
		list, ok := FromGo(ruleValue).AsList()
		if !ok {
			return false
		}
		found := false
		for _, element := range list {
			if candidate.Equals(element) {
				found = true
				break
			}
		}
		if op == OpIn {
			return found
		}
		return !found
	case OpContains:
		if s, ok := candidate.AsString(); ok {
			sub, isString := FromGo(ruleValue).AsString()
			return isString && strings.Contains(s, sub)
		}
		if list, ok := candidate.AsList(); ok {
			needle := FromGo(ruleValue)
			for _, element := range list {
				if element.Equals(needle) {
					return true
				}
			}
		}
		return false
	}
	return false
}

// compareOrdered handles the ordering operators for numbers and for
// case-sensitive strings.
func compareOrdered(op Operator, a, b Value) bool {
	if an, ok := a.AsNumber(); ok {
		bn, isNumber := b.AsNumber()
		if !isNumber {
			return false
		}
		switch op {
		case OpGreater:
			return an > bn
		case OpGreaterEqual:
			return an >= bn
		case OpLess:
			return an < bn
		case OpLessEqual:
			return an <= bn
		}
		return false
	}
	if as, ok := a.AsString(); ok {
		bs, isString := b.AsString()
		if !isString {
			return false
		}
		switch op {
		case OpGreater:
			return as > bs
		case OpGreaterEqual:
			return as >= bs
		case OpLess:
			return as < bs
		case OpLessEqual:
			return as <= bs
		}
	}
	return false
}
