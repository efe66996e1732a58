package policy

import (
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/honeybadger-technologies/finopsguard/internal/errors"
)

// OnViolation is the policy's declared consequence of a failure.
type OnViolation string

const (
	OnViolationAdvisory OnViolation = "advisory"
	OnViolationBlock    OnViolation = "block"
)

// Mode is the effective severity of one evaluation. Callers may
// override the policy's own consequence for a single invocation.
type Mode string

const (
	ModeAdvisory Mode = "advisory"
	ModeBlocking Mode = "blocking"
)

// Status is the outcome of one evaluation.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusNA   Status = "n/a"
)

// Operator is a rule comparison operator.
type Operator string

const (
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpIn           Operator = "in"
	OpNotIn        Operator = "not_in"
	OpContains     Operator = "contains"
)

var knownOperators = map[Operator]bool{
	OpEqual:        true,
	OpNotEqual:     true,
	OpGreater:      true,
	OpGreaterEqual: true,
	OpLess:         true,
	OpLessEqual:    true,
	OpIn:           true,
	OpNotIn:        true,
	OpContains:     true,
}

// Rule compares one dotted context path against a literal. The field
// may use a `*` segment to quantify over list elements (any match) and
// a leading `!` to require every element to match.
type Rule struct {
	Field    string      `json:"field"`
	Operator Operator    `json:"operator"`
	Value    interface{} `json:"value"`
}

// Expression combines rules with a single connective.
type Expression struct {
	Rules []Rule `json:"rules"`

	// RuleOperator is "and" (all rules hold) or "or" (any rule holds).
	// Empty defaults to "and".
	RuleOperator string `json:"rule_operator,omitempty"`
}

// Policy is a named violation condition with either a monthly budget
// or an expression; exactly one of the two must be set. Budget is
// shorthand for estimated_monthly_cost > budget.
type Policy struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Budget      *decimal.Decimal `json:"budget,omitempty"`
	Expression  *Expression      `json:"expression,omitempty"`
	OnViolation OnViolation      `json:"on_violation"`
	Enabled     bool             `json:"enabled"`
	CreatedBy   string           `json:"created_by,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Evaluation is the outcome of evaluating one policy.
type Evaluation struct {
	PolicyID string `json:"policy_id"`
	Status   Status `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Mode     Mode   `json:"mode"`

	// ViolatedRules lists the rules that held when the status is fail.
	ViolatedRules []Rule `json:"violated_rules,omitempty"`
}

// Validate checks the structural invariants of a policy definition.
func (p *Policy) Validate() error {
	if p.ID == "" {
		return apperrors.InvalidRequest("policy id is required")
	}
	if p.Name == "" {
		return apperrors.InvalidRequest("policy name is required")
	}
	if (p.Budget == nil) == (p.Expression == nil) {
		return apperrors.InvalidRequest("policy must set exactly one of budget or expression")
	}
	if p.Budget != nil && p.Budget.IsNegative() {
		return apperrors.InvalidRequest("policy budget must not be negative")
	}
	if p.Expression != nil {
		if err := p.Expression.validate(); err != nil {
			return err
		}
	}
	switch p.OnViolation {
	case OnViolationAdvisory, OnViolationBlock:
	default:
		return apperrors.InvalidRequest("policy on_violation must be advisory or block")
	}
	return nil
}

func (e *Expression) validate() error {
	if len(e.Rules) == 0 {
		return apperrors.InvalidRequest("policy expression needs at least one rule")
	}
	switch e.RuleOperator {
	case "", "and", "or":
	default:
		return apperrors.InvalidRequest("rule_operator must be and or or")
	}
	for _, rule := range e.Rules {
		if rule.Field == "" {
			return apperrors.InvalidRequest("rule field is required")
		}
		if !knownOperators[rule.Operator] {
			return apperrors.Newf(apperrors.KindInvalidRequest, "unknown rule operator %q", rule.Operator)
		}
	}
	return nil
}

// Clone returns a deep copy so registry snapshots stay immutable even
// if the caller keeps mutating its policy.
func (p *Policy) Clone() *Policy {
	clone := *p
	if p.Budget != nil {
		b := *p.Budget
		clone.Budget = &b
	}
	if p.Expression != nil {
		expr := Expression{
			Rules:        append([]Rule(nil), p.Expression.Rules...),
			RuleOperator: p.Expression.RuleOperator,
		}
		clone.Expression = &expr
	}
	return &clone
}

// mode returns the effective mode for one invocation: the override
// when given, otherwise the policy's own consequence.
func (p *Policy) mode(override Mode) Mode {
	if override != "" {
		return override
	}
	if p.OnViolation == OnViolationBlock {
		return ModeBlocking
	}
	return ModeAdvisory
}

// ImplicitBudgetPolicy builds the policy applied when a check carries
// budget rules but names no explicit policies.
func ImplicitBudgetPolicy(budget decimal.Decimal) *Policy {
	return &Policy{
		ID:          "monthly_budget",
		Name:        "Monthly budget",
		Description: "implicit budget supplied with the request",
		Budget:      &budget,
		OnViolation: OnViolationBlock,
		Enabled:     true,
	}
}
