package policy

import (
	"testing"

	"github.com/shopspring/decimal"
)

// TestPolicyValidation exercises the structural invariants.
func TestPolicyValidation(t *testing.T) {
	budget := decimal.RequireFromString("100")
	negative := decimal.RequireFromString("-1")
	expr := &Expression{Rules: []Rule{{Field: "env", Operator: OpEqual, Value: "dev"}}}

	tests := []struct {
		name    string
		pol     Policy
		wantErr bool
	}{
		{"valid budget policy", Policy{ID: "p", Name: "p", Budget: &budget, OnViolation: OnViolationBlock}, false},
		{"valid expression policy", Policy{ID: "p", Name: "p", Expression: expr, OnViolation: OnViolationAdvisory}, false},
		{"missing id", Policy{Name: "p", Budget: &budget, OnViolation: OnViolationBlock}, true},
		{"missing name", Policy{ID: "p", Budget: &budget, OnViolation: OnViolationBlock}, true},
		{"both budget and expression", Policy{ID: "p", Name: "p", Budget: &budget, Expression: expr, OnViolation: OnViolationBlock}, true},
		{"neither budget nor expression", Policy{ID: "p", Name: "p", OnViolation: OnViolationBlock}, true},
		{"negative budget", Policy{ID: "p", Name: "p", Budget: &negative, OnViolation: OnViolationBlock}, true},
		{"empty rules", Policy{ID: "p", Name: "p", Expression: &Expression{}, OnViolation: OnViolationBlock}, true},
		{"bad rule operator", Policy{ID: "p", Name: "p", Expression: &Expression{Rules: []Rule{{Field: "env", Operator: "~="}}}, OnViolation: OnViolationBlock}, true},
		{"bad connective", Policy{ID: "p", Name: "p", Expression: &Expression{Rules: expr.Rules, RuleOperator: "xor"}, OnViolation: OnViolationBlock}, true},
		{"missing rule field", Policy{ID: "p", Name: "p", Expression: &Expression{Rules: []Rule{{Operator: OpEqual, Value: 1}}}, OnViolation: OnViolationBlock}, true},
		{"bad on_violation", Policy{ID: "p", Name: "p", Budget: &budget, OnViolation: "panic"}, true},
	}
	for _, tt := range tests {
		err := tt.pol.Validate()
		if tt.wantErr && err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("%s: expected valid policy, got %v", tt.name, err)
		}
	}
}

// TestPolicyClone verifies clones share nothing mutable with the
// original.
func TestPolicyClone(t *testing.T) {
	budget := decimal.RequireFromString("10")
	original := &Policy{
		ID:          "clone-me",
		Name:        "clone-me",
		Budget:      &budget,
		OnViolation: OnViolationBlock,
	}
	clone := original.Clone()

	*clone.Budget = decimal.RequireFromString("999")
	if original.Budget.String() != "10" {
		t.Errorf("Expected original budget unchanged, got %s", original.Budget)
	}

	withExpr := &Policy{
		ID:   "expr",
		Name: "expr",
		Expression: &Expression{
			Rules: []Rule{{Field: "env", Operator: OpEqual, Value: "dev"}},
		},
		OnViolation: OnViolationAdvisory,
	}
	exprClone := withExpr.Clone()
	exprClone.Expression.Rules[0].Field = "changed"
	if withExpr.Expression.Rules[0].Field != "env" {
		t.Errorf("Expected original rules unchanged, got %q", withExpr.Expression.Rules[0].Field)
	}
}

// TestValueEquality covers the kind-aware comparison rules.
func TestValueEquality(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"equal numbers", Number(5), Number(5), true},
		{"unequal numbers", Number(5), Number(6), false},
		{"equal strings", String("x"), String("x"), true},
		{"case sensitive", String("X"), String("x"), false},
		{"kind mismatch", Number(5), String("5"), false},
		{"nulls never equal", Null(), Null(), false},
		{"equal lists", List(Number(1), Number(2)), List(Number(1), Number(2)), true},
		{"list length mismatch", List(Number(1)), List(Number(1), Number(2)), false},
		{"equal objects", Object(map[string]Value{"a": Number(1)}), Object(map[string]Value{"a": Number(1)}), true},
		{"object key mismatch", Object(map[string]Value{"a": Number(1)}), Object(map[string]Value{"b": Number(1)}), false},
	}
	for _, tt := range tests {
		if got := tt.a.Equals(tt.b); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

// TestFromGoConversions verifies Go values land with the right kinds.
func TestFromGoConversions(t *testing.T) {
	if v := FromGo(decimal.RequireFromString("30.37")); v.Kind() != KindNumber {
		t.Errorf("Expected decimal to convert to number, got kind %v", v.Kind())
	}
	if v := FromGo(map[string]string{"env": "dev"}); v.Kind() != KindObject {
		t.Errorf("Expected string map to convert to object, got kind %v", v.Kind())
	}
	if v := FromGo([]interface{}{1, "two"}); v.Kind() != KindList {
		t.Errorf("Expected slice to convert to list, got kind %v", v.Kind())
	}
	if v := FromGo(nil); !v.IsNull() {
		t.Errorf("Expected nil to convert to null, got kind %v", v.Kind())
	}
	if v := FromGo(3); v.Kind() != KindNumber {
		t.Errorf("Expected int to convert to number, got kind %v", v.Kind())
	}
}
