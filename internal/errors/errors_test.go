package errors

import (
	"context"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(KindInvalidRequest, "payload is empty")
	want := "[invalid_request] payload is empty"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	wrapped := Wrap(KindParse, "bad HCL", fmt.Errorf("unexpected token"))
	want = "[parse_error] bad HCL: unexpected token"
	if wrapped.Error() != want {
		t.Errorf("Error() = %q, want %q", wrapped.Error(), want)
	}
}

func TestIsKindUnwraps(t *testing.T) {
	inner := PolicyNotFound("budget-gate")
	outer := fmt.Errorf("loading policy: %w", inner)

	if !IsKind(outer, KindPolicyNotFound) {
		t.Error("IsKind should see through fmt.Errorf wrapping")
	}
	if IsKind(outer, KindPolicyExists) {
		t.Error("IsKind matched the wrong kind")
	}
	if IsKind(nil, KindPolicyNotFound) {
		t.Error("IsKind(nil) must be false")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"typed", InvalidRequest("missing iac_type"), KindInvalidRequest},
		{"wrapped typed", fmt.Errorf("check: %w", PolicyExists("p1")), KindPolicyExists},
		{"context canceled", context.Canceled, KindCancelled},
		{"deadline exceeded", context.DeadlineExceeded, KindCancelled},
		{"wrapped deadline", fmt.Errorf("pricing: %w", context.DeadlineExceeded), KindCancelled},
		{"plain", fmt.Errorf("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWithContext(t *testing.T) {
	err := Parse("unexpected block", nil).
		WithContext("line", 12).
		WithContext("column", 3)

	if err.Context["line"] != 12 {
		t.Errorf("context line = %v, want 12", err.Context["line"])
	}
	if err.Context["column"] != 3 {
		t.Errorf("context column = %v, want 3", err.Context["column"])
	}
}

func TestNamedConstructors(t *testing.T) {
	tests := []struct {
		err  *Error
		kind Kind
	}{
		{InvalidRequest("x"), KindInvalidRequest},
		{InvalidPayloadEncoding(fmt.Errorf("illegal base64")), KindInvalidPayloadEncoding},
		{Parse("x", nil), KindParse},
		{PolicyNotFound("p"), KindPolicyNotFound},
		{PolicyExists("p"), KindPolicyExists},
		{PricingUnavailable("aws", fmt.Errorf("timeout")), KindPricingUnavailable},
		{Cancelled(context.Canceled), KindCancelled},
		{Internal("x", nil), KindInternal},
	}

	for _, tt := range tests {
		if tt.err.Kind != tt.kind {
			t.Errorf("constructor produced kind %q, want %q", tt.err.Kind, tt.kind)
		}
	}
}
