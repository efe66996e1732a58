// Package errors provides error handling utilities.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// Kind identifies the caller-visible category of error
type Kind string

const (
	// KindInvalidRequest indicates missing or malformed top-level fields
	KindInvalidRequest Kind = "invalid_request"

	// KindInvalidPayloadEncoding indicates the payload was not valid base64
	KindInvalidPayloadEncoding Kind = "invalid_payload_encoding"

	// KindParse indicates syntactically invalid IaC text
	KindParse Kind = "parse_error"

	// KindPolicyNotFound indicates an unknown policy id
	KindPolicyNotFound Kind = "policy_not_found"

	// KindPolicyExists indicates a duplicate policy id on create
	KindPolicyExists Kind = "policy_exists"

	// KindNotFound indicates an unknown record id
	KindNotFound Kind = "not_found"

	// KindPricingUnavailable indicates live pricing failed with fallback disabled
	KindPricingUnavailable Kind = "pricing_unavailable"

	// KindCancelled indicates a deadline was exceeded or the caller cancelled
	KindCancelled Kind = "cancelled"

	// KindInternal indicates anything unclassified
	KindInternal Kind = "internal_error"
)

// Error represents a domain error with context
type Error struct {
	Kind    Kind                   `json:"kind"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific kind
func (e *Error) Is(k Kind) bool {
	return e.Kind == k
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new error
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
	}
}

// Newf creates a new formatted error
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with context
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an error with formatted context
func Wrapf(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// IsKind checks if an error is of a specific kind, unwrapping as needed
func IsKind(err error, k Kind) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// KindOf classifies any error into a caller-visible kind.
// Context cancellation and deadline expiry classify as cancelled;
// unrecognized errors classify as internal_error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindInternal
}

// InvalidRequest creates an invalid request error
func InvalidRequest(message string) *Error {
	return New(KindInvalidRequest, message)
}

// InvalidPayloadEncoding creates a payload decoding error
func InvalidPayloadEncoding(cause error) *Error {
	return Wrap(KindInvalidPayloadEncoding, "payload is not valid base64", cause)
}

// Parse creates a parse error
func Parse(message string, cause error) *Error {
	return Wrap(KindParse, message, cause)
}

// PolicyNotFound creates a policy not found error
func PolicyNotFound(policyID string) *Error {
	return Newf(KindPolicyNotFound, "policy not found: %s", policyID)
}

// PolicyExists creates a duplicate policy error
func PolicyExists(policyID string) *Error {
	return Newf(KindPolicyExists, "policy already exists: %s", policyID)
}

// NotFound creates a record not found error
func NotFound(what, id string) *Error {
	return Newf(KindNotFound, "%s not found: %s", what, id)
}

// PricingUnavailable creates a pricing unavailable error
func PricingUnavailable(provider string, cause error) *Error {
	return Wrapf(KindPricingUnavailable, cause, "live pricing failed for provider %s and static fallback is disabled", provider)
}

// Cancelled creates a cancellation error
func Cancelled(cause error) *Error {
	return Wrap(KindCancelled, "request cancelled", cause)
}

// Internal creates an internal error
func Internal(message string, cause error) *Error {
	return Wrap(KindInternal, message, cause)
}
