// Package policy evaluates declarative cost policies against the
// canonical model and a cost result. Policies encode the violation
// condition: a policy fails when its expression holds.
package policy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValueKind identifies the type of a context value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindObject
)

// Value is a dynamically typed value inside the evaluation context.
// Numbers are float64; decimal costs convert at the policy boundary.
type Value struct {
	kind      ValueKind
	boolVal   bool
	numberVal float64
	stringVal string
	listVal   []Value
	objectVal map[string]Value
}

// Null creates a null value.
func Null() Value {
	return Value{kind: KindNull}
}

// Bool creates a boolean value.
func Bool(v bool) Value {
	return Value{kind: KindBool, boolVal: v}
}

// Number creates a numeric value.
func Number(v float64) Value {
	return Value{kind: KindNumber, numberVal: v}
}

// String creates a string value.
func String(v string) Value {
	return Value{kind: KindString, stringVal: v}
}

// List creates a list value.
func List(elements ...Value) Value {
	return Value{kind: KindList, listVal: elements}
}

// Object creates an object value.
func Object(fields map[string]Value) Value {
	return Value{kind: KindObject, objectVal: fields}
}

// FromGo converts a plain Go value into a context value. Unhandled
// types fall back to their string representation.
func FromGo(v interface{}) Value {
	if v == nil {
		return Null()
	}
	switch val := v.(type) {
	case bool:
		return Bool(val)
	case int:
		return Number(float64(val))
	case int64:
		return Number(float64(val))
	case float64:
		return Number(val)
	case string:
		return String(val)
	case decimal.Decimal:
		return Number(val.InexactFloat64())
	case []string:
		elements := make([]Value, len(val))
		for i, e := range val {
			elements[i] = String(e)
		}
		return List(elements...)
	case []interface{}:
		elements := make([]Value, len(val))
		for i, e := range val {
			elements[i] = FromGo(e)
		}
		return List(elements...)
	case map[string]string:
		fields := make(map[string]Value, len(val))
		for k, e := range val {
			fields[k] = String(e)
		}
		return Object(fields)
	case map[string]interface{}:
		fields := make(map[string]Value, len(val))
		for k, e := range val {
			fields[k] = FromGo(e)
		}
		return Object(fields)
	default:
		return String(fmt.Sprintf("%v", v))
	}
}

// Kind returns the value kind.
func (v Value) Kind() ValueKind {
	return v.kind
}

// IsNull returns true for the null value.
func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// AsBool returns the boolean value.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.boolVal, true
}

// AsNumber returns the numeric value.
func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.numberVal, true
}

// AsString returns the string value.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.stringVal, true
}

// AsList returns the list elements.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.listVal, true
}

// AsObject returns the object fields.
func (v Value) AsObject() (map[string]Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.objectVal, true
}

// Equals compares two values of the same kind. Values of different
// kinds, and null values, are never equal.
func (v Value) Equals(other Value) bool {
	if v.kind != other.kind || v.kind == KindNull {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.boolVal == other.boolVal
	case KindNumber:
		return v.numberVal == other.numberVal
	case KindString:
		return v.stringVal == other.stringVal
	case KindList:
		if len(v.listVal) != len(other.listVal) {
			return false
		}
		for i := range v.listVal {
			if !v.listVal[i].Equals(other.listVal[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.objectVal) != len(other.objectVal) {
			return false
		}
		for k, e := range v.objectVal {
			o, ok := other.objectVal[k]
			if !ok || !e.Equals(o) {
				return false
			}
		}
		return true
	}
	return false
}
