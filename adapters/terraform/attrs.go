package terraform

import (
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// attrValue is the evaluated form of a single HCL attribute. When an
// expression cannot be evaluated without variables, locals, or provider
// data, known is false and raw carries the verbatim source text so the
// original expression survives into the canonical model.
type attrValue struct {
	value any
	raw   string
	known bool
}

// blockAttrs holds every attribute of one block body keyed by name.
type blockAttrs map[string]attrValue

func (a blockAttrs) has(name string) bool {
	_, ok := a[name]
	return ok
}

// str returns the attribute as a known string.
func (a blockAttrs) str(name string) (string, bool) {
	v, ok := a[name]
	if !ok || !v.known {
		return "", false
	}
	s, ok := v.value.(string)
	return s, ok
}

// strOrRaw returns the known string value, or the verbatim expression
// text when the attribute exists but could not be evaluated.
func (a blockAttrs) strOrRaw(name string) (string, bool) {
	v, ok := a[name]
	if !ok {
		return "", false
	}
	if v.known {
		if s, ok := v.value.(string); ok {
			return s, true
		}
		return "", false
	}
	return v.raw, true
}

// num returns the attribute as a known number.
func (a blockAttrs) num(name string) (float64, bool) {
	v, ok := a[name]
	if !ok || !v.known {
		return 0, false
	}
	f, ok := v.value.(float64)
	return f, ok
}

// numOrString accepts either a number or a numeric string. Terraform
// schemas are loose about this; aws_ecs_task_definition declares cpu
// and memory as strings even though the values are numbers.
func (a blockAttrs) numOrString(name string) (float64, bool) {
	v, ok := a[name]
	if !ok || !v.known {
		return 0, false
	}
	switch n := v.value.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// boolean returns the attribute as a known bool.
func (a blockAttrs) boolean(name string) (bool, bool) {
	v, ok := a[name]
	if !ok || !v.known {
		return false, false
	}
	b, ok := v.value.(bool)
	return b, ok
}

// strMap returns the attribute as a map of known string pairs. Entries
// with unevaluable or non-string values are dropped.
func (a blockAttrs) strMap(name string) map[string]string {
	v, ok := a[name]
	if !ok || !v.known {
		return nil
	}
	m, ok := v.value.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// rawOf returns the verbatim expression text of an unevaluable attribute.
func (a blockAttrs) rawOf(name string) (string, bool) {
	v, ok := a[name]
	if !ok || v.known {
		return "", false
	}
	return v.raw, true
}

// ctyToGo converts an evaluated cty value into plain Go values. Unknown
// and null values are handled by the caller before conversion.
func ctyToGo(val cty.Value) any {
	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString()
	case ty == cty.Number:
		f, _ := val.AsBigFloat().Float64()
		return f
	case ty == cty.Bool:
		return val.True()
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		var items []any
		for it := val.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			if !ev.IsKnown() || ev.IsNull() {
				continue
			}
			items = append(items, ctyToGo(ev))
		}
		return items
	case ty.IsMapType() || ty.IsObjectType():
		entries := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			kv, ev := it.Element()
			if !ev.IsKnown() || ev.IsNull() {
				continue
			}
			entries[kv.AsString()] = ctyToGo(ev)
		}
		return entries
	default:
		return nil
	}
}
