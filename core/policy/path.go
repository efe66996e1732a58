package policy

import (
	"strconv"
	"strings"
)

// resolvePath walks a dotted path through the context and returns every
// value it reaches. A `*` segment fans out over list elements or object
// values; numeric segments index lists. A path that reaches nothing
// returns an empty slice, which every operator treats as false.
func resolvePath(root Value, path string) []Value {
	current := []Value{root}
	for _, segment := range strings.Split(path, ".") {
		if segment == "" {
			return nil
		}
		var next []Value
		for _, v := range current {
			next = append(next, step(v, segment)...)
		}
		if len(next) == 0 {
			return nil
		}
		current = next
	}
	return current
}

func step(v Value, segment string) []Value {
	if segment == "*" {
		if list, ok := v.AsList(); ok {
			return list
		}
		if obj, ok := v.AsObject(); ok {
			out := make([]Value, 0, len(obj))
			for _, e := range obj {
				out = append(out, e)
			}
			return out
		}
		return nil
	}
	if obj, ok := v.AsObject(); ok {
		if child, exists := obj[segment]; exists {
			return []Value{child}
		}
		return nil
	}
	if list, ok := v.AsList(); ok {
		idx, err := strconv.Atoi(segment)
		if err != nil || idx < 0 || idx >= len(list) {
			return nil
		}
		return []Value{list[idx]}
	}
	return nil
}
