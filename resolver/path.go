package resolver

import (
	"encoding/json"
	"strconv"
	"strings"
)

// getPath reads a dotted path ("address.city", "items.0.sku") from v.
func getPath(v any, path string) (any, bool) {
	cur := v
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// setPath writes value at a dotted path inside m, creating intermediate
// objects where the path does not exist yet.
func setPath(m map[string]any, path string, value any) {
	segs := strings.Split(path, ".")
	var cur any = m
	for i, seg := range segs {
		last := i == len(segs)-1
		switch node := cur.(type) {
		case map[string]any:
			if last {
				node[seg] = value
				return
			}
			next, ok := node[seg]
			if !ok || !isContainer(next) {
				next = map[string]any{}
				node[seg] = next
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return
			}
			if last {
				node[idx] = value
				return
			}
			if !isContainer(node[idx]) {
				node[idx] = map[string]any{}
			}
			cur = node[idx]
		}
	}
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

// clone deep-copies maps and slices so resolution never mutates values it
// does not own.
func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = clone(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = clone(val)
		}
		return out
	default:
		return v
	}
}

// isEmpty reports whether a looked-up value counts as "not found".
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// toGeneric converts a capability result (struct, map, scalar) into the
// generic JSON shape so fields can be extracted by path.
func toGeneric(v any) (any, error) {
	switch v.(type) {
	case map[string]any, []any, nil:
		return v, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
