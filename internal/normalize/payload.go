package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Accessors over a decoded JSON tree. None of them panic: a missing key or a
// value of the wrong type reads as "absent".

// object returns v as a JSON object, or an empty one.
func object(v any) map[string]any {
	if m, ok := v.(map[string]any); ok && m != nil {
		return m
	}
	return map[string]any{}
}

// lookup walks a dotted path ("data.email") through nested objects.
func lookup(root map[string]any, path string) (any, bool) {
	cur := root
	parts := strings.Split(path, ".")
	for i, p := range parts {
		v, ok := cur[p]
		if !ok || v == nil {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		cur = object(v)
	}
	return nil, false
}

// scalarString coerces strings, numbers and booleans. Objects, arrays and
// empty strings are absent.
func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		return s, s != ""
	case json.Number:
		return x.String(), x.String() != ""
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "", false
		}
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return scalarString(float64(x))
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case bool:
		return strconv.FormatBool(x), true
	}
	return "", false
}

// firstString returns the first path that yields a usable scalar.
func firstString(root map[string]any, paths ...string) (string, bool) {
	for _, p := range paths {
		if v, ok := lookup(root, p); ok {
			if s, ok := scalarString(v); ok {
				return s, true
			}
		}
	}
	return "", false
}

// firstValue returns the first present value at any of paths.
func firstValue(root map[string]any, paths ...string) (any, bool) {
	for _, p := range paths {
		if v, ok := lookup(root, p); ok {
			return v, true
		}
	}
	return nil, false
}

// number extracts a float from numeric JSON values.
func number(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	case float64:
		return x, !math.IsNaN(x) && !math.IsInf(x, 0)
	case float32:
		return number(float64(x))
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}
