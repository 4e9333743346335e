package heuristics

import (
	"reflect"
	"strings"
)

// compare evaluates one operator against an actual value from the context
// or a candidate item. A missing or incomparable value fails the predicate
// rather than erroring: heuristics are advisory and must never take down a
// decision.
func compare(op Operator, actual, expected any) bool {
	switch op {
	case OpEq:
		return looseEqual(actual, expected)
	case OpNeq:
		return !looseEqual(actual, expected)
	case OpLt:
		a, b, ok := bothNumeric(actual, expected)
		return ok && a < b
	case OpLte:
		a, b, ok := bothNumeric(actual, expected)
		return ok && a <= b
	case OpGt:
		a, b, ok := bothNumeric(actual, expected)
		return ok && a > b
	case OpGte:
		a, b, ok := bothNumeric(actual, expected)
		return ok && a >= b
	case OpIn:
		return listContains(expected, actual)
	case OpNin:
		return !listContains(expected, actual)
	case OpContains:
		if listContains(actual, expected) {
			return true
		}
		s, okS := actual.(string)
		sub, okSub := expected.(string)
		return okS && okSub && strings.Contains(s, sub)
	default:
		return false
	}
}

// looseEqual compares across the numeric types JSON decoding and typed
// construction produce, then falls back to deep equality.
func looseEqual(a, b any) bool {
	if fa, fb, ok := bothNumeric(a, b); ok {
		return fa == fb
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		return ok && sa == sb
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ba == bb
	}
	return reflect.DeepEqual(a, b)
}

// listContains reports whether list, a []string or []any, has an element
// loosely equal to v.
func listContains(list, v any) bool {
	switch items := list.(type) {
	case []string:
		for _, item := range items {
			if looseEqual(item, v) {
				return true
			}
		}
	case []any:
		for _, item := range items {
			if looseEqual(item, v) {
				return true
			}
		}
	case []float64:
		for _, item := range items {
			if looseEqual(item, v) {
				return true
			}
		}
	}
	return false
}

func bothNumeric(a, b any) (float64, float64, bool) {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	return fa, fb, okA && okB
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
