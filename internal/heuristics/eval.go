package heuristics

import (
	"strings"

	"github.com/leaflinelabs/intuition/internal/memory"
)

// EvalContext is the nested attribute map conditions resolve against.
// Documented paths:
//
//	customer.is_new             bool
//	customer.interaction_count  int
//	customer.potency_tolerance  string (low|medium|high)
//	customer.favorite_effects   []string
//	customer.avoid_effects      []string
//	customer.preferred_formats  []string
//	customer.clusters           []string
//	session.*                   caller-supplied attributes
//
// Contexts are built by NewEvalContext rather than assembled by hand so
// every decision resolves the same paths.
type EvalContext map[string]any

// NewEvalContext builds the evaluation context from a customer context and
// the caller's session attributes. A nil profile yields new-customer
// defaults; a nil session yields an empty session map.
func NewEvalContext(customer memory.CustomerContext, session map[string]any) EvalContext {
	cust := map[string]any{
		"is_new":            customer.IsNewCustomer,
		"interaction_count": 0,
		"potency_tolerance": string(memory.PotencyMedium),
		"favorite_effects":  []string{},
		"avoid_effects":     []string{},
		"preferred_formats": []string{},
		"clusters":          []string{},
	}
	if p := customer.Profile; p != nil {
		cust["interaction_count"] = p.InteractionCount
		cust["potency_tolerance"] = string(p.PotencyTolerance)
		cust["favorite_effects"] = p.FavoriteEffects
		cust["avoid_effects"] = p.AvoidEffects
		cust["preferred_formats"] = p.PreferredFormats
		cust["clusters"] = p.ClusterLabels
	}
	if session == nil {
		session = map[string]any{}
	}
	return EvalContext{
		"customer": cust,
		"session":  session,
	}
}

// Resolve walks a dotted path through nested maps. The second return is
// false when any segment is missing or a non-map is traversed into.
func (c EvalContext) Resolve(path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var current any = map[string]any(c)
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// matchesAll reports whether every condition holds. A heuristic with no
// conditions matches unconditionally; a condition whose target does not
// resolve fails.
func matchesAll(conditions []Condition, evalCtx EvalContext) bool {
	for _, cond := range conditions {
		actual, ok := evalCtx.Resolve(cond.Target)
		if !ok {
			return false
		}
		if !compare(cond.Operator, actual, cond.Value) {
			return false
		}
	}
	return true
}
