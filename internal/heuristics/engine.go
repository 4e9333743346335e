package heuristics

// Item is one recommendation candidate. Fields holds the attributes actions
// target (thc, format, effects, brand, price); Score is the ephemeral
// ranking signal boost and bury act on.
type Item struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields,omitempty"`
	Score  float64        `json:"score,omitempty"`
}

// Field returns the named attribute, nil when absent.
func (i Item) Field(name string) any {
	if i.Fields == nil {
		return nil
	}
	return i.Fields[name]
}

// Directive is a side-channel instruction from a matched message action.
// The candidate list is never altered by these; response construction
// decides what to do with them.
type Directive struct {
	Type          ActionType `json:"type"`
	HeuristicID   string     `json:"heuristic_id"`
	HeuristicName string     `json:"heuristic_name"`
	Message       string     `json:"message,omitempty"`
	Value         any        `json:"value,omitempty"`
}

// MatchResult reports how one heuristic fared during an evaluation.
type MatchResult struct {
	HeuristicID string     `json:"heuristic_id"`
	Name        string     `json:"name"`
	Action      ActionType `json:"action"`
	Matched     bool       `json:"matched"`
}

// EvalResult is the outcome of walking a tenant's heuristics over a
// candidate list.
type EvalResult struct {
	Items      []Item        `json:"items"`
	Matches    []MatchResult `json:"matches"`
	Directives []Directive   `json:"directives,omitempty"`
	Coverage   float64       `json:"coverage"`
}

// AppliedIDs returns the IDs of the heuristics that matched, in evaluation
// order. Outcome recording stores these.
func (r EvalResult) AppliedIDs() []string {
	ids := make([]string, 0, len(r.Matches))
	for _, m := range r.Matches {
		if m.Matched {
			ids = append(ids, m.HeuristicID)
		}
	}
	return ids
}

// Evaluate walks heuristics in the given order, already descending by
// priority, applying each matching action cumulatively to the candidate
// list. Filter and block only ever shrink the list; boost and bury only
// rescore it; directive actions leave it alone. Coverage is the matched
// share, zero when no heuristics exist.
func Evaluate(hs []Heuristic, evalCtx EvalContext, items []Item) EvalResult {
	out := make([]Item, len(items))
	copy(out, items)

	result := EvalResult{
		Items:   out,
		Matches: make([]MatchResult, 0, len(hs)),
	}
	if len(hs) == 0 {
		return result
	}

	matched := 0
	for i := range hs {
		h := &hs[i]
		ok := matchesAll(h.Conditions, evalCtx)
		result.Matches = append(result.Matches, MatchResult{
			HeuristicID: h.ID,
			Name:        h.Name,
			Action:      h.Action.Type,
			Matched:     ok,
		})
		if !ok {
			continue
		}
		matched++
		result.Items = applyAction(result.Items, h, &result.Directives)
	}
	result.Coverage = float64(matched) / float64(len(hs))
	return result
}

// applyAction transforms the candidate list per one matched heuristic.
func applyAction(items []Item, h *Heuristic, directives *[]Directive) []Item {
	action := h.Action
	switch action.Type {
	case ActionFilter:
		kept := items[:0]
		for _, item := range items {
			if compare(action.Operator, item.Field(action.Target), action.Value) {
				kept = append(kept, item)
			}
		}
		return kept

	case ActionBlock:
		kept := items[:0]
		for _, item := range items {
			if looseEqual(item.Field(action.Target), action.Value) {
				continue
			}
			kept = append(kept, item)
		}
		return kept

	case ActionBoost, ActionBury:
		multiplier := action.multiplier()
		for i := range items {
			if !looseEqual(items[i].Field(action.Target), action.Value) {
				continue
			}
			if items[i].Score == 0 {
				items[i].Score = multiplier
			} else {
				items[i].Score *= multiplier
			}
		}
		return items

	case ActionMessagePrepend, ActionMessageAppend, ActionWarn, ActionTag:
		*directives = append(*directives, Directive{
			Type:          action.Type,
			HeuristicID:   h.ID,
			HeuristicName: h.Name,
			Message:       action.Message,
			Value:         action.Value,
		})
		return items

	default:
		return items
	}
}
