package docstore

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Match reports whether doc satisfies every filter. It is the in-process
// evaluator used by the memory store and by callers that post-filter results
// from stores without composite filter support.
func Match(doc Document, filters []Filter) (bool, error) {
	for _, f := range filters {
		ok, err := matchOne(doc, f)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchOne(doc Document, f Filter) (bool, error) {
	val, present := doc[f.Field]
	switch f.Op {
	case OpEq:
		if !present {
			return false, nil
		}
		return compare(val, f.Value) == 0, nil
	case OpLt, OpLte, OpGt, OpGte:
		if !present {
			return false, nil
		}
		c := compare(val, f.Value)
		switch f.Op {
		case OpLt:
			return c < 0, nil
		case OpLte:
			return c <= 0, nil
		case OpGt:
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	case OpIn:
		if !present {
			return false, nil
		}
		set, ok := f.Value.([]any)
		if !ok {
			return false, fmt.Errorf("%w: in requires a slice value", ErrUnsupportedFilter)
		}
		for _, candidate := range set {
			if compare(val, candidate) == 0 {
				return true, nil
			}
		}
		return false, nil
	case OpContains:
		if !present {
			return false, nil
		}
		switch target := val.(type) {
		case []any:
			for _, elem := range target {
				if compare(elem, f.Value) == 0 {
					return true, nil
				}
			}
			return false, nil
		case string:
			needle, ok := f.Value.(string)
			if !ok {
				return false, nil
			}
			return strings.Contains(target, needle), nil
		default:
			return false, nil
		}
	default:
		return false, fmt.Errorf("%w: %q", ErrUnsupportedFilter, f.Op)
	}
}

// compare orders two document values. Numbers order numerically, strings and
// bools by their natural order; mismatched types order by type name so sorts
// stay stable. Timestamps normalize to their fixed-layout string so filter
// values match the JSON-encoded form documents carry.
func compare(a, b any) int {
	a, b = normalize(a), normalize(b)
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs)
	}
	ab, aok := a.(bool)
	bb, bok := b.(bool)
	if aok && bok {
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	}
	return strings.Compare(fmt.Sprintf("%T", a), fmt.Sprintf("%T", b))
}

func normalize(v any) any {
	switch t := v.(type) {
	case Timestamp:
		return t.String()
	case time.Time:
		return Timestamp(t).String()
	default:
		return v
	}
}

func asFloat(v any) (float64, bool) {
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
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// sortDocs orders docs by field (then by ID for determinism) honoring desc.
func sortDocs(docs []Document, field string, desc bool) {
	if field == "" {
		field = "id"
	}
	sort.SliceStable(docs, func(i, j int) bool {
		c := compare(docs[i][field], docs[j][field])
		if c == 0 {
			c = compare(docs[i]["id"], docs[j]["id"])
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

// applyCursor trims docs so results resume strictly after the cursor ID.
// An unknown cursor yields an empty page.
func applyCursor(docs []Document, startAfter string) []Document {
	if startAfter == "" {
		return docs
	}
	for i, doc := range docs {
		if id, _ := doc["id"].(string); id == startAfter {
			return docs[i+1:]
		}
	}
	return nil
}
