package docstore

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// collectionPattern restricts collection names to lowercase snake_case.
var collectionPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// ValidCollection reports whether name is a usable collection name.
func ValidCollection(name string) bool {
	return collectionPattern.MatchString(name)
}

// Encode converts a typed entity to a Document via a JSON round trip.
// Numeric fields come back as float64, matching what Query filters compare.
func Encode(v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return doc, nil
}

// Decode converts a Document back into a typed entity.
func Decode(doc Document, v any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

// Clone deep-copies a document so callers can mutate the result freely.
func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}
