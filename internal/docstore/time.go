package docstore

import (
	"fmt"
	"time"
)

// TimeLayout is the persisted timestamp layout. Fixed-width fractional
// seconds and forced UTC keep lexicographic order equal to chronological
// order, which range filters and OrderBy rely on.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// Timestamp is a time.Time that marshals with the fixed TimeLayout.
type Timestamp time.Time

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return Timestamp(time.Now().UTC())
}

// Time returns the underlying time.Time.
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// IsZero reports whether the timestamp is the zero time.
func (t Timestamp) IsZero() bool {
	return time.Time(t).IsZero()
}

// String returns the fixed-layout form.
func (t Timestamp) String() string {
	return time.Time(t).UTC().Format(TimeLayout)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler. RFC3339 input is accepted so
// hand-written fixtures and older documents still parse.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid timestamp %s", s)
	}
	s = s[1 : len(s)-1]
	parsed, err := time.Parse(TimeLayout, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
	}
	*t = Timestamp(parsed.UTC())
	return nil
}
