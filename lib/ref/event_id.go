// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// EventID is a validated Matrix event ID such as "$abc123xyz" or, in
// old room versions, "$abc:server". The ID of a widget's state event
// is the key of that widget's permission decision, so IDs are treated
// as opaque: only the '$' sigil, a non-empty body, and the absence of
// whitespace and control characters are checked.
//
// The zero value is not valid; use IsZero to check.
type EventID struct {
	id string
}

// ParseEventID validates and wraps a raw event ID.
func ParseEventID(raw string) (EventID, error) {
	switch {
	case raw == "":
		return EventID{}, fmt.Errorf("empty event ID")
	case raw[0] != '$':
		return EventID{}, fmt.Errorf("event ID must start with '$': %q", raw)
	case len(raw) == 1:
		return EventID{}, fmt.Errorf("event ID has no content after '$': %q", raw)
	}
	for i := 1; i < len(raw); i++ {
		if raw[i] <= ' ' || raw[i] == 0x7f {
			return EventID{}, fmt.Errorf("event ID %q: invalid character at position %d", raw, i)
		}
	}
	return EventID{id: raw}, nil
}

// MustParseEventID is like ParseEventID but panics on error. Use in
// tests and static initialization where the input is known-valid.
func MustParseEventID(raw string) EventID {
	e, err := ParseEventID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseEventID(%q): %v", raw, err))
	}
	return e
}

func (e EventID) String() string { return e.id }

// IsZero reports whether the EventID is the zero value. User widgets
// from account data carry no event ID.
func (e EventID) IsZero() bool { return e.id == "" }

// MarshalText implements encoding.TextMarshaler. The zero value
// marshals as an empty string.
func (e EventID) MarshalText() ([]byte, error) {
	return []byte(e.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value.
func (e *EventID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*e = EventID{}
		return nil
	}
	parsed, err := ParseEventID(string(data))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
