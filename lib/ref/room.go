// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// RoomID is a validated Matrix room ID: "!opaque:example.org" in
// room versions up to 11, "!<hash>" with no server suffix from room
// version 12 on.
//
// Room IDs are server-assigned opaque identifiers. Code in this module
// never constructs them; they come from the homeserver or from
// operator input and are parsed into this type at the boundary. Only
// the '!' sigil, a non-empty body without whitespace or control
// characters, and (when a ':' is present) non-empty parts on both
// sides of it are checked.
//
// RoomID is an immutable value type. The zero value is not valid;
// use IsZero to check.
type RoomID struct {
	id string
}

// ParseRoomID validates and wraps a raw Matrix room ID string.
func ParseRoomID(raw string) (RoomID, error) {
	switch {
	case raw == "":
		return RoomID{}, fmt.Errorf("empty room ID")
	case raw[0] != '!':
		return RoomID{}, fmt.Errorf("room ID must start with '!': %q", raw)
	case len(raw) == 1:
		return RoomID{}, fmt.Errorf("room ID has no content after '!': %q", raw)
	}
	for i := 1; i < len(raw); i++ {
		if raw[i] <= ' ' || raw[i] == 0x7f {
			return RoomID{}, fmt.Errorf("room ID %q: invalid character at position %d", raw, i)
		}
	}

	colonIndex := strings.IndexByte(raw[1:], ':')
	if colonIndex < 0 {
		return RoomID{id: raw}, nil
	}
	if colonIndex == 0 {
		return RoomID{}, fmt.Errorf("room ID has empty local part: %q", raw)
	}
	if raw[1+colonIndex+1:] == "" {
		return RoomID{}, fmt.Errorf("room ID has empty server name: %q", raw)
	}
	return RoomID{id: raw}, nil
}

// MustParseRoomID is like ParseRoomID but panics on error. Use in
// tests and static initialization where the input is known-valid.
func MustParseRoomID(raw string) RoomID {
	r, err := ParseRoomID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseRoomID(%q): %v", raw, err))
	}
	return r
}

// String returns the full room ID string (e.g., "!abc123:example.org").
func (r RoomID) String() string { return r.id }

// IsZero reports whether the RoomID is the zero value (uninitialized).
func (r RoomID) IsZero() bool { return r.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (r RoomID) MarshalText() ([]byte, error) {
	return []byte(r.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Validates the
// room ID format. An empty input produces the zero value.
func (r *RoomID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*r = RoomID{}
		return nil
	}
	parsed, err := ParseRoomID(string(data))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
