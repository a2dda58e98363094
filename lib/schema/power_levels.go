// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "github.com/bureau-foundation/integrations/lib/ref"

// defaultStateLevel is the Matrix protocol default for state_default when
// the power levels event omits it.
const defaultStateLevel = 50

// PowerLevels is a typed representation of the Matrix m.room.power_levels
// state event content.
//
// Pointer-to-int fields distinguish "not set" (nil, omitted from JSON) from
// "explicitly set to 0" (pointer to 0), so protocol defaults apply only when
// the room really left the field out.
type PowerLevels struct {
	Users         map[string]int `json:"users,omitempty"`
	UsersDefault  *int           `json:"users_default,omitempty"`
	Events        map[string]int `json:"events,omitempty"`
	EventsDefault *int           `json:"events_default,omitempty"`
	StateDefault  *int           `json:"state_default,omitempty"`
}

// UserLevel returns the power level for a Matrix user ID. If the user
// has an explicit entry in the Users map, that value is returned.
// Otherwise falls back to UsersDefault, then to 0.
func (powerLevels *PowerLevels) UserLevel(userID ref.UserID) int {
	if level, ok := powerLevels.Users[userID.String()]; ok {
		return level
	}
	if powerLevels.UsersDefault != nil {
		return *powerLevels.UsersDefault
	}
	return 0
}

// StateEventLevel returns the power level required to send a state
// event of the given type: the Events entry if present, otherwise
// StateDefault, otherwise 50.
func (powerLevels *PowerLevels) StateEventLevel(eventType ref.EventType) int {
	if level, ok := powerLevels.Events[eventType.String()]; ok {
		return level
	}
	if powerLevels.StateDefault != nil {
		return *powerLevels.StateDefault
	}
	return defaultStateLevel
}

// CanSendState reports whether userID may send a state event of
// eventType in the room these power levels describe.
func (powerLevels *PowerLevels) CanSendState(userID ref.UserID, eventType ref.EventType) bool {
	return powerLevels.UserLevel(userID) >= powerLevels.StateEventLevel(eventType)
}
