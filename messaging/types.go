// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"

	"github.com/bureau-foundation/integrations/lib/ref"
)

// Event is a Matrix room event as returned by /sync and /state.
type Event struct {
	EventID        ref.EventID    `json:"event_id"`
	Type           ref.EventType  `json:"type"`
	Sender         ref.UserID     `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        map[string]any `json:"content"`
	RoomID         ref.RoomID     `json:"room_id,omitempty"`
	StateKey       *string        `json:"state_key,omitempty"`
}

// IsState reports whether the event carries a state key.
func (e Event) IsState() bool {
	return e.StateKey != nil
}

// SyncOptions controls a /sync request.
type SyncOptions struct {
	Since      string // next_batch token from previous sync; empty for initial sync
	Timeout    int    // long-poll timeout in milliseconds; 0 for immediate return
	SetTimeout bool   // if true, send the timeout parameter (needed to distinguish "not set" from "0")
	Filter     string // filter ID or inline JSON filter
}

// SyncResponse is the top-level response from /sync.
type SyncResponse struct {
	NextBatch   string             `json:"next_batch"`
	AccountData AccountDataSection `json:"account_data"`
	Rooms       RoomsSection       `json:"rooms"`
}

// AccountDataSection holds the global account data events that changed
// since the previous batch (or all of them, on an initial sync).
type AccountDataSection struct {
	Events []AccountDataEvent `json:"events"`
}

// AccountDataEvent is one account data document. Content stays raw so
// each consumer decodes it into its own schema type.
type AccountDataEvent struct {
	Type    ref.EventType   `json:"type"`
	Content json.RawMessage `json:"content"`
}

// RoomsSection contains per-room sync data.
type RoomsSection struct {
	Join map[ref.RoomID]JoinedRoom `json:"join"`
}

// JoinedRoom contains sync data for a room the user has joined.
type JoinedRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// StateEvents returns the room's state changes in the order the
// homeserver applied them: the state section (the state before the
// timeline) followed by state events in the timeline.
func (room JoinedRoom) StateEvents() []Event {
	events := make([]Event, 0, len(room.State.Events)+len(room.Timeline.Events))
	events = append(events, room.State.Events...)
	for _, event := range room.Timeline.Events {
		if event.IsState() {
			events = append(events, event)
		}
	}
	return events
}

// TimelineSection contains timeline events from a sync response.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// StateSection contains state events from a sync response.
type StateSection struct {
	Events []Event `json:"events"`
}

// SendEventResponse is returned by SendStateEvent.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// WhoAmIResponse is returned by WhoAmI.
type WhoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}
