// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bureau-foundation/integrations/lib/ref"
)

// GetState reads a typed state event from a Matrix room. It calls
// GetStateEvent on the session and unmarshals the raw JSON content into
// T:
//
//	powerLevels, err := messaging.GetState[schema.PowerLevels](ctx, session, roomID, schema.MatrixEventTypePowerLevels, "")
//
// Returns an error if the state event does not exist (M_NOT_FOUND) or
// if the content cannot be unmarshaled into T.
func GetState[T any](ctx context.Context, session Session, roomID ref.RoomID, eventType ref.EventType, stateKey string) (T, error) {
	var zero T
	content, err := session.GetStateEvent(ctx, roomID, eventType, stateKey)
	if err != nil {
		return zero, fmt.Errorf("reading %s[%q] from room %s: %w", eventType, stateKey, roomID, err)
	}
	var result T
	if err := json.Unmarshal(content, &result); err != nil {
		return zero, fmt.Errorf("unmarshaling %s from room %s: %w", eventType, roomID, err)
	}
	return result, nil
}

// GetAccountData reads a typed account data document from store. The
// boolean result is false when the user has never set the type
// (M_NOT_FOUND); in that case the error is nil and T is zero.
func GetAccountData[T any](ctx context.Context, store AccountDataStore, eventType ref.EventType) (T, bool, error) {
	var zero T
	content, err := store.GetAccountData(ctx, eventType)
	if err != nil {
		if IsNotFound(err) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("reading account data %s: %w", eventType, err)
	}
	var result T
	if err := json.Unmarshal(content, &result); err != nil {
		return zero, false, fmt.Errorf("unmarshaling account data %s: %w", eventType, err)
	}
	return result, true, nil
}
