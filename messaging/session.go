// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"

	"github.com/bureau-foundation/integrations/lib/ref"
)

// AccountDataStore reads and writes the session user's global account
// data documents.
type AccountDataStore interface {
	GetAccountData(ctx context.Context, eventType ref.EventType) (json.RawMessage, error)
	SetAccountData(ctx context.Context, eventType ref.EventType, content any) error
}

// Session is the authenticated Matrix surface consumed by the
// integration registry, the widget service, and the sync loop.
// *DirectSession implements it against a real homeserver; tests
// substitute in-memory fakes.
type Session interface {
	UserID() ref.UserID
	Close() error
	WhoAmI(ctx context.Context) (ref.UserID, error)

	AccountDataStore

	GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string) (json.RawMessage, error)
	GetRoomState(ctx context.Context, roomID ref.RoomID) ([]Event, error)
	SendStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error)

	Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error)
}

var _ Session = (*DirectSession)(nil)
