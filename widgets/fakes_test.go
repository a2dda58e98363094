// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package widgets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/integrations/lib/ref"
	"github.com/bureau-foundation/integrations/lib/schema"
	"github.com/bureau-foundation/integrations/messaging"
)

const testTimeout = 5 * time.Second

var (
	testUser  = ref.MustParseUserID("@operator:example.org")
	otherUser = ref.MustParseUserID("@guest:example.org")
	testRoom  = ref.MustParseRoomID("!widgets:example.org")
	otherRoom = ref.MustParseRoomID("!elsewhere:example.org")
)

// sentStateEvent records one SendStateEvent call.
type sentStateEvent struct {
	roomID    ref.RoomID
	eventType ref.EventType
	stateKey  string
	content   any
}

// fakeSession is an in-memory messaging.Session holding room state
// and recording state event sends.
type fakeSession struct {
	mutex       sync.Mutex
	state       map[ref.RoomID][]messaging.Event
	accountData map[ref.EventType]json.RawMessage
	readErr     error
	sent        []sentStateEvent
	sendErr     error
	nextID      int
}

func newFakeSession() *fakeSession {
	return &fakeSession{state: make(map[ref.RoomID][]messaging.Event)}
}

func (session *fakeSession) UserID() ref.UserID { return testUser }
func (session *fakeSession) Close() error       { return nil }

func (session *fakeSession) WhoAmI(ctx context.Context) (ref.UserID, error) {
	return testUser, nil
}

func (session *fakeSession) GetAccountData(ctx context.Context, eventType ref.EventType) (json.RawMessage, error) {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	if session.readErr != nil {
		return nil, session.readErr
	}
	if document, ok := session.accountData[eventType]; ok {
		return document, nil
	}
	return nil, &messaging.MatrixError{Code: messaging.ErrCodeNotFound, StatusCode: 404}
}

func (session *fakeSession) putAccountData(eventType ref.EventType, document string) {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	if session.accountData == nil {
		session.accountData = make(map[ref.EventType]json.RawMessage)
	}
	session.accountData[eventType] = json.RawMessage(document)
}

func (session *fakeSession) SetAccountData(ctx context.Context, eventType ref.EventType, content any) error {
	return errors.New("fakeSession: account data is read-only")
}

func (session *fakeSession) GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string) (json.RawMessage, error) {
	return nil, &messaging.MatrixError{Code: messaging.ErrCodeNotFound, StatusCode: 404}
}

func (session *fakeSession) GetRoomState(ctx context.Context, roomID ref.RoomID) ([]messaging.Event, error) {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	events, ok := session.state[roomID]
	if !ok {
		return nil, &messaging.MatrixError{Code: messaging.ErrCodeForbidden, Message: "not in room", StatusCode: 403}
	}
	return events, nil
}

func (session *fakeSession) SendStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error) {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	if session.sendErr != nil {
		return ref.EventID{}, session.sendErr
	}
	session.sent = append(session.sent, sentStateEvent{roomID: roomID, eventType: eventType, stateKey: stateKey, content: content})
	session.nextID++
	return ref.MustParseEventID(fmt.Sprintf("$sent%d", session.nextID)), nil
}

func (session *fakeSession) Sync(ctx context.Context, options messaging.SyncOptions) (*messaging.SyncResponse, error) {
	return &messaging.SyncResponse{}, nil
}

func (session *fakeSession) sentEvents() []sentStateEvent {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	return append([]sentStateEvent(nil), session.sent...)
}

var _ messaging.Session = (*fakeSession)(nil)

func stateEvent(eventID string, eventType ref.EventType, stateKey string, sender ref.UserID, content map[string]any) messaging.Event {
	return messaging.Event{
		EventID:  ref.MustParseEventID(eventID),
		Type:     eventType,
		Sender:   sender,
		Content:  content,
		StateKey: &stateKey,
	}
}

func widgetContent(widgetType, name, url string) map[string]any {
	return map[string]any{"type": widgetType, "name": name, "url": url}
}

// powerLevelsEvent grants testUser userLevel with widgets requiring
// widgetLevel.
func powerLevelsEvent(userLevel, widgetLevel int) messaging.Event {
	return stateEvent("$power", schema.MatrixEventTypePowerLevels, "", otherUser, map[string]any{
		"users":  map[string]any{testUser.String(): userLevel},
		"events": map[string]any{string(schema.EventTypeModularWidget): widgetLevel},
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, session *fakeSession) *Service {
	t.Helper()
	return New(Options{Session: session, Logger: discardLogger()})
}

func widgetIDs(widgets []Widget) []string {
	identifiers := make([]string, len(widgets))
	for i, widget := range widgets {
		identifiers[i] = widget.ID
	}
	return identifiers
}

func mustEventID(raw string) ref.EventID {
	return ref.MustParseEventID(raw)
}
