// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package widgets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/integrations/lib/ref"
	"github.com/bureau-foundation/integrations/lib/schema"
	"github.com/bureau-foundation/integrations/messaging"
)

// ErrPermissionDenied is returned through a mutation's OnFailure when
// the session user may not send widget state events in the room.
var ErrPermissionDenied = errors.New("widgets: not permitted to handle widgets in this room")

// ErrUnknownWidget is returned through DestroyRoomWidget's OnFailure
// when the room has no widget with the requested ID.
var ErrUnknownWidget = errors.New("widgets: unknown widget")

// Options configures a Service.
type Options struct {
	// Session sends widget state events and reads full room state
	// for LoadRoom. Its UserID is the user whose permissions
	// HasPermissionsToHandleWidgets checks. Required.
	Session messaging.Session

	// Context is passed to the state event sends of mutations. If
	// nil, context.Background() is used.
	Context context.Context

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// widgetKey identifies one widget-declaring state event.
type widgetKey struct {
	eventType ref.EventType
	id        string
}

// roomState is the cached widget-relevant state of one room.
type roomState struct {
	widgets     map[widgetKey]Widget
	powerLevels *schema.PowerLevels // nil until observed
}

func newRoomState() *roomState {
	return &roomState{widgets: make(map[widgetKey]Widget)}
}

// list returns one widget per ID. When an ID is declared under
// several event types the earliest type in schema.WidgetEventTypes
// wins.
func (room *roomState) list() []Widget {
	if room == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(room.widgets))
	widgets := make([]Widget, 0, len(room.widgets))
	for _, eventType := range schema.WidgetEventTypes {
		for key, widget := range room.widgets {
			if key.eventType != eventType {
				continue
			}
			if _, duplicate := seen[key.id]; duplicate {
				continue
			}
			seen[key.id] = struct{}{}
			widgets = append(widgets, widget)
		}
	}
	return widgets
}

// find returns the widget that list would return for id.
func (room *roomState) find(id string) (Widget, bool) {
	if room == nil {
		return Widget{}, false
	}
	for _, eventType := range schema.WidgetEventTypes {
		if widget, ok := room.widgets[widgetKey{eventType: eventType, id: id}]; ok {
			return widget, true
		}
	}
	return Widget{}, false
}

// Service caches room and user widgets and performs widget mutations.
// Safe for concurrent use.
type Service struct {
	session messaging.Session
	userID  ref.UserID
	ctx     context.Context
	logger  *slog.Logger

	// mutex guards the cache and the subscription registry.
	// Subscriptions are notified while it is held; delivery never
	// blocks.
	mutex         sync.RWMutex
	rooms         map[ref.RoomID]*roomState
	userWidgets   []Widget
	subscriptions map[*Subscription]struct{}
}

// New creates a Service with an empty cache.
func New(options Options) *Service {
	if options.Session == nil {
		panic("widgets: Options.Session is required")
	}
	ctx := options.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		session:       options.Session,
		userID:        options.Session.UserID(),
		ctx:           ctx,
		logger:        logger,
		rooms:         make(map[ref.RoomID]*roomState),
		subscriptions: make(map[*Subscription]struct{}),
	}
}

// RoomWidgets returns the cached widgets of roomID that match query,
// sorted by widget ID. Deactivated widgets are included; check
// Widget.Active.
func (s *Service) RoomWidgets(roomID ref.RoomID, query Query) []Widget {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return query.filter(s.rooms[roomID].list())
}

// UserWidgets returns the cached user widgets that match query,
// sorted by widget ID.
func (s *Service) UserWidgets(query Query) []Widget {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return query.filter(s.userWidgets)
}

// WatchRoomWidgets returns a live RoomWidgets query. The current view
// is available on C immediately. Panics if roomID is zero; user
// widgets are watched with WatchUserWidgets.
func (s *Service) WatchRoomWidgets(roomID ref.RoomID, query Query) *Subscription {
	if roomID.IsZero() {
		panic("widgets: WatchRoomWidgets requires a room ID")
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	subscription := newRoomSubscription(s, roomID, query)
	s.subscriptions[subscription] = struct{}{}
	subscription.deliver(query.filter(s.rooms[roomID].list()))
	return subscription
}

// WatchUserWidgets returns a live UserWidgets query. The current view
// is available on C immediately.
func (s *Service) WatchUserWidgets(query Query) *Subscription {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	subscription := newUserSubscription(s, query)
	s.subscriptions[subscription] = struct{}{}
	subscription.deliver(query.filter(s.userWidgets))
	return subscription
}

func (s *Service) unsubscribe(subscription *Subscription) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.subscriptions, subscription)
}

// publishRoomLocked delivers the new view of roomID to its
// subscribers. Caller holds s.mutex.
func (s *Service) publishRoomLocked(roomID ref.RoomID) {
	widgets := s.rooms[roomID].list()
	for subscription := range s.subscriptions {
		if subscription.watchesRoom(roomID) {
			subscription.deliver(subscription.query.filter(widgets))
		}
	}
}

// publishUserLocked delivers the new user widget view to user widget
// subscribers. Caller holds s.mutex.
func (s *Service) publishUserLocked() {
	for subscription := range s.subscriptions {
		if subscription.user {
			subscription.deliver(subscription.query.filter(s.userWidgets))
		}
	}
}

// HasPermissionsToHandleWidgets reports whether the session user's
// power level in roomID allows sending im.vector.modular.widgets state
// events. Rooms whose power levels have not been observed report
// false.
func (s *Service) HasPermissionsToHandleWidgets(roomID ref.RoomID) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	room := s.rooms[roomID]
	if room == nil || room.powerLevels == nil {
		return false
	}
	return room.powerLevels.CanSendState(s.userID, schema.EventTypeModularWidget)
}

// LoadRoom replaces the cached state of roomID with the room's full
// current state from the homeserver.
func (s *Service) LoadRoom(ctx context.Context, roomID ref.RoomID) error {
	events, err := s.session.GetRoomState(ctx, roomID)
	if err != nil {
		return fmt.Errorf("widgets: loading state of %s: %w", roomID, err)
	}

	room := newRoomState()
	for _, event := range events {
		s.applyStateEvent(room, roomID, event)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.rooms[roomID] = room
	s.publishRoomLocked(roomID)
	s.logger.Debug("room widgets loaded", "room_id", roomID, "widgets", len(room.widgets))
	return nil
}

// LoadUserWidgets replaces the cached user widgets with the m.widgets
// account data from the homeserver. An absent document means the user
// has no widgets. Malformed entries are logged and skipped.
func (s *Service) LoadUserWidgets(ctx context.Context) error {
	data, err := s.session.GetAccountData(ctx, schema.AccountDataTypeWidgets)
	if err != nil && !messaging.IsNotFound(err) {
		return fmt.Errorf("widgets: loading user widgets: %w", err)
	}
	content := schema.UserWidgetsContent{}
	if err == nil {
		decoded, skipped, err := schema.DecodeUserWidgets(data)
		if err != nil {
			return fmt.Errorf("widgets: loading user widgets: %w", err)
		}
		s.logSkippedUserWidgets(skipped)
		content = decoded
	}
	s.setUserWidgets(content)
	s.logger.Debug("user widgets loaded", "widgets", len(content))
	return nil
}

// HandleRoomState ingests state events of roomID from /sync, in the
// order the homeserver applied them. Subscribers of the room are
// notified once if any widget changed.
func (s *Service) HandleRoomState(ctx context.Context, roomID ref.RoomID, events []messaging.Event) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	room := s.rooms[roomID]
	if room == nil {
		room = newRoomState()
		s.rooms[roomID] = room
	}
	changed := false
	for _, event := range events {
		if s.applyStateEvent(room, roomID, event) {
			changed = true
		}
	}
	if changed {
		s.publishRoomLocked(roomID)
	}
}

// applyStateEvent updates room with one state event and reports
// whether a widget changed. Non-state events and unrelated types are
// ignored; malformed content is logged and skipped.
func (s *Service) applyStateEvent(room *roomState, roomID ref.RoomID, event messaging.Event) bool {
	if event.StateKey == nil {
		return false
	}
	switch {
	case event.Type == schema.MatrixEventTypePowerLevels:
		powerLevels, err := decodeContent[schema.PowerLevels](event.Content)
		if err != nil {
			s.logger.Warn("ignoring malformed power levels", "room_id", roomID, "event_id", event.EventID, "error", err)
			return false
		}
		room.powerLevels = &powerLevels
		return false

	case schema.IsWidgetEventType(event.Type):
		widget, err := newWidget(*event.StateKey, event.Type, event.Content)
		if err != nil {
			s.logger.Warn("ignoring malformed widget", "room_id", roomID, "event_id", event.EventID, "widget_id", *event.StateKey, "error", err)
			return false
		}
		widget.RoomID = roomID
		widget.Sender = event.Sender
		widget.EventID = event.EventID
		room.widgets[widgetKey{eventType: event.Type, id: widget.ID}] = widget
		return true
	}
	return false
}

// HandleAccountData ingests global account data events from /sync.
// Only m.widgets is relevant; user widget subscribers are notified
// when it arrives.
func (s *Service) HandleAccountData(ctx context.Context, events []messaging.AccountDataEvent) {
	for _, event := range events {
		if event.Type != schema.AccountDataTypeWidgets {
			continue
		}
		content, skipped, err := schema.DecodeUserWidgets(event.Content)
		if err != nil {
			s.logger.Warn("ignoring malformed account data", "event_type", event.Type, "error", err)
			continue
		}
		s.logSkippedUserWidgets(skipped)
		s.setUserWidgets(content)
	}
}

func (s *Service) logSkippedUserWidgets(skipped map[string]error) {
	for identifier, err := range skipped {
		s.logger.Warn("ignoring malformed user widget", "widget_id", identifier, "error", err)
	}
}

func (s *Service) setUserWidgets(content schema.UserWidgetsContent) {
	widgets := make([]Widget, 0, len(content))
	for _, id := range content.SortedIDs() {
		entry := content[id]
		eventType := entry.Type
		if eventType == "" {
			eventType = schema.EventTypeWidget
		}
		widget, err := newWidget(id, eventType, entry.Content)
		if err != nil {
			s.logger.Warn("ignoring malformed user widget", "widget_id", id, "error", err)
			continue
		}
		if entry.Sender != "" {
			sender, err := ref.ParseUserID(entry.Sender)
			if err != nil {
				s.logger.Debug("user widget has unparseable sender", "widget_id", id, "sender", entry.Sender, "error", err)
			} else {
				widget.Sender = sender
			}
		}
		widgets = append(widgets, widget)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.userWidgets = widgets
	s.publishUserLocked()
}

// decodeContent converts free-form event content into T.
func decodeContent[T any](content map[string]any) (T, error) {
	var value T
	data, err := json.Marshal(content)
	if err != nil {
		return value, err
	}
	err = json.Unmarshal(data, &value)
	return value, err
}
