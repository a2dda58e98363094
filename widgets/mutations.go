// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package widgets

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/integrations/lib/async"
	"github.com/bureau-foundation/integrations/lib/ref"
	"github.com/bureau-foundation/integrations/lib/schema"
)

// CreateRoomWidget sends an im.vector.modular.widgets state event for
// widgetID in roomID with content passed through unmodified. On
// success the widget is added to the cache (so RoomWidgets sees it
// before the /sync echo) and delivered to callback.OnSuccess.
//
// Fails with ErrPermissionDenied, without sending anything, when
// HasPermissionsToHandleWidgets(roomID) is false.
func (s *Service) CreateRoomWidget(roomID ref.RoomID, widgetID string, content map[string]any, callback async.Callback[Widget]) *async.Request {
	if widgetID == "" {
		return async.Fail(errors.New("widgets: widget ID is required"), callback)
	}
	if len(content) == 0 {
		return async.Fail(errors.New("widgets: widget content is required"), callback)
	}
	if !s.HasPermissionsToHandleWidgets(roomID) {
		return async.Fail(fmt.Errorf("widgets: creating widget %q in %s: %w", widgetID, roomID, ErrPermissionDenied), callback)
	}
	widget, err := newWidget(widgetID, schema.EventTypeModularWidget, content)
	if err != nil {
		return async.Fail(fmt.Errorf("widgets: invalid content for widget %q: %w", widgetID, err), callback)
	}
	widget.RoomID = roomID
	widget.Sender = s.userID

	return async.Go(s.ctx,
		func(ctx context.Context) (Widget, error) {
			eventID, err := s.session.SendStateEvent(ctx, roomID, schema.EventTypeModularWidget, widgetID, content)
			if err != nil {
				return Widget{}, fmt.Errorf("widgets: creating widget %q in %s: %w", widgetID, roomID, err)
			}
			created := widget
			created.EventID = eventID
			return created, nil
		},
		func(created Widget) {
			s.storeWidget(created)
			s.logger.Info("room widget created", "room_id", roomID, "widget_id", widgetID, "event_id", created.EventID)
		},
		callback,
	)
}

// DestroyRoomWidget deactivates widgetID in roomID by sending empty
// content under the event type currently declaring it. The widget
// stays listed with Active false.
//
// Fails with ErrPermissionDenied when HasPermissionsToHandleWidgets
// is false, and with ErrUnknownWidget when the room has no such
// widget. Neither failure sends anything.
func (s *Service) DestroyRoomWidget(roomID ref.RoomID, widgetID string, callback async.Callback[struct{}]) *async.Request {
	if !s.HasPermissionsToHandleWidgets(roomID) {
		return async.Fail(fmt.Errorf("widgets: destroying widget %q in %s: %w", widgetID, roomID, ErrPermissionDenied), callback)
	}
	s.mutex.RLock()
	existing, found := s.rooms[roomID].find(widgetID)
	s.mutex.RUnlock()
	if !found {
		return async.Fail(fmt.Errorf("widgets: destroying widget %q in %s: %w", widgetID, roomID, ErrUnknownWidget), callback)
	}

	return async.Go(s.ctx,
		func(ctx context.Context) (ref.EventID, error) {
			eventID, err := s.session.SendStateEvent(ctx, roomID, existing.EventType, widgetID, map[string]any{})
			if err != nil {
				return ref.EventID{}, fmt.Errorf("widgets: destroying widget %q in %s: %w", widgetID, roomID, err)
			}
			return eventID, nil
		},
		func(eventID ref.EventID) {
			s.storeWidget(Widget{
				ID:        widgetID,
				Content:   map[string]any{},
				RoomID:    roomID,
				Sender:    s.userID,
				EventID:   eventID,
				EventType: existing.EventType,
			})
			s.logger.Info("room widget destroyed", "room_id", roomID, "widget_id", widgetID, "event_id", eventID)
		},
		async.Callback[ref.EventID]{
			OnSuccess: func(ref.EventID) {
				if callback.OnSuccess != nil {
					callback.OnSuccess(struct{}{})
				}
			},
			OnFailure: callback.OnFailure,
		},
	)
}

// storeWidget writes a locally produced widget into the room cache and
// notifies the room's subscribers.
func (s *Service) storeWidget(widget Widget) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	room := s.rooms[widget.RoomID]
	if room == nil {
		room = newRoomState()
		s.rooms[widget.RoomID] = room
	}
	room.widgets[widgetKey{eventType: widget.EventType, id: widget.ID}] = widget
	s.publishRoomLocked(widget.RoomID)
}
