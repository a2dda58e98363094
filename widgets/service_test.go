// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package widgets

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/bureau-foundation/integrations/lib/schema"
	"github.com/bureau-foundation/integrations/lib/testutil"
	"github.com/bureau-foundation/integrations/messaging"
)

func seededService(t *testing.T, session *fakeSession) *Service {
	t.Helper()
	service := newTestService(t, session)
	service.HandleRoomState(t.Context(), testRoom, []messaging.Event{
		powerLevelsEvent(100, 50),
		stateEvent("$jitsi", schema.EventTypeModularWidget, "jitsi1", otherUser, widgetContent("jitsi", "Call", "https://meet.example.org/call")),
		stateEvent("$etherpad", schema.EventTypeModularWidget, "pad", otherUser, widgetContent("etherpad", "Notes", "https://pad.example.org/p/notes")),
		stateEvent("$grafana", schema.EventTypeWidget, "dashboard", otherUser, widgetContent("m.custom", "Dashboard", "https://grafana.example.org/")),
		stateEvent("$gone", schema.EventTypeModularWidget, "old", otherUser, map[string]any{}),
	})
	return service
}

func TestRoomWidgetsQuery(t *testing.T) {
	service := seededService(t, newFakeSession())

	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{"no filter", Query{}, []string{"dashboard", "jitsi1", "old", "pad"}},
		{"by ID", Query{WidgetID: "pad"}, []string{"pad"}},
		{"unknown ID", Query{WidgetID: "missing"}, []string{}},
		{"include jitsi", Query{Types: NewTypeSet("jitsi")}, []string{"jitsi1"}},
		{"exclude jitsi", Query{ExcludedTypes: NewTypeSet("jitsi")}, []string{"dashboard", "old", "pad"}},
		{"include and exclude jitsi", Query{Types: NewTypeSet("jitsi"), ExcludedTypes: NewTypeSet("jitsi")}, []string{}},
		{"include two types", Query{Types: NewTypeSet("jitsi", "etherpad")}, []string{"jitsi1", "pad"}},
		{"empty include set", Query{Types: NewTypeSet()}, []string{}},
		{"ID and type disagree", Query{WidgetID: "pad", Types: NewTypeSet("jitsi")}, []string{}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := widgetIDs(service.RoomWidgets(testRoom, test.query))
			if !slices.Equal(got, test.want) {
				t.Errorf("RoomWidgets() = %v, want %v", got, test.want)
			}
		})
	}
}

func TestRoomWidgetFields(t *testing.T) {
	service := seededService(t, newFakeSession())

	widgets := service.RoomWidgets(testRoom, Query{WidgetID: "jitsi1"})
	if len(widgets) != 1 {
		t.Fatalf("got %d widgets, want 1", len(widgets))
	}
	widget := widgets[0]
	if widget.Type != "jitsi" || widget.Name != "Call" || widget.URL != "https://meet.example.org/call" {
		t.Errorf("content fields = %+v", widget)
	}
	if widget.RoomID != testRoom || widget.Sender != otherUser || widget.EventID.String() != "$jitsi" {
		t.Errorf("event fields = %+v", widget)
	}
	if widget.EventType != schema.EventTypeModularWidget || !widget.Active || widget.IsUserWidget() {
		t.Errorf("widget = %+v", widget)
	}

	old := service.RoomWidgets(testRoom, Query{WidgetID: "old"})
	if len(old) != 1 || old[0].Active {
		t.Errorf("deactivated widget = %+v, want listed and inactive", old)
	}

	if widgets := service.RoomWidgets(otherRoom, Query{}); len(widgets) != 0 {
		t.Errorf("unknown room widgets = %v", widgets)
	}
}

func TestStandardWidgetEventTypeWins(t *testing.T) {
	service := newTestService(t, newFakeSession())
	service.HandleRoomState(t.Context(), testRoom, []messaging.Event{
		stateEvent("$legacy", schema.EventTypeModularWidget, "shared", otherUser, widgetContent("legacy", "Legacy", "https://legacy.example.org/")),
		stateEvent("$standard", schema.EventTypeWidget, "shared", otherUser, widgetContent("standard", "Standard", "https://standard.example.org/")),
	})

	widgets := service.RoomWidgets(testRoom, Query{})
	if len(widgets) != 1 {
		t.Fatalf("got %d widgets, want 1 per ID", len(widgets))
	}
	if widgets[0].EventType != schema.EventTypeWidget || widgets[0].Type != "standard" {
		t.Errorf("widget = %+v, want the m.widget declaration", widgets[0])
	}
}

func TestMalformedWidgetSkipped(t *testing.T) {
	service := newTestService(t, newFakeSession())
	subscription := service.WatchRoomWidgets(testRoom, Query{})
	defer subscription.Close()
	testutil.RequireReceive(t, subscription.C, testTimeout, "initial view")

	service.HandleRoomState(t.Context(), testRoom, []messaging.Event{
		stateEvent("$bad", schema.EventTypeModularWidget, "bad", otherUser, map[string]any{"type": 42, "url": "https://x.example.org/"}),
		{EventID: mustEventID("$message"), Type: schema.EventTypeModularWidget, Content: widgetContent("jitsi", "", "https://x")},
	})

	if widgets := service.RoomWidgets(testRoom, Query{}); len(widgets) != 0 {
		t.Errorf("malformed or stateless events produced widgets: %v", widgets)
	}
	select {
	case view := <-subscription.C:
		t.Errorf("no-op update delivered view %v", view)
	default:
	}
}

func TestUserWidgets(t *testing.T) {
	service := newTestService(t, newFakeSession())
	content := schema.UserWidgetsContent{
		"stickers": {
			Type:     schema.EventTypeWidget,
			StateKey: "stickers",
			Sender:   testUser.String(),
			Content:  widgetContent("m.stickerpicker", "Stickers", "https://stickers.example.org/"),
		},
		"integration_manager": {
			Type:     schema.EventTypeWidget,
			StateKey: "integration_manager",
			Sender:   testUser.String(),
			Content:  widgetContent("m.integration_manager", "Manager", "https://im.example.org/"),
		},
	}
	encoded, err := json.Marshal(content)
	if err != nil {
		t.Fatal(err)
	}
	service.HandleAccountData(t.Context(), []messaging.AccountDataEvent{
		{Type: schema.AccountDataTypeIntegrationProvisioning, Content: json.RawMessage(`{"enabled": true}`)},
		{Type: schema.AccountDataTypeWidgets, Content: encoded},
	})

	got := service.UserWidgets(Query{})
	if ids := widgetIDs(got); !slices.Equal(ids, []string{"integration_manager", "stickers"}) {
		t.Fatalf("UserWidgets() = %v", ids)
	}
	for _, widget := range got {
		if !widget.IsUserWidget() || !widget.Active || widget.Sender != testUser {
			t.Errorf("user widget = %+v", widget)
		}
	}

	filtered := service.UserWidgets(Query{ExcludedTypes: NewTypeSet("m.integration_manager")})
	if ids := widgetIDs(filtered); !slices.Equal(ids, []string{"stickers"}) {
		t.Errorf("filtered UserWidgets() = %v", ids)
	}

	// Malformed documents leave the cache alone.
	service.HandleAccountData(t.Context(), []messaging.AccountDataEvent{
		{Type: schema.AccountDataTypeWidgets, Content: json.RawMessage(`[]`)},
	})
	if len(service.UserWidgets(Query{})) != 2 {
		t.Error("malformed m.widgets replaced the cache")
	}
}

func TestUserWidgetsTolerateOddEntries(t *testing.T) {
	service := newTestService(t, newFakeSession())
	service.HandleAccountData(t.Context(), []messaging.AccountDataEvent{{
		Type: schema.AccountDataTypeWidgets,
		Content: json.RawMessage(`{
			"bot_widget": {"type": "m.widget", "state_key": "bot_widget", "sender": "bridge-bot",
				"content": {"type": "m.custom", "url": "https://bot.example.org/"}},
			"broken": {"type": "m.widget", "content": "not an object"},
			"stickers": {"type": "m.widget", "state_key": "stickers", "sender": "@operator:example.org",
				"content": {"type": "m.stickerpicker", "url": "https://stickers.example.org/"}}
		}`),
	}})

	got := service.UserWidgets(Query{})
	if ids := widgetIDs(got); !slices.Equal(ids, []string{"bot_widget", "stickers"}) {
		t.Fatalf("UserWidgets() = %v, want the two well-formed entries", ids)
	}
	if !got[0].Sender.IsZero() {
		t.Errorf("bot_widget sender = %q, want zero for an unparseable sender", got[0].Sender)
	}
	if got[1].Sender != testUser {
		t.Errorf("stickers sender = %q, want %q", got[1].Sender, testUser)
	}
}

func TestHasPermissionsToHandleWidgets(t *testing.T) {
	tests := []struct {
		name   string
		events []messaging.Event
		want   bool
	}{
		{"no power levels", nil, false},
		{"sufficient level", []messaging.Event{powerLevelsEvent(50, 50)}, true},
		{"insufficient level", []messaging.Event{powerLevelsEvent(0, 50)}, false},
		{
			"state_default applies without an events entry",
			[]messaging.Event{stateEvent("$p", schema.MatrixEventTypePowerLevels, "", otherUser, map[string]any{
				"users":         map[string]any{testUser.String(): 10},
				"state_default": 10,
			})},
			true,
		},
		{
			"default state level is 50",
			[]messaging.Event{stateEvent("$p", schema.MatrixEventTypePowerLevels, "", otherUser, map[string]any{
				"users_default": 49,
			})},
			false,
		},
		{
			"malformed power levels ignored",
			[]messaging.Event{stateEvent("$p", schema.MatrixEventTypePowerLevels, "", otherUser, map[string]any{
				"users": "everyone",
			})},
			false,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			service := newTestService(t, newFakeSession())
			service.HandleRoomState(t.Context(), testRoom, test.events)
			if got := service.HasPermissionsToHandleWidgets(testRoom); got != test.want {
				t.Errorf("HasPermissionsToHandleWidgets() = %t, want %t", got, test.want)
			}
		})
	}
}

func TestLoadRoom(t *testing.T) {
	session := newFakeSession()
	session.state[testRoom] = []messaging.Event{
		powerLevelsEvent(100, 50),
		stateEvent("$jitsi", schema.EventTypeModularWidget, "jitsi1", otherUser, widgetContent("jitsi", "Call", "https://meet.example.org/")),
		stateEvent("$name", "m.room.name", "", otherUser, map[string]any{"name": "Widgets"}),
	}
	service := newTestService(t, session)
	subscription := service.WatchRoomWidgets(testRoom, Query{})
	defer subscription.Close()
	if initial := testutil.RequireReceive(t, subscription.C, testTimeout, "initial view"); len(initial) != 0 {
		t.Fatalf("initial view = %v, want empty", initial)
	}

	if err := service.LoadRoom(t.Context(), testRoom); err != nil {
		t.Fatalf("LoadRoom: %v", err)
	}
	if !service.HasPermissionsToHandleWidgets(testRoom) {
		t.Error("power levels not loaded")
	}
	view := testutil.RequireReceive(t, subscription.C, testTimeout, "view after load")
	if ids := widgetIDs(view); !slices.Equal(ids, []string{"jitsi1"}) {
		t.Errorf("view after load = %v", ids)
	}

	err := service.LoadRoom(t.Context(), otherRoom)
	var matrixErr *messaging.MatrixError
	if !errors.As(err, &matrixErr) || matrixErr.Code != messaging.ErrCodeForbidden {
		t.Errorf("LoadRoom(unjoined) = %v, want M_FORBIDDEN", err)
	}
}

func TestLoadUserWidgets(t *testing.T) {
	session := newFakeSession()
	service := newTestService(t, session)
	subscription := service.WatchUserWidgets(Query{})
	defer subscription.Close()
	testutil.RequireReceive(t, subscription.C, testTimeout, "initial view")

	// No m.widgets document is an empty listing, not an error.
	if err := service.LoadUserWidgets(t.Context()); err != nil {
		t.Fatalf("LoadUserWidgets without a document: %v", err)
	}
	if view := testutil.RequireReceive(t, subscription.C, testTimeout, "empty view"); len(view) != 0 {
		t.Errorf("view without a document = %v", widgetIDs(view))
	}

	session.putAccountData(schema.AccountDataTypeWidgets, `{
		"stickers": {"type": "m.widget", "state_key": "stickers", "sender": "@operator:example.org",
			"content": {"type": "m.stickerpicker", "url": "https://stickers.example.org/"}},
		"broken": []
	}`)
	if err := service.LoadUserWidgets(t.Context()); err != nil {
		t.Fatalf("LoadUserWidgets: %v", err)
	}
	view := testutil.RequireReceive(t, subscription.C, testTimeout, "view after load")
	if ids := widgetIDs(view); !slices.Equal(ids, []string{"stickers"}) {
		t.Errorf("view after load = %v", ids)
	}

	session.readErr = &messaging.MatrixError{Code: messaging.ErrCodeUnknownToken, StatusCode: 401}
	err := service.LoadUserWidgets(t.Context())
	if !messaging.IsAuthFailure(err) {
		t.Errorf("LoadUserWidgets with a rejected token = %v, want an auth failure", err)
	}
	if got := service.UserWidgets(Query{}); len(got) != 1 {
		t.Errorf("failed load replaced the cache: %v", widgetIDs(got))
	}
}
