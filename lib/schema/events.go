// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "github.com/bureau-foundation/integrations/lib/ref"

// Room state event types.
const (
	// MatrixEventTypePowerLevels is the standard m.room.power_levels
	// state event. State key: "".
	MatrixEventTypePowerLevels ref.EventType = "m.room.power_levels"

	// EventTypeWidget is the standardized widget state event.
	//
	// State key: widget ID
	// Content: [WidgetContent], or {} when the widget is deactivated
	EventTypeWidget ref.EventType = "m.widget"

	// EventTypeModularWidget is the legacy widget state event type.
	// Most clients still write widgets under this type, so new room
	// widgets are created with it.
	//
	// State key: widget ID
	// Content: [WidgetContent], or {} when the widget is deactivated
	EventTypeModularWidget ref.EventType = "im.vector.modular.widgets"
)

// Account data event types. Account data is addressed by user ID and
// type only; there is no state key.
const (
	// AccountDataTypeWidgets holds user-scoped widgets as a map of
	// widget ID to a widget event ([UserWidgetsContent]).
	AccountDataTypeWidgets ref.EventType = "m.widgets"

	// AccountDataTypeIntegrationProvisioning holds the global
	// integration enabled flag ([IntegrationProvisioningContent]).
	AccountDataTypeIntegrationProvisioning ref.EventType = "im.vector.setting.integration_provisioning"

	// AccountDataTypeAllowedWidgets holds per-widget and per-native
	// widget domain permission decisions ([AllowedWidgetsContent]).
	AccountDataTypeAllowedWidgets ref.EventType = "im.vector.setting.allowed_widgets"
)

// WidgetEventTypes lists the room state event types that declare
// widgets, in precedence order: when both types carry the same widget
// ID, the earlier type wins.
var WidgetEventTypes = []ref.EventType{EventTypeWidget, EventTypeModularWidget}

// IsWidgetEventType reports whether eventType declares a room widget.
func IsWidgetEventType(eventType ref.EventType) bool {
	for _, widgetType := range WidgetEventTypes {
		if eventType == widgetType {
			return true
		}
	}
	return false
}

// WidgetTypeIntegrationManager is the widget content type of the user
// widget that selects the user's integration manager.
const WidgetTypeIntegrationManager = "m.integration_manager"
