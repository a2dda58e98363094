// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// IntegrationProvisioningContent is the content of the
// im.vector.setting.integration_provisioning account data event.
type IntegrationProvisioningContent struct {
	Enabled bool `json:"enabled"`
}

// AllowedWidgetsContent is the content of the
// im.vector.setting.allowed_widgets account data event.
//
// Widgets is keyed by the event ID of the state event that defines the
// widget. NativeWidgets is keyed by widget type, then by the domain
// serving the widget. A missing key means "not yet decided" and reads
// as not allowed.
type AllowedWidgetsContent struct {
	Widgets       map[string]bool            `json:"widgets"`
	NativeWidgets map[string]map[string]bool `json:"native_widgets"`
}

// Clone returns a deep copy with non-nil maps, suitable as the base of
// a read-modify-write. Writing a clone always produces both keys in
// the JSON document, never null.
func (content AllowedWidgetsContent) Clone() AllowedWidgetsContent {
	clone := AllowedWidgetsContent{
		Widgets:       make(map[string]bool, len(content.Widgets)),
		NativeWidgets: make(map[string]map[string]bool, len(content.NativeWidgets)),
	}
	for stateEventID, allowed := range content.Widgets {
		clone.Widgets[stateEventID] = allowed
	}
	for widgetType, domains := range content.NativeWidgets {
		domainsCopy := make(map[string]bool, len(domains))
		for domain, allowed := range domains {
			domainsCopy[domain] = allowed
		}
		clone.NativeWidgets[widgetType] = domainsCopy
	}
	return clone
}

// SetNativeDomain records a decision for (widgetType, domain),
// creating the inner map if needed. The receiver's maps must be
// non-nil (use Clone first).
func (content AllowedWidgetsContent) SetNativeDomain(widgetType, domain string, allowed bool) {
	domains := content.NativeWidgets[widgetType]
	if domains == nil {
		domains = make(map[string]bool)
		content.NativeWidgets[widgetType] = domains
	}
	domains[domain] = allowed
}

// NativeDomainAllowed returns the decision for (widgetType, domain).
// Unknown pairs return false.
func (content AllowedWidgetsContent) NativeDomainAllowed(widgetType, domain string) bool {
	return content.NativeWidgets[widgetType][domain]
}
