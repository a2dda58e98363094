// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package integrationmanager

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/bureau-foundation/integrations/lib/async"
	"github.com/bureau-foundation/integrations/lib/schema"
)

// SetIntegrationEnabled writes the enabled flag to account data. On
// success the cache is updated and every listener receives
// IntegrationEnabledChanged(enable) before callback.OnSuccess runs.
func (s *Service) SetIntegrationEnabled(enable bool, callback async.Callback[struct{}]) *async.Request {
	return async.GoLocked(s.ctx, &s.provisioningWrite,
		func(ctx context.Context) (struct{}, error) {
			content := schema.IntegrationProvisioningContent{Enabled: enable}
			if err := s.store.SetAccountData(ctx, schema.AccountDataTypeIntegrationProvisioning, content); err != nil {
				return struct{}{}, fmt.Errorf("integrationmanager: setting integrations enabled=%t: %w", enable, err)
			}
			return struct{}{}, nil
		},
		func(struct{}) {
			s.mutex.Lock()
			s.enabled = &enable
			s.mutex.Unlock()

			s.logger.Info("integrations enabled flag written", "enabled", enable)
			s.notify(func(listener Listener) { listener.IntegrationEnabledChanged(enable) })
		},
		callback,
	)
}

// SetWidgetAllowed records the decision for the widget defined by the
// state event stateEventID. On success the cache is updated and every
// listener receives WidgetPermissionsChanged with the full updated
// map.
func (s *Service) SetWidgetAllowed(stateEventID string, allowed bool, callback async.Callback[struct{}]) *async.Request {
	if stateEventID == "" {
		return async.Fail(errors.New("integrationmanager: state event ID is required"), callback)
	}
	return s.updateAllowedWidgets(func(content schema.AllowedWidgetsContent) {
		content.Widgets[stateEventID] = allowed
	}, callback, "widget permission written", "state_event_id", stateEventID, "allowed", allowed)
}

// SetNativeWidgetDomainAllowed records the decision for native widgets
// of widgetType served from domain. The decision lives in the same
// account data document as per-widget decisions, so success notifies
// listeners with WidgetPermissionsChanged.
func (s *Service) SetNativeWidgetDomainAllowed(widgetType, domain string, allowed bool, callback async.Callback[struct{}]) *async.Request {
	if widgetType == "" || domain == "" {
		return async.Fail(errors.New("integrationmanager: widget type and domain are required"), callback)
	}
	return s.updateAllowedWidgets(func(content schema.AllowedWidgetsContent) {
		content.SetNativeDomain(widgetType, domain, allowed)
	}, callback, "native widget domain permission written", "widget_type", widgetType, "domain", domain, "allowed", allowed)
}

// updateAllowedWidgets performs a read-modify-write of the allowed
// widgets document: modify is applied to a copy of the cached
// document, the whole result is written, and on success it replaces
// the cache.
func (s *Service) updateAllowedWidgets(modify func(schema.AllowedWidgetsContent), callback async.Callback[struct{}], logMessage string, logArgs ...any) *async.Request {
	var updated schema.AllowedWidgetsContent
	return async.GoLocked(s.ctx, &s.allowedWrite,
		func(ctx context.Context) (struct{}, error) {
			s.mutex.RLock()
			updated = s.allowed.Clone()
			s.mutex.RUnlock()

			modify(updated)
			if err := s.store.SetAccountData(ctx, schema.AccountDataTypeAllowedWidgets, updated); err != nil {
				return struct{}{}, fmt.Errorf("integrationmanager: writing allowed widgets: %w", err)
			}
			return struct{}{}, nil
		},
		func(struct{}) {
			s.mutex.Lock()
			s.allowed = updated
			s.mutex.Unlock()

			s.logger.Info(logMessage, logArgs...)
			s.notify(func(listener Listener) { listener.WidgetPermissionsChanged(maps.Clone(updated.Widgets)) })
		},
		callback,
	)
}
