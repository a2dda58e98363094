// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package integrationmanager

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/bureau-foundation/integrations/lib/schema"
	"github.com/bureau-foundation/integrations/messaging"
)

// provisioningRead decodes the provisioning document with a pointer so
// a document without the key reads as "never set".
type provisioningRead struct {
	Enabled *bool `json:"enabled"`
}

// Load seeds the cache from the three account data documents and the
// well-known document. Listeners are notified of every value that
// differs from the current cache. A document the user never set reads
// as its default. Account data read errors are joined and returned;
// the documents that could be read are still applied. Well-known
// failures are logged and leave that tier absent.
func (s *Service) Load(ctx context.Context) error {
	var errs []error

	provisioning, found, err := messaging.GetAccountData[provisioningRead](ctx, s.store, schema.AccountDataTypeIntegrationProvisioning)
	if err != nil {
		errs = append(errs, err)
	} else if found {
		s.setEnabled(provisioning.Enabled)
	} else {
		s.setEnabled(nil)
	}

	allowed, _, err := messaging.GetAccountData[schema.AllowedWidgetsContent](ctx, s.store, schema.AccountDataTypeAllowedWidgets)
	if err != nil {
		errs = append(errs, err)
	} else {
		s.setAllowed(allowed)
	}

	widgets, _, err := messaging.GetAccountData[schema.UserWidgetsContent](ctx, s.store, schema.AccountDataTypeWidgets)
	if err != nil {
		errs = append(errs, err)
	} else {
		s.setAccountDataConfig(accountDataConfig(widgets))
	}

	s.RefreshWellKnown(ctx)

	return errors.Join(errs...)
}

// RefreshWellKnown re-fetches the well-known document and updates the
// KindWellKnown tier. Any failure removes the tier and is logged as a
// warning; it never affects the other tiers.
func (s *Service) RefreshWellKnown(ctx context.Context) {
	if s.wellKnown == nil {
		return
	}
	wellKnown, err := s.wellKnown.ClientWellKnown(ctx)
	if err != nil {
		s.logger.Warn("well-known integration manager unavailable", "error", err)
		s.setWellKnownConfig(nil)
		return
	}
	s.setWellKnownConfig(wellKnownConfig(wellKnown))
}

// RunWellKnownRefresh calls RefreshWellKnown every interval until ctx
// is canceled. A non-positive interval returns immediately.
func (s *Service) RunWellKnownRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RefreshWellKnown(ctx)
		}
	}
}

// HandleAccountData ingests global account data events from /sync.
// Events of unrelated types are ignored. Undecodable content is
// logged and skipped. Listeners are notified only when a cached value
// actually changes, so the /sync echo of a local mutation is silent.
func (s *Service) HandleAccountData(ctx context.Context, events []messaging.AccountDataEvent) {
	for _, event := range events {
		switch event.Type {
		case schema.AccountDataTypeIntegrationProvisioning:
			var content provisioningRead
			if err := json.Unmarshal(event.Content, &content); err != nil {
				s.logger.Warn("ignoring malformed account data", "event_type", event.Type, "error", err)
				continue
			}
			s.setEnabled(content.Enabled)

		case schema.AccountDataTypeAllowedWidgets:
			var content schema.AllowedWidgetsContent
			if err := json.Unmarshal(event.Content, &content); err != nil {
				s.logger.Warn("ignoring malformed account data", "event_type", event.Type, "error", err)
				continue
			}
			s.setAllowed(content)

		case schema.AccountDataTypeWidgets:
			content, skipped, err := schema.DecodeUserWidgets(event.Content)
			if err != nil {
				s.logger.Warn("ignoring malformed account data", "event_type", event.Type, "error", err)
				continue
			}
			for identifier, entryErr := range skipped {
				s.logger.Warn("ignoring malformed user widget", "widget_id", identifier, "error", entryErr)
			}
			s.setAccountDataConfig(accountDataConfig(content))
		}
	}
}

// setEnabled replaces the cached flag (nil means never set) and
// notifies listeners if the effective value changed.
func (s *Service) setEnabled(value *bool) {
	s.mutex.Lock()
	before := s.enabledLocked()
	if value != nil {
		copied := *value
		s.enabled = &copied
	} else {
		s.enabled = nil
	}
	after := s.enabledLocked()
	s.mutex.Unlock()

	if before != after {
		s.logger.Info("integrations enabled flag changed", "enabled", after)
		s.notify(func(listener Listener) { listener.IntegrationEnabledChanged(after) })
	}
}

// setAllowed replaces the cached allowed widgets document and notifies
// listeners if it changed.
func (s *Service) setAllowed(content schema.AllowedWidgetsContent) {
	normalized := content.Clone()

	s.mutex.Lock()
	changed := !allowedEqual(s.allowed, normalized)
	s.allowed = normalized
	s.mutex.Unlock()

	if changed {
		s.logger.Info("widget permissions changed", "widgets", len(normalized.Widgets))
		s.notify(func(listener Listener) { listener.WidgetPermissionsChanged(maps.Clone(normalized.Widgets)) })
	}
}

func (s *Service) setAccountDataConfig(config *Config) {
	s.updateConfigs(func() { s.accountDataConfig = config })
}

func (s *Service) setWellKnownConfig(config *Config) {
	s.updateConfigs(func() { s.wellKnownConfig = config })
}

// updateConfigs applies change under the cache lock and notifies
// listeners if the ordered config list differs afterwards.
func (s *Service) updateConfigs(change func()) {
	s.mutex.Lock()
	before := s.orderedConfigsLocked()
	change()
	after := s.orderedConfigsLocked()
	s.mutex.Unlock()

	if slices.Equal(before, after) {
		return
	}
	s.logger.Info("integration manager configs changed", "preferred", after[0].APIURL, "kind", after[0].Kind)
	s.notify(func(listener Listener) { listener.ConfigurationChanged(slices.Clone(after)) })
}

func allowedEqual(a, b schema.AllowedWidgetsContent) bool {
	if !maps.Equal(a.Widgets, b.Widgets) {
		return false
	}
	return maps.EqualFunc(a.NativeWidgets, b.NativeWidgets, func(x, y map[string]bool) bool {
		return maps.Equal(x, y)
	})
}
