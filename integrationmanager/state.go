// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package integrationmanager

import (
	"time"

	"github.com/bureau-foundation/integrations/lib/schema"
)

// State is the persistable form of the registry cache, written to
// disk by lib/snapshot so a restart can serve reads before the first
// /sync completes.
type State struct {
	// Enabled is nil when no provisioning document was ever observed.
	Enabled           *bool                      `cbor:"enabled,omitempty"`
	Widgets           map[string]bool            `cbor:"widgets"`
	NativeWidgets     map[string]map[string]bool `cbor:"native_widgets"`
	AccountDataConfig *Config                    `cbor:"account_data_config,omitempty"`
	WellKnownConfig   *Config                    `cbor:"well_known_config,omitempty"`
	SavedAt           time.Time                  `cbor:"saved_at"`
}

// Snapshot captures the current cache.
func (s *Service) Snapshot() State {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	allowed := s.allowed.Clone()
	state := State{
		Widgets:       allowed.Widgets,
		NativeWidgets: allowed.NativeWidgets,
		SavedAt:       s.clock.Now().UTC(),
	}
	if s.enabled != nil {
		enabled := *s.enabled
		state.Enabled = &enabled
	}
	if s.accountDataConfig != nil {
		config := *s.accountDataConfig
		state.AccountDataConfig = &config
	}
	if s.wellKnownConfig != nil {
		config := *s.wellKnownConfig
		state.WellKnownConfig = &config
	}
	return state
}

// Restore replaces the cache with state, notifying listeners of every
// value that changes. Tier configs carrying the wrong Kind are
// ignored.
func (s *Service) Restore(state State) {
	s.setEnabled(state.Enabled)
	s.setAllowed(schema.AllowedWidgetsContent{Widgets: state.Widgets, NativeWidgets: state.NativeWidgets})

	var accountData, wellKnown *Config
	if state.AccountDataConfig != nil && state.AccountDataConfig.Kind == KindAccountData {
		config := *state.AccountDataConfig
		accountData = &config
	}
	if state.WellKnownConfig != nil && state.WellKnownConfig.Kind == KindWellKnown {
		config := *state.WellKnownConfig
		wellKnown = &config
	}
	s.updateConfigs(func() {
		s.accountDataConfig = accountData
		s.wellKnownConfig = wellKnown
	})
}
