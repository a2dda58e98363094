// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package integrationmanager

import (
	"fmt"
	"reflect"
)

// Listener observes registry changes. Implementations embed
// [NopListener] and override only the methods they need, or use
// [*ListenerFuncs].
//
// Listeners are registered by value in a set, so the dynamic type must
// be comparable. Use pointer receivers.
type Listener interface {
	// IntegrationEnabledChanged is called when the enabled flag
	// changes.
	IntegrationEnabledChanged(enabled bool)

	// ConfigurationChanged is called with the full ordered config
	// list when the account data or well-known tier changes.
	ConfigurationChanged(configs []Config)

	// WidgetPermissionsChanged is called with the full per-widget
	// permission map (state event ID to decision) when the allowed
	// widgets document changes. Each listener receives its own copy.
	WidgetPermissionsChanged(widgets map[string]bool)
}

// NopListener implements every Listener method as a no-op.
type NopListener struct{}

func (NopListener) IntegrationEnabledChanged(bool)           {}
func (NopListener) ConfigurationChanged([]Config)            {}
func (NopListener) WidgetPermissionsChanged(map[string]bool) {}

// ListenerFuncs adapts optional functions to a Listener. Register it
// by pointer; nil fields are skipped.
type ListenerFuncs struct {
	OnIntegrationEnabledChanged func(enabled bool)
	OnConfigurationChanged      func(configs []Config)
	OnWidgetPermissionsChanged  func(widgets map[string]bool)
}

var _ Listener = (*ListenerFuncs)(nil)

func (funcs *ListenerFuncs) IntegrationEnabledChanged(enabled bool) {
	if funcs.OnIntegrationEnabledChanged != nil {
		funcs.OnIntegrationEnabledChanged(enabled)
	}
}

func (funcs *ListenerFuncs) ConfigurationChanged(configs []Config) {
	if funcs.OnConfigurationChanged != nil {
		funcs.OnConfigurationChanged(configs)
	}
}

func (funcs *ListenerFuncs) WidgetPermissionsChanged(widgets map[string]bool) {
	if funcs.OnWidgetPermissionsChanged != nil {
		funcs.OnWidgetPermissionsChanged(widgets)
	}
}

// AddListener registers listener. Adding a registered listener is a
// no-op. Panics if listener's dynamic type is not comparable.
func (s *Service) AddListener(listener Listener) {
	if listener == nil {
		return
	}
	if !reflect.TypeOf(listener).Comparable() {
		panic(fmt.Sprintf("integrationmanager: listener type %T is not comparable; register a pointer", listener))
	}
	s.listenerMutex.Lock()
	defer s.listenerMutex.Unlock()
	s.listeners[listener] = struct{}{}
}

// RemoveListener unregisters listener. Removing an unregistered
// listener is a no-op. A listener removed while a notification is
// being delivered receives no further calls.
func (s *Service) RemoveListener(listener Listener) {
	if listener == nil || !reflect.TypeOf(listener).Comparable() {
		return
	}
	s.listenerMutex.Lock()
	defer s.listenerMutex.Unlock()
	delete(s.listeners, listener)
}

func (s *Service) registered(listener Listener) bool {
	s.listenerMutex.RLock()
	defer s.listenerMutex.RUnlock()
	_, ok := s.listeners[listener]
	return ok
}

// notify calls deliver for every registered listener. The set is
// snapshotted first and membership is re-checked before each call, so
// listeners may add or remove listeners (including themselves) from
// inside a notification.
func (s *Service) notify(deliver func(Listener)) {
	s.listenerMutex.RLock()
	snapshot := make([]Listener, 0, len(s.listeners))
	for listener := range s.listeners {
		snapshot = append(snapshot, listener)
	}
	s.listenerMutex.RUnlock()

	for _, listener := range snapshot {
		if !s.registered(listener) {
			continue
		}
		deliver(listener)
	}
}
