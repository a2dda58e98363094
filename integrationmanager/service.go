// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package integrationmanager

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	"github.com/bureau-foundation/integrations/lib/clock"
	"github.com/bureau-foundation/integrations/lib/schema"
	"github.com/bureau-foundation/integrations/messaging"
)

// WellKnownResolver fetches the homeserver's client discovery
// document. *messaging.Client implements it.
type WellKnownResolver interface {
	ClientWellKnown(ctx context.Context) (*schema.ClientWellKnown, error)
}

// Options configures a Service.
type Options struct {
	// Store is the account data store mutations write to and Load
	// reads from. Required.
	Store messaging.AccountDataStore

	// WellKnown resolves the KindWellKnown tier. If nil, that tier is
	// always absent.
	WellKnown WellKnownResolver

	// Default is the KindDefault config. Zero means DefaultConfig().
	// Its Kind is forced to KindDefault.
	Default Config

	// Context is passed to the account data writes of mutations.
	// Canceling it fails in-flight and future writes. If nil,
	// context.Background() is used.
	Context context.Context

	// Clock drives the well-known refresh ticker and snapshot
	// timestamps. If nil, clock.Real() is used.
	Clock clock.Clock

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Service is the integration registry. It is safe for concurrent use:
// reads come from any goroutine, mutations complete on their own
// goroutines, and sync ingestion runs on the sync loop's goroutine.
type Service struct {
	store     messaging.AccountDataStore
	wellKnown WellKnownResolver
	ctx       context.Context
	clock     clock.Clock
	logger    *slog.Logger

	// mutex guards the cache fields below. enabled is nil until a
	// provisioning document has been observed.
	mutex             sync.RWMutex
	enabled           *bool
	allowed           schema.AllowedWidgetsContent
	accountDataConfig *Config
	wellKnownConfig   *Config
	defaultConfig     Config

	// Per-document write serialization. Held from the start of a
	// mutation's remote write until its cache update has been applied.
	provisioningWrite sync.Mutex
	allowedWrite      sync.Mutex

	listenerMutex sync.RWMutex
	listeners     map[Listener]struct{}
}

// New creates a Service with an empty cache: integrations enabled, no
// widget or domain allowed, and only the default manager configured.
// Call Load (or Restore) to seed it.
func New(options Options) *Service {
	if options.Store == nil {
		panic("integrationmanager: Options.Store is required")
	}
	ctx := options.Context
	if ctx == nil {
		ctx = context.Background()
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fallback := options.Default
	if fallback.APIURL == "" {
		fallback = DefaultConfig()
	}
	if fallback.UIURL == "" {
		fallback.UIURL = fallback.APIURL
	}
	fallback.Kind = KindDefault

	return &Service{
		store:         options.Store,
		wellKnown:     options.WellKnown,
		ctx:           ctx,
		clock:         clk,
		logger:        logger,
		allowed:       schema.AllowedWidgetsContent{}.Clone(),
		defaultConfig: fallback,
		listeners:     make(map[Listener]struct{}),
	}
}

// OrderedConfigs returns the configured integration managers in
// precedence order: account data, well-known, default. Never empty.
func (s *Service) OrderedConfigs() []Config {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.orderedConfigsLocked()
}

func (s *Service) orderedConfigsLocked() []Config {
	return orderConfigs(s.accountDataConfig, s.wellKnownConfig, s.defaultConfig)
}

// PreferredConfig returns the head of OrderedConfigs.
func (s *Service) PreferredConfig() Config {
	return s.OrderedConfigs()[0]
}

// IsIntegrationEnabled reports the cached enabled flag. Integrations
// are enabled until the user's account data says otherwise.
func (s *Service) IsIntegrationEnabled() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.enabledLocked()
}

func (s *Service) enabledLocked() bool {
	return s.enabled == nil || *s.enabled
}

// IsWidgetAllowed reports whether the widget defined by the state
// event stateEventID has been allowed. Undecided widgets are not
// allowed.
func (s *Service) IsWidgetAllowed(stateEventID string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.allowed.Widgets[stateEventID]
}

// IsNativeWidgetDomainAllowed reports whether native widgets of
// widgetType served from domain have been allowed. Undecided pairs are
// not allowed.
func (s *Service) IsNativeWidgetDomainAllowed(widgetType, domain string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.allowed.NativeDomainAllowed(widgetType, domain)
}

// WidgetPermissions returns a copy of the per-widget permission map.
func (s *Service) WidgetPermissions() map[string]bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return maps.Clone(s.allowed.Widgets)
}

// NativeWidgetPermissions returns a deep copy of the per-native-domain
// permission map (widget type, then domain).
func (s *Service) NativeWidgetPermissions() map[string]map[string]bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.allowed.Clone().NativeWidgets
}
