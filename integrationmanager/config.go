// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package integrationmanager

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/bureau-foundation/integrations/lib/schema"
)

// Kind identifies where an integration manager config came from. Lower
// values take precedence.
type Kind int

const (
	// KindAccountData is the manager the user selected through the
	// m.integration_manager entry of their m.widgets account data.
	KindAccountData Kind = iota
	// KindWellKnown is the manager advertised by the homeserver's
	// /.well-known/matrix/client.
	KindWellKnown
	// KindDefault is the built-in fallback.
	KindDefault
)

var kindNames = map[Kind]string{
	KindAccountData: "account_data",
	KindWellKnown:   "well_known",
	KindDefault:     "default",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	name, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("integrationmanager: unknown kind %d", int(k))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(data []byte) error {
	for kind, name := range kindNames {
		if name == string(data) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("integrationmanager: unknown kind %q", data)
}

// Config is one integration manager configuration.
type Config struct {
	Kind   Kind   `json:"kind"`
	APIURL string `json:"api_url"`
	UIURL  string `json:"ui_url"`
}

// DefaultConfig returns the built-in fallback manager.
func DefaultConfig() Config {
	return Config{
		Kind:   KindDefault,
		APIURL: schema.DefaultIntegrationManagerAPIURL,
		UIURL:  schema.DefaultIntegrationManagerUIURL,
	}
}

// orderConfigs merges the optional tiers with the fallback into
// precedence order. The result always contains the fallback.
func orderConfigs(accountData, wellKnown *Config, fallback Config) []Config {
	configs := make([]Config, 0, 3)
	if accountData != nil {
		configs = append(configs, *accountData)
	}
	if wellKnown != nil {
		configs = append(configs, *wellKnown)
	}
	configs = append(configs, fallback)
	slices.SortStableFunc(configs, func(a, b Config) int {
		return cmp.Compare(a.Kind, b.Kind)
	})
	return configs
}

// accountDataConfig derives the KindAccountData tier from the user's
// m.widgets account data. The UI URL is the widget URL; the API URL is
// data.api_url, falling back to the UI URL.
func accountDataConfig(widgets schema.UserWidgetsContent) *Config {
	widget, ok := widgets.IntegrationManagerWidget()
	if !ok {
		return nil
	}
	apiURL := widget.DataString("api_url")
	if apiURL == "" {
		apiURL = widget.URL
	}
	return &Config{Kind: KindAccountData, APIURL: apiURL, UIURL: widget.URL}
}

// wellKnownConfig derives the KindWellKnown tier from the homeserver's
// client discovery document.
func wellKnownConfig(wellKnown *schema.ClientWellKnown) *Config {
	manager, ok := wellKnown.PreferredManager()
	if !ok {
		return nil
	}
	return &Config{Kind: KindWellKnown, APIURL: manager.APIURL, UIURL: manager.UIURL}
}
