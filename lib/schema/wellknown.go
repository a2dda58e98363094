// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// ClientWellKnown is the body of GET /.well-known/matrix/client.
// Only the sections this module consumes are typed.
type ClientWellKnown struct {
	Homeserver   *WellKnownHomeserver   `json:"m.homeserver,omitempty"`
	Integrations *IntegrationsWellKnown `json:"m.integrations,omitempty"`
}

// WellKnownHomeserver is the m.homeserver section.
type WellKnownHomeserver struct {
	BaseURL string `json:"base_url"`
}

// IntegrationsWellKnown is the m.integrations section: the integration
// managers the server operator recommends, most preferred first.
type IntegrationsWellKnown struct {
	Managers []IntegrationManagerWellKnown `json:"managers"`
}

// IntegrationManagerWellKnown is one manager entry. UIURL may be
// omitted, in which case clients use APIURL for both.
type IntegrationManagerWellKnown struct {
	APIURL string `json:"api_url"`
	UIURL  string `json:"ui_url,omitempty"`
}

// PreferredManager returns the first entry with a non-empty API URL,
// with UIURL defaulted to APIURL. The second result is false when the
// section is missing or lists no usable manager.
func (wellKnown *ClientWellKnown) PreferredManager() (IntegrationManagerWellKnown, bool) {
	if wellKnown == nil || wellKnown.Integrations == nil {
		return IntegrationManagerWellKnown{}, false
	}
	for _, manager := range wellKnown.Integrations.Managers {
		if manager.APIURL == "" {
			continue
		}
		if manager.UIURL == "" {
			manager.UIURL = manager.APIURL
		}
		return manager, true
	}
	return IntegrationManagerWellKnown{}, false
}

// Default integration manager endpoints, used when neither account
// data nor the server's well-known names a manager.
const (
	DefaultIntegrationManagerAPIURL = "https://scalar.vector.im/api"
	DefaultIntegrationManagerUIURL  = "https://scalar.vector.im/"
)
