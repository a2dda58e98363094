// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package widgets

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/bureau-foundation/integrations/lib/ref"
	"github.com/bureau-foundation/integrations/lib/schema"
)

// Template variables recognized in widget URLs.
const (
	URLVariableUserID      = "$matrix_user_id"
	URLVariableRoomID      = "$matrix_room_id"
	URLVariableWidgetID    = "$matrix_widget_id"
	URLVariableDisplayName = "$matrix_display_name"
	URLVariableAvatarURL   = "$matrix_avatar_url"
)

// ManagerTokenParameter is the query parameter carrying the
// integration manager token on manager widget URLs.
const ManagerTokenParameter = "scalar_token"

// URLParams are the values substituted into a widget URL.
type URLParams struct {
	UserID      ref.UserID
	DisplayName string
	AvatarURL   string

	// ManagerUIURL is the active integration manager's UI URL. A
	// widget whose URL starts with it is a manager widget, as is any
	// widget of type m.integration_manager.
	ManagerUIURL string

	// ManagerToken is appended to manager widget URLs as
	// scalar_token. Empty leaves every URL without a token.
	ManagerToken string
}

// FormatURL returns the URL a client should load for widget.
//
// The $matrix_* variables are replaced with the query-escaped values
// from params and the widget itself; $matrix_room_id is empty for user
// widgets. Every string-valued key of the widget's data object is also
// available as $<key>. The $matrix_* variables win over data keys of
// the same name, and longer names are replaced before their prefixes.
//
// Deactivated widgets have no URL and return an error.
func FormatURL(widget Widget, params URLParams) (string, error) {
	if !widget.Active {
		return "", fmt.Errorf("widgets: widget %q is not active", widget.ID)
	}

	values := map[string]string{}
	for key, value := range widget.Data {
		if text, ok := value.(string); ok {
			values["$"+key] = text
		}
	}
	values[URLVariableUserID] = params.UserID.String()
	values[URLVariableRoomID] = widget.RoomID.String()
	values[URLVariableWidgetID] = widget.ID
	values[URLVariableDisplayName] = params.DisplayName
	values[URLVariableAvatarURL] = params.AvatarURL

	variables := make([]string, 0, len(values))
	for variable := range values {
		variables = append(variables, variable)
	}
	sort.Slice(variables, func(i, j int) bool {
		if len(variables[i]) != len(variables[j]) {
			return len(variables[i]) > len(variables[j])
		}
		return variables[i] < variables[j]
	})
	pairs := make([]string, 0, 2*len(variables))
	for _, variable := range variables {
		pairs = append(pairs, variable, url.QueryEscape(values[variable]))
	}
	formatted := strings.NewReplacer(pairs...).Replace(widget.URL)

	parsed, err := url.Parse(formatted)
	if err != nil {
		return "", fmt.Errorf("widgets: widget %q has an invalid URL: %w", widget.ID, err)
	}
	if params.ManagerToken == "" || !isManagerWidget(widget, params.ManagerUIURL) {
		return formatted, nil
	}
	token := ManagerTokenParameter + "=" + url.QueryEscape(params.ManagerToken)
	if parsed.RawQuery == "" {
		parsed.RawQuery = token
	} else {
		parsed.RawQuery += "&" + token
	}
	return parsed.String(), nil
}

func isManagerWidget(widget Widget, managerUIURL string) bool {
	if widget.Type == schema.WidgetTypeIntegrationManager {
		return true
	}
	return managerUIURL != "" && strings.HasPrefix(widget.URL, managerUIURL)
}
