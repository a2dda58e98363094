// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/bureau-foundation/integrations/lib/ref"
)

// WidgetContent is the typed view of a widget definition. The same
// shape appears as room state content (m.widget,
// im.vector.modular.widgets) and as the content of each entry in the
// m.widgets account data map.
//
// Only the fields the registry and widget service interpret are typed
// here. Callers that need the full payload keep the original map
// alongside; widget content is otherwise passed through unmodified.
type WidgetContent struct {
	Type              string         `json:"type,omitempty"`
	URL               string         `json:"url,omitempty"`
	Name              string         `json:"name,omitempty"`
	Data              map[string]any `json:"data,omitempty"`
	CreatorUserID     string         `json:"creatorUserId,omitempty"`
	WaitForIframeLoad bool           `json:"waitForIframeLoad,omitempty"`
	ID                string         `json:"id,omitempty"`
}

// IsActive reports whether the content describes a live widget.
// Deactivated widgets are written as empty content, which leaves Type
// and URL empty.
func (content WidgetContent) IsActive() bool {
	return content.Type != "" && content.URL != ""
}

// ParseWidgetContent decodes a free-form content map into its typed
// view. Unknown keys are ignored. Fields with the wrong JSON type
// produce an error.
func ParseWidgetContent(raw map[string]any) (WidgetContent, error) {
	var content WidgetContent
	if len(raw) == 0 {
		return content, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return WidgetContent{}, fmt.Errorf("encoding widget content: %w", err)
	}
	if err := json.Unmarshal(data, &content); err != nil {
		return WidgetContent{}, fmt.Errorf("decoding widget content: %w", err)
	}
	return content, nil
}

// UserWidgetEvent is one entry of the m.widgets account data map. It
// mirrors a state event so that user widgets and room widgets share
// one representation.
//
// Sender is kept as the raw string: clients write arbitrary values
// here and one odd entry must not invalidate the whole map. Callers
// that need a typed ID parse it with [ref.ParseUserID].
type UserWidgetEvent struct {
	Type     ref.EventType  `json:"type"`
	StateKey string         `json:"state_key"`
	Sender   string         `json:"sender"`
	ID       string         `json:"id"`
	Content  map[string]any `json:"content"`
}

// UserWidgetsContent is the content of the m.widgets account data
// event: widget ID to widget event.
type UserWidgetsContent map[string]UserWidgetEvent

// DecodeUserWidgets decodes m.widgets account data one entry at a
// time. Entries that fail to decode are left out of the result and
// reported in skipped, keyed by widget ID. The error is non-nil only
// when data is not a JSON object.
func DecodeUserWidgets(data []byte) (content UserWidgetsContent, skipped map[string]error, err error) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, nil, fmt.Errorf("decoding m.widgets: %w", err)
	}
	content = make(UserWidgetsContent, len(entries))
	for identifier, raw := range entries {
		var entry UserWidgetEvent
		if err := json.Unmarshal(raw, &entry); err != nil {
			if skipped == nil {
				skipped = make(map[string]error)
			}
			skipped[identifier] = err
			continue
		}
		content[identifier] = entry
	}
	return content, skipped, nil
}

// UnmarshalJSON implements json.Unmarshaler with the per-entry
// tolerance of [DecodeUserWidgets]; malformed entries are dropped.
func (content *UserWidgetsContent) UnmarshalJSON(data []byte) error {
	decoded, _, err := DecodeUserWidgets(data)
	if err != nil {
		return err
	}
	*content = decoded
	return nil
}

// SortedIDs returns the widget IDs in lexical order so iteration over
// user widgets is deterministic.
func (content UserWidgetsContent) SortedIDs() []string {
	identifiers := make([]string, 0, len(content))
	for identifier := range content {
		identifiers = append(identifiers, identifier)
	}
	sort.Strings(identifiers)
	return identifiers
}

// IntegrationManagerWidget returns the user's integration manager
// widget: the first entry (in widget ID order) whose content type is
// m.integration_manager and which carries a URL. The second result is
// false when no such entry exists or every candidate is malformed.
func (content UserWidgetsContent) IntegrationManagerWidget() (WidgetContent, bool) {
	for _, identifier := range content.SortedIDs() {
		parsed, err := ParseWidgetContent(content[identifier].Content)
		if err != nil {
			continue
		}
		if parsed.Type == WidgetTypeIntegrationManager && parsed.URL != "" {
			return parsed, true
		}
	}
	return WidgetContent{}, false
}

// DataString returns a string-valued key from the widget's data
// object, or "" if absent or not a string.
func (content WidgetContent) DataString(key string) string {
	value, _ := content.Data[key].(string)
	return value
}
