// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"testing"
)

func TestParseWidgetContent(t *testing.T) {
	raw := map[string]any{
		"type":          "jitsi",
		"url":           "https://jitsi.example.org/widget",
		"name":          "Standup",
		"creatorUserId": "@alice:example.org",
		"data":          map[string]any{"domain": "jitsi.example.org"},
		"extra":         []any{"ignored"},
	}

	content, err := ParseWidgetContent(raw)
	if err != nil {
		t.Fatalf("ParseWidgetContent: %v", err)
	}
	if content.Type != "jitsi" || content.Name != "Standup" {
		t.Errorf("content = %+v", content)
	}
	if content.DataString("domain") != "jitsi.example.org" {
		t.Errorf("DataString(domain) = %q", content.DataString("domain"))
	}
	if !content.IsActive() {
		t.Error("IsActive() = false for widget with type and url")
	}
}

func TestParseWidgetContentEmptyIsInactive(t *testing.T) {
	content, err := ParseWidgetContent(map[string]any{})
	if err != nil {
		t.Fatalf("ParseWidgetContent: %v", err)
	}
	if content.IsActive() {
		t.Error("IsActive() = true for empty content")
	}
}

func TestParseWidgetContentWrongFieldType(t *testing.T) {
	if _, err := ParseWidgetContent(map[string]any{"url": 42}); err == nil {
		t.Error("ParseWidgetContent accepted a numeric url")
	}
}

func TestIntegrationManagerWidget(t *testing.T) {
	var content UserWidgetsContent
	data := `{
		"b_manager": {"type": "m.widget", "state_key": "b_manager", "id": "b_manager",
			"content": {"type": "m.integration_manager", "url": "https://b.example.org/",
				"data": {"api_url": "https://b.example.org/api"}}},
		"a_sticker": {"type": "m.widget", "state_key": "a_sticker", "id": "a_sticker",
			"content": {"type": "m.stickerpicker", "url": "https://stickers.example.org/"}},
		"c_manager": {"type": "m.widget", "state_key": "c_manager", "id": "c_manager",
			"content": {"type": "m.integration_manager", "url": "https://c.example.org/"}}
	}`
	if err := json.Unmarshal([]byte(data), &content); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	manager, ok := content.IntegrationManagerWidget()
	if !ok {
		t.Fatal("IntegrationManagerWidget found nothing")
	}
	if manager.URL != "https://b.example.org/" {
		t.Errorf("URL = %q, want the first manager in ID order", manager.URL)
	}
	if manager.DataString("api_url") != "https://b.example.org/api" {
		t.Errorf("api_url = %q", manager.DataString("api_url"))
	}
}

func TestDecodeUserWidgetsSkipsOnlyBadEntries(t *testing.T) {
	data := []byte(`{
		"manager": {"type": "m.widget", "sender": "@operator:example.org",
			"content": {"type": "m.integration_manager", "url": "https://im.example.org/"}},
		"bot": {"type": "m.widget", "sender": "bridge-bot", "content": {"type": "m.custom"}},
		"numeric_sender": {"type": "m.widget", "sender": 42},
		"not_an_object": "m.widget"
	}`)
	content, skipped, err := DecodeUserWidgets(data)
	if err != nil {
		t.Fatalf("DecodeUserWidgets: %v", err)
	}
	if ids := content.SortedIDs(); len(ids) != 2 || ids[0] != "bot" || ids[1] != "manager" {
		t.Errorf("decoded IDs = %v, want [bot manager]", ids)
	}
	if content["bot"].Sender != "bridge-bot" {
		t.Errorf("bot sender = %q", content["bot"].Sender)
	}
	if len(skipped) != 2 || skipped["numeric_sender"] == nil || skipped["not_an_object"] == nil {
		t.Errorf("skipped = %v, want numeric_sender and not_an_object", skipped)
	}

	// The json.Unmarshaler path applies the same tolerance.
	var viaUnmarshal UserWidgetsContent
	if err := json.Unmarshal(data, &viaUnmarshal); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(viaUnmarshal) != 2 {
		t.Errorf("Unmarshal kept %d entries, want 2", len(viaUnmarshal))
	}

	if _, _, err := DecodeUserWidgets([]byte(`["m.widget"]`)); err == nil {
		t.Error("DecodeUserWidgets accepted a JSON array")
	}
}

func TestAllowedWidgetsCloneIsDeep(t *testing.T) {
	original := AllowedWidgetsContent{
		Widgets:       map[string]bool{"$a": true},
		NativeWidgets: map[string]map[string]bool{"jitsi": {"meet.example.org": true}},
	}
	clone := original.Clone()
	clone.Widgets["$b"] = true
	clone.SetNativeDomain("jitsi", "other.example.org", true)

	if _, ok := original.Widgets["$b"]; ok {
		t.Error("clone shares the widgets map with the original")
	}
	if original.NativeDomainAllowed("jitsi", "other.example.org") {
		t.Error("clone shares a native domain map with the original")
	}
	if !clone.NativeDomainAllowed("jitsi", "meet.example.org") {
		t.Error("clone lost an existing native domain decision")
	}
}

func TestAllowedWidgetsEmptyCloneMarshalsMaps(t *testing.T) {
	data, err := json.Marshal(AllowedWidgetsContent{}.Clone())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"widgets":{},"native_widgets":{}}` {
		t.Errorf("Marshal = %s", data)
	}
}

func TestPreferredManager(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantOK    bool
		wantAPI   string
		wantUIURL string
	}{
		{name: "missing section", body: `{}`, wantOK: false},
		{name: "empty managers", body: `{"m.integrations":{"managers":[]}}`, wantOK: false},
		{
			name:      "skips entries without api_url",
			body:      `{"m.integrations":{"managers":[{"ui_url":"https://x/"},{"api_url":"https://im.example.org/api","ui_url":"https://im.example.org/"}]}}`,
			wantOK:    true,
			wantAPI:   "https://im.example.org/api",
			wantUIURL: "https://im.example.org/",
		},
		{
			name:      "ui_url defaults to api_url",
			body:      `{"m.integrations":{"managers":[{"api_url":"https://im.example.org/api"}]}}`,
			wantOK:    true,
			wantAPI:   "https://im.example.org/api",
			wantUIURL: "https://im.example.org/api",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var wellKnown ClientWellKnown
			if err := json.Unmarshal([]byte(test.body), &wellKnown); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			manager, ok := wellKnown.PreferredManager()
			if ok != test.wantOK {
				t.Fatalf("ok = %v, want %v", ok, test.wantOK)
			}
			if manager.APIURL != test.wantAPI || manager.UIURL != test.wantUIURL {
				t.Errorf("manager = %+v", manager)
			}
		})
	}
}
