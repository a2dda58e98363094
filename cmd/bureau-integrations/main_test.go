// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

const (
	testUserID = "@alice:test"
	testRoomID = "!room:test"
)

// fakeHomeserver serves the client-server endpoints the commands use:
// account data, room state, and the client well-known document.
type fakeHomeserver struct {
	mutex       sync.Mutex
	accountData map[string]json.RawMessage
	roomState   []map[string]any
	sentState   []sentStateEvent
	eventCount  int
	server      *httptest.Server
}

type sentStateEvent struct {
	eventType string
	stateKey  string
	content   map[string]any
}

func newFakeHomeserver(t *testing.T) *fakeHomeserver {
	t.Helper()
	homeserver := &fakeHomeserver{accountData: make(map[string]json.RawMessage)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/matrix/client", func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusOK, map[string]any{
			"m.homeserver": map[string]any{"base_url": homeserver.server.URL},
		})
	})
	mux.HandleFunc("GET /_matrix/client/v3/user/{user}/account_data/{type}", func(w http.ResponseWriter, r *http.Request) {
		homeserver.mutex.Lock()
		content, ok := homeserver.accountData[r.PathValue("type")]
		homeserver.mutex.Unlock()
		if !ok {
			writeJSONResponse(w, http.StatusNotFound, map[string]string{"errcode": "M_NOT_FOUND", "error": "not found"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(content)
	})
	mux.HandleFunc("PUT /_matrix/client/v3/user/{user}/account_data/{type}", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		homeserver.mutex.Lock()
		homeserver.accountData[r.PathValue("type")] = body
		homeserver.mutex.Unlock()
		writeJSONResponse(w, http.StatusOK, map[string]any{})
	})
	mux.HandleFunc("GET /_matrix/client/v3/rooms/{room}/state", func(w http.ResponseWriter, r *http.Request) {
		homeserver.mutex.Lock()
		defer homeserver.mutex.Unlock()
		if r.PathValue("room") != testRoomID {
			writeJSONResponse(w, http.StatusForbidden, map[string]string{"errcode": "M_FORBIDDEN", "error": "not in room"})
			return
		}
		writeJSONResponse(w, http.StatusOK, homeserver.roomState)
	})
	mux.HandleFunc("PUT /_matrix/client/v3/rooms/{room}/state/{type}/{key}", func(w http.ResponseWriter, r *http.Request) {
		var content map[string]any
		if err := json.NewDecoder(r.Body).Decode(&content); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, map[string]string{"errcode": "M_BAD_JSON", "error": err.Error()})
			return
		}
		homeserver.mutex.Lock()
		homeserver.eventCount++
		eventID := fmt.Sprintf("$event%d", homeserver.eventCount)
		homeserver.sentState = append(homeserver.sentState, sentStateEvent{
			eventType: r.PathValue("type"),
			stateKey:  r.PathValue("key"),
			content:   content,
		})
		homeserver.mutex.Unlock()
		writeJSONResponse(w, http.StatusOK, map[string]string{"event_id": eventID})
	})

	homeserver.server = httptest.NewServer(mux)
	t.Cleanup(homeserver.server.Close)
	return homeserver
}

func writeJSONResponse(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(value)
}

func (homeserver *fakeHomeserver) setAccountData(eventType string, content any) {
	data, err := json.Marshal(content)
	if err != nil {
		panic(err)
	}
	homeserver.mutex.Lock()
	defer homeserver.mutex.Unlock()
	homeserver.accountData[eventType] = data
}

func (homeserver *fakeHomeserver) storedAccountData(t *testing.T, eventType string, into any) {
	t.Helper()
	homeserver.mutex.Lock()
	data, ok := homeserver.accountData[eventType]
	homeserver.mutex.Unlock()
	if !ok {
		t.Fatalf("account data %s was never written", eventType)
	}
	if err := json.Unmarshal(data, into); err != nil {
		t.Fatalf("decoding account data %s: %v", eventType, err)
	}
}

func (homeserver *fakeHomeserver) addState(eventType, stateKey, eventID string, content map[string]any) {
	homeserver.mutex.Lock()
	defer homeserver.mutex.Unlock()
	homeserver.roomState = append(homeserver.roomState, map[string]any{
		"type":      eventType,
		"state_key": stateKey,
		"event_id":  eventID,
		"sender":    testUserID,
		"content":   content,
	})
}

// writeConfig writes a config file pointing at homeserver, with a
// token file and a snapshot path inside a temporary directory.
func writeConfig(t *testing.T, homeserver *fakeHomeserver) string {
	t.Helper()
	directory := t.TempDir()
	tokenPath := filepath.Join(directory, "token")
	if err := os.WriteFile(tokenPath, []byte("syt_test_token\n"), 0600); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(directory, "config.yaml")
	content := fmt.Sprintf(`environment: development
homeserver_url: %s
user_id: "%s"
access_token_file: %s
default_manager:
  api_url: https://manager.example/api
  ui_url: https://manager.example/
cache:
  path: %s
`, homeserver.server.URL, testUserID, tokenPath, filepath.Join(directory, "registry.snapshot"))
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return configPath
}

// execute runs the command line args against a fresh app and returns
// its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	application := newApp(&stdout)
	root := application.root()
	root.Output = io.Discard
	err := root.Execute(args)
	return stdout.String(), err
}

func TestDisableWritesProvisioningDocument(t *testing.T) {
	homeserver := newFakeHomeserver(t)
	configPath := writeConfig(t, homeserver)

	output, err := execute(t, "disable", "--config", configPath, "--log-level", "error")
	if err != nil {
		t.Fatalf("disable: %v", err)
	}
	if !strings.Contains(output, "Integrations enabled: false") {
		t.Errorf("output = %q", output)
	}

	var stored struct {
		Enabled bool `json:"enabled"`
	}
	stored.Enabled = true
	homeserver.storedAccountData(t, "im.vector.setting.integration_provisioning", &stored)
	if stored.Enabled {
		t.Error("stored enabled = true after disable")
	}
}

func TestStatusJSON(t *testing.T) {
	homeserver := newFakeHomeserver(t)
	homeserver.setAccountData("im.vector.setting.integration_provisioning", map[string]any{"enabled": false})
	homeserver.setAccountData("im.vector.setting.allowed_widgets", map[string]any{
		"widgets":        map[string]bool{"$a": true, "$b": false},
		"native_widgets": map[string]map[string]bool{"jitsi": {"meet.example": true}},
	})
	configPath := writeConfig(t, homeserver)

	output, err := execute(t, "status", "--config", configPath, "--log-level", "error", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}

	var status statusOutput
	if err := json.Unmarshal([]byte(output), &status); err != nil {
		t.Fatalf("decoding status output %q: %v", output, err)
	}
	if status.Enabled {
		t.Error("Enabled = true, want false")
	}
	if status.Preferred.APIURL != "https://manager.example/api" {
		t.Errorf("Preferred.APIURL = %q, want the configured default", status.Preferred.APIURL)
	}
	if len(status.Configs) != 1 {
		t.Errorf("len(Configs) = %d, want 1", len(status.Configs))
	}
	if !status.Widgets["$a"] || status.Widgets["$b"] {
		t.Errorf("Widgets = %v", status.Widgets)
	}
	if !status.NativeWidgets["jitsi"]["meet.example"] {
		t.Errorf("NativeWidgets = %v", status.NativeWidgets)
	}
}

func TestWidgetAllowPreservesOtherDecisions(t *testing.T) {
	homeserver := newFakeHomeserver(t)
	homeserver.setAccountData("im.vector.setting.allowed_widgets", map[string]any{
		"widgets": map[string]bool{"$existing": false},
	})
	configPath := writeConfig(t, homeserver)

	if _, err := execute(t, "widget", "allow", "$new", "--config", configPath, "--log-level", "error"); err != nil {
		t.Fatalf("widget allow: %v", err)
	}

	var stored struct {
		Widgets map[string]bool `json:"widgets"`
	}
	homeserver.storedAccountData(t, "im.vector.setting.allowed_widgets", &stored)
	if len(stored.Widgets) != 2 || !stored.Widgets["$new"] || stored.Widgets["$existing"] {
		t.Errorf("stored widgets = %v, want $new allowed and $existing denied", stored.Widgets)
	}
}

func TestWidgetAllowRequiresOneArgument(t *testing.T) {
	homeserver := newFakeHomeserver(t)
	configPath := writeConfig(t, homeserver)

	_, err := execute(t, "widget", "allow", "--config", configPath)
	if err == nil || !strings.Contains(err.Error(), "exactly one") {
		t.Errorf("error = %v, want an argument count error", err)
	}
}

func TestWidgetsCreateAndList(t *testing.T) {
	homeserver := newFakeHomeserver(t)
	homeserver.addState("m.room.power_levels", "", "$power", map[string]any{
		"users":  map[string]int{testUserID: 100},
		"events": map[string]int{"im.vector.modular.widgets": 50},
	})
	homeserver.addState("im.vector.modular.widgets", "old", "$old", map[string]any{})
	configPath := writeConfig(t, homeserver)

	contentPath := filepath.Join(t.TempDir(), "widget.jsonc")
	contentFile := `{
	// Shared board for the room.
	"type": "m.custom",
	"url": "https://board.example/",
	"name": "Board",
}`
	if err := os.WriteFile(contentPath, []byte(contentFile), 0600); err != nil {
		t.Fatal(err)
	}

	output, err := execute(t, "widgets", "create",
		"--config", configPath, "--log-level", "error",
		"--room", testRoomID, "--id", "board", "--content", contentPath)
	if err != nil {
		t.Fatalf("widgets create: %v", err)
	}
	if !strings.Contains(output, "created widget board") {
		t.Errorf("output = %q", output)
	}

	homeserver.mutex.Lock()
	sent := homeserver.sentState
	homeserver.mutex.Unlock()
	if len(sent) != 1 {
		t.Fatalf("sent %d state events, want 1", len(sent))
	}
	if sent[0].eventType != "im.vector.modular.widgets" || sent[0].stateKey != "board" {
		t.Errorf("sent %s/%s, want im.vector.modular.widgets/board", sent[0].eventType, sent[0].stateKey)
	}
	if sent[0].content["url"] != "https://board.example/" || sent[0].content["name"] != "Board" {
		t.Errorf("sent content = %v", sent[0].content)
	}

	output, err = execute(t, "widgets", "list",
		"--config", configPath, "--log-level", "error",
		"--room", testRoomID, "--json")
	if err != nil {
		t.Fatalf("widgets list: %v", err)
	}
	var rows []widgetRow
	if err := json.Unmarshal([]byte(output), &rows); err != nil {
		t.Fatalf("decoding list output %q: %v", output, err)
	}
	if len(rows) != 1 || rows[0].ID != "old" || rows[0].Active {
		t.Errorf("rows = %+v, want only the deactivated widget old", rows)
	}
}

func TestWidgetsCreatePermissionDenied(t *testing.T) {
	homeserver := newFakeHomeserver(t)
	homeserver.addState("m.room.power_levels", "", "$power", map[string]any{
		"users":  map[string]int{testUserID: 0},
		"events": map[string]int{"im.vector.modular.widgets": 50},
	})
	configPath := writeConfig(t, homeserver)

	contentPath := filepath.Join(t.TempDir(), "widget.json")
	if err := os.WriteFile(contentPath, []byte(`{"type": "m.custom", "url": "https://x.example/"}`), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := execute(t, "widgets", "create",
		"--config", configPath, "--log-level", "error",
		"--room", testRoomID, "--content", contentPath)
	if err == nil {
		t.Fatal("create succeeded without permission")
	}
	homeserver.mutex.Lock()
	defer homeserver.mutex.Unlock()
	if len(homeserver.sentState) != 0 {
		t.Errorf("sent %d state events, want none", len(homeserver.sentState))
	}
}

func TestUnknownCommandSuggests(t *testing.T) {
	_, err := execute(t, "stauts")
	if err == nil || !strings.Contains(err.Error(), `"status"`) {
		t.Errorf("error = %v, want a suggestion of status", err)
	}
}

func TestWidgetAllowRejectsMalformedEventID(t *testing.T) {
	homeserver := newFakeHomeserver(t)
	configPath := writeConfig(t, homeserver)

	_, err := execute(t, "widget", "deny", "widget1", "--config", configPath)
	if err == nil || !strings.Contains(err.Error(), "must start with '$'") {
		t.Errorf("error = %v, want an event ID error", err)
	}
	homeserver.mutex.Lock()
	defer homeserver.mutex.Unlock()
	if _, written := homeserver.accountData["im.vector.setting.allowed_widgets"]; written {
		t.Error("allowed_widgets written for a malformed event ID")
	}
}

func TestWidgetsUserSkipsOnlyMalformedEntries(t *testing.T) {
	homeserver := newFakeHomeserver(t)
	homeserver.setAccountData("m.widgets", json.RawMessage(`{
		"bot_widget": {"type": "m.widget", "state_key": "bot_widget", "sender": "bridge-bot",
			"content": {"type": "m.custom", "url": "https://bot.example/"}},
		"broken": {"type": "m.widget", "content": 7},
		"stickers": {"type": "m.widget", "state_key": "stickers", "sender": "@alice:test",
			"content": {"type": "m.stickerpicker", "url": "https://stickers.example/"}}
	}`))
	configPath := writeConfig(t, homeserver)

	output, err := execute(t, "widgets", "user", "--config", configPath, "--log-level", "error", "--json")
	if err != nil {
		t.Fatalf("widgets user: %v", err)
	}
	var rows []widgetRow
	if err := json.Unmarshal([]byte(output), &rows); err != nil {
		t.Fatalf("decoding user output %q: %v", output, err)
	}
	if len(rows) != 2 || rows[0].ID != "bot_widget" || rows[1].ID != "stickers" {
		t.Fatalf("rows = %+v, want bot_widget and stickers", rows)
	}
	if rows[0].Sender != "" || rows[1].Sender != testUserID {
		t.Errorf("senders = %q, %q", rows[0].Sender, rows[1].Sender)
	}
}

func TestWidgetsURL(t *testing.T) {
	homeserver := newFakeHomeserver(t)
	homeserver.addState("im.vector.modular.widgets", "jitsi1", "$jitsi", map[string]any{
		"type": "jitsi",
		"url":  "https://meet.example/$matrix_room_id/$conferenceId?user=$matrix_user_id",
		"data": map[string]any{"conferenceId": "standup"},
	})
	homeserver.setAccountData("m.widgets", map[string]any{
		"stickers": map[string]any{
			"type":    "m.widget",
			"content": map[string]any{"type": "m.stickerpicker", "url": "https://manager.example/stickers?widget=$matrix_widget_id"},
		},
	})
	configPath := writeConfig(t, homeserver)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "room widget",
			args: []string{"--room", testRoomID, "--id", "jitsi1", "--token", "secret"},
			want: "https://meet.example/%21room%3Atest/standup?user=%40alice%3Atest",
		},
		{
			name: "user widget served by the default manager",
			args: []string{"--id", "stickers", "--token", "secret"},
			want: "https://manager.example/stickers?widget=stickers&scalar_token=secret",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			args := append([]string{"widgets", "url", "--config", configPath, "--log-level", "error"}, test.args...)
			output, err := execute(t, args...)
			if err != nil {
				t.Fatalf("widgets url: %v", err)
			}
			if got := strings.TrimSpace(output); got != test.want {
				t.Errorf("url = %q, want %q", got, test.want)
			}
		})
	}

	if _, err := execute(t, "widgets", "url", "--config", configPath, "--log-level", "error", "--id", "missing"); err == nil {
		t.Error("widgets url accepted an unknown widget ID")
	}
}

func TestCorruptSnapshotIsDiscarded(t *testing.T) {
	homeserver := newFakeHomeserver(t)
	configPath := writeConfig(t, homeserver)
	snapshotPath := filepath.Join(filepath.Dir(configPath), "registry.snapshot")
	if err := os.WriteFile(snapshotPath, []byte("not a snapshot"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, "widgets", "user", "--config", configPath, "--log-level", "error"); err != nil {
		t.Fatalf("widgets user with a corrupt snapshot: %v", err)
	}
	if _, err := os.Stat(snapshotPath); !os.IsNotExist(err) {
		t.Errorf("corrupt snapshot still present: %v", err)
	}
}
