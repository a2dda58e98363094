// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package integrationmanager

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/integrations/lib/async"
	"github.com/bureau-foundation/integrations/lib/ref"
	"github.com/bureau-foundation/integrations/lib/schema"
	"github.com/bureau-foundation/integrations/lib/testutil"
	"github.com/bureau-foundation/integrations/messaging"
)

const testTimeout = 5 * time.Second

// fakeStore is an in-memory account data store. Writes can be gated so
// tests control when the "remote" call completes; entered receives a
// value each time a write parks on the gate.
type fakeStore struct {
	mutex     sync.Mutex
	documents map[ref.EventType]json.RawMessage
	readErr   error
	writeErr  error
	gate      chan struct{}
	entered   chan struct{}
	writes    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{documents: make(map[ref.EventType]json.RawMessage)}
}

func (store *fakeStore) GetAccountData(ctx context.Context, eventType ref.EventType) (json.RawMessage, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.readErr != nil {
		return nil, store.readErr
	}
	document, ok := store.documents[eventType]
	if !ok {
		return nil, &messaging.MatrixError{Code: messaging.ErrCodeNotFound, Message: "not found", StatusCode: http.StatusNotFound}
	}
	return document, nil
}

func (store *fakeStore) SetAccountData(ctx context.Context, eventType ref.EventType, content any) error {
	store.mutex.Lock()
	gate, entered := store.gate, store.entered
	store.mutex.Unlock()
	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		<-gate
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.writeErr != nil {
		return store.writeErr
	}
	encoded, err := json.Marshal(content)
	if err != nil {
		return err
	}
	store.documents[eventType] = encoded
	store.writes++
	return nil
}

func (store *fakeStore) put(t *testing.T, eventType ref.EventType, content any) {
	t.Helper()
	encoded, err := json.Marshal(content)
	if err != nil {
		t.Fatalf("encoding %s: %v", eventType, err)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.documents[eventType] = encoded
}

func (store *fakeStore) allowedWidgets(t *testing.T) schema.AllowedWidgetsContent {
	t.Helper()
	store.mutex.Lock()
	defer store.mutex.Unlock()
	var content schema.AllowedWidgetsContent
	if document, ok := store.documents[schema.AccountDataTypeAllowedWidgets]; ok {
		if err := json.Unmarshal(document, &content); err != nil {
			t.Fatalf("decoding stored allowed widgets: %v", err)
		}
	}
	return content
}

// block gates every subsequent write until the returned release
// function is called.
func (store *fakeStore) block() (entered <-chan struct{}, release func()) {
	gate := make(chan struct{})
	enteredChannel := make(chan struct{}, 16)
	store.mutex.Lock()
	store.gate, store.entered = gate, enteredChannel
	store.mutex.Unlock()
	return enteredChannel, func() { close(gate) }
}

func (store *fakeStore) writeCount() int {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.writes
}

// fakeResolver serves a fixed well-known document or error.
type fakeResolver struct {
	mutex     sync.Mutex
	wellKnown *schema.ClientWellKnown
	err       error
	calls     chan struct{}
}

func (resolver *fakeResolver) ClientWellKnown(ctx context.Context) (*schema.ClientWellKnown, error) {
	resolver.mutex.Lock()
	wellKnown, err := resolver.wellKnown, resolver.err
	resolver.mutex.Unlock()
	if resolver.calls != nil {
		select {
		case resolver.calls <- struct{}{}:
		default:
		}
	}
	return wellKnown, err
}

func (resolver *fakeResolver) set(wellKnown *schema.ClientWellKnown, err error) {
	resolver.mutex.Lock()
	defer resolver.mutex.Unlock()
	resolver.wellKnown, resolver.err = wellKnown, err
}

func wellKnownWithManager(apiURL, uiURL string) *schema.ClientWellKnown {
	return &schema.ClientWellKnown{Integrations: &schema.IntegrationsWellKnown{
		Managers: []schema.IntegrationManagerWellKnown{{APIURL: apiURL, UIURL: uiURL}},
	}}
}

// recordingListener captures notifications on buffered channels.
type recordingListener struct {
	NopListener
	enabled chan bool
	configs chan []Config
	widgets chan map[string]bool
}

func newRecordingListener() *recordingListener {
	return &recordingListener{
		enabled: make(chan bool, 16),
		configs: make(chan []Config, 16),
		widgets: make(chan map[string]bool, 16),
	}
}

func (listener *recordingListener) IntegrationEnabledChanged(enabled bool) {
	listener.enabled <- enabled
}

func (listener *recordingListener) ConfigurationChanged(configs []Config) {
	listener.configs <- configs
}

func (listener *recordingListener) WidgetPermissionsChanged(widgets map[string]bool) {
	listener.widgets <- widgets
}

func (listener *recordingListener) pending() int {
	return len(listener.enabled) + len(listener.configs) + len(listener.widgets)
}

type asyncCallback = async.Callback[struct{}]

// outcome captures a mutation callback.
type outcome struct {
	success chan struct{}
	failure chan error
}

func newOutcome() *outcome {
	return &outcome{success: make(chan struct{}, 1), failure: make(chan error, 1)}
}

func (o *outcome) callback() asyncCallback {
	return asyncCallback{
		OnSuccess: func(struct{}) { o.success <- struct{}{} },
		OnFailure: func(err error) { o.failure <- err },
	}
}

func (o *outcome) requireSuccess(t *testing.T) {
	t.Helper()
	select {
	case <-o.success:
	case err := <-o.failure:
		t.Fatalf("mutation failed: %v", err)
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for mutation callback")
	}
}

func (o *outcome) requireFailure(t *testing.T) error {
	t.Helper()
	return testutil.RequireReceive(t, o.failure, testTimeout, "waiting for mutation failure")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, store *fakeStore, resolver WellKnownResolver) *Service {
	t.Helper()
	return New(Options{Store: store, WellKnown: resolver, Logger: discardLogger()})
}

func accountDataEvent(t *testing.T, eventType ref.EventType, content any) messaging.AccountDataEvent {
	t.Helper()
	encoded, err := json.Marshal(content)
	if err != nil {
		t.Fatalf("encoding %s: %v", eventType, err)
	}
	return messaging.AccountDataEvent{Type: eventType, Content: encoded}
}
