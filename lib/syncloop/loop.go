// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package syncloop

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/integrations/lib/clock"
	"github.com/bureau-foundation/integrations/lib/ref"
	"github.com/bureau-foundation/integrations/lib/schema"
	"github.com/bureau-foundation/integrations/messaging"
)

// AccountDataHandler consumes global account data from /sync.
// *integrationmanager.Service and *widgets.Service implement it.
type AccountDataHandler interface {
	HandleAccountData(ctx context.Context, events []messaging.AccountDataEvent)
}

// RoomStateHandler consumes the state changes of one joined room.
// *widgets.Service implements it.
type RoomStateHandler interface {
	HandleRoomState(ctx context.Context, roomID ref.RoomID, events []messaging.Event)
}

// MaxRetries is the number of consecutive /sync failures tolerated
// before Run returns an error.
const MaxRetries = 5

// DefaultLongPollTimeout is the server-side hold time for normal
// /sync calls.
const DefaultLongPollTimeout = 30 * time.Second

// retryTimeout is the server-side timeout used after a /sync error so
// the retry completes quickly.
const retryTimeout = time.Second

// retryDelay is the client-side pause before a retry. Connection
// refusals fail instantly, so the short server timeout alone would
// not space attempts out.
const retryDelay = time.Second

// Options configures a Loop.
type Options struct {
	// Session issues the /sync requests. Required.
	Session messaging.Session

	AccountData []AccountDataHandler
	RoomState   []RoomStateHandler

	// Since resumes from a previous position. Empty starts with a
	// full initial sync.
	Since string

	// Filter is an inline JSON filter or filter ID. Empty uses
	// DefaultFilter().
	Filter string

	// LongPollTimeout is the server-side hold time. Zero uses
	// DefaultLongPollTimeout.
	LongPollTimeout time.Duration

	// OnBatch, if set, is called after each response has been
	// dispatched, with the new since token.
	OnBatch func(nextBatch string)

	// Clock paces retries. If nil, clock.Real() is used.
	Clock clock.Clock

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Loop is a running /sync stream. Run it once.
type Loop struct {
	session         messaging.Session
	accountData     []AccountDataHandler
	roomState       []RoomStateHandler
	filter          string
	longPollTimeout time.Duration
	onBatch         func(string)
	clock           clock.Clock
	logger          *slog.Logger

	mutex     sync.Mutex
	nextBatch string
}

// New creates a Loop.
func New(options Options) *Loop {
	if options.Session == nil {
		panic("syncloop: Options.Session is required")
	}
	filter := options.Filter
	if filter == "" {
		filter = DefaultFilter()
	}
	longPollTimeout := options.LongPollTimeout
	if longPollTimeout <= 0 {
		longPollTimeout = DefaultLongPollTimeout
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		session:         options.Session,
		accountData:     options.AccountData,
		roomState:       options.RoomState,
		filter:          filter,
		longPollTimeout: longPollTimeout,
		onBatch:         options.OnBatch,
		clock:           clk,
		logger:          logger,
		nextBatch:       options.Since,
	}
}

// DefaultFilter returns an inline /sync filter limited to the account
// data documents and room state event types the registry and the
// widget service consume. Presence is suppressed.
func DefaultFilter() string {
	stateTypes := []string{
		string(schema.MatrixEventTypePowerLevels),
		string(schema.EventTypeWidget),
		string(schema.EventTypeModularWidget),
	}
	filter := map[string]any{
		"presence": map[string]any{"types": []string{}},
		"account_data": map[string]any{"types": []string{
			string(schema.AccountDataTypeIntegrationProvisioning),
			string(schema.AccountDataTypeAllowedWidgets),
			string(schema.AccountDataTypeWidgets),
		}},
		"room": map[string]any{
			"state":        map[string]any{"types": stateTypes},
			"timeline":     map[string]any{"types": stateTypes},
			"ephemeral":    map[string]any{"types": []string{}},
			"account_data": map[string]any{"types": []string{}},
		},
	}
	data, _ := json.Marshal(filter)
	return string(data)
}

// Position returns the since token of the last dispatched response.
func (l *Loop) Position() string {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.nextBatch
}

// Run syncs until ctx is canceled, the access token is rejected, or
// /sync fails more than MaxRetries consecutive times. The first request returns
// immediately (timeout 0); later requests long-poll. Handlers are
// called on Run's goroutine.
func (l *Loop) Run(ctx context.Context) error {
	var syncRetries int
	initial := true

	for {
		timeout := l.longPollTimeout
		switch {
		case syncRetries > 0:
			timeout = retryTimeout
		case initial:
			timeout = 0
		}

		response, err := l.session.Sync(ctx, messaging.SyncOptions{
			Since:      l.Position(),
			SetTimeout: true,
			Timeout:    int(timeout / time.Millisecond),
			Filter:     l.filter,
		})
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("syncloop: %w", ctx.Err())
			}
			if messaging.IsAuthFailure(err) {
				return fmt.Errorf("syncloop: access token rejected: %w", err)
			}
			syncRetries++
			// A poisoned connection in the HTTP pool keeps failing;
			// drop idle connections so the retry opens a fresh one.
			if closer, ok := l.session.(interface{ CloseIdleConnections() }); ok {
				closer.CloseIdleConnections()
			}
			if syncRetries > MaxRetries {
				return fmt.Errorf("syncloop: sync failed %d consecutive times: %w", syncRetries, err)
			}
			l.logger.Warn("sync failed, retrying",
				"attempt", syncRetries,
				"max_attempts", MaxRetries,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("syncloop: %w", ctx.Err())
			case <-l.clock.After(retryDelay):
			}
			continue
		}
		syncRetries = 0
		initial = false

		l.dispatch(ctx, response)

		l.mutex.Lock()
		l.nextBatch = response.NextBatch
		l.mutex.Unlock()
		if l.onBatch != nil {
			l.onBatch(response.NextBatch)
		}
	}
}

// dispatch hands one response to the handlers: account data first,
// then rooms in room ID order.
func (l *Loop) dispatch(ctx context.Context, response *messaging.SyncResponse) {
	if events := response.AccountData.Events; len(events) > 0 {
		l.logger.Debug("dispatching account data", "events", len(events))
		for _, handler := range l.accountData {
			handler.HandleAccountData(ctx, events)
		}
	}

	roomIDs := make([]ref.RoomID, 0, len(response.Rooms.Join))
	for roomID := range response.Rooms.Join {
		roomIDs = append(roomIDs, roomID)
	}
	slices.SortFunc(roomIDs, func(a, b ref.RoomID) int {
		return cmp.Compare(a.String(), b.String())
	})
	for _, roomID := range roomIDs {
		events := response.Rooms.Join[roomID].StateEvents()
		if len(events) == 0 {
			continue
		}
		l.logger.Debug("dispatching room state", "room_id", roomID, "events", len(events))
		for _, handler := range l.roomState {
			handler.HandleRoomState(ctx, roomID, events)
		}
	}
}

