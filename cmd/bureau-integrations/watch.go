// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"sync"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/integrations/cmd/bureau-integrations/cli"
	"github.com/bureau-foundation/integrations/integrationmanager"
	"github.com/bureau-foundation/integrations/lib/ref"
	"github.com/bureau-foundation/integrations/lib/syncloop"
	"github.com/bureau-foundation/integrations/widgets"
)

func (a *app) watchCommand() *cli.Command {
	var rooms []string
	return &cli.Command{
		Name:    "watch",
		Summary: "Follow /sync and print registry and widget changes",
		Description: `Run the /sync loop, keeping the registry and widget caches current and
printing every change until interrupted. The registry snapshot is
saved after each sync batch, and the well-known integration manager
is refreshed on the configured interval.`,
		Flags: func() *pflag.FlagSet {
			flagSet := a.flagSet("watch", false)
			flagSet.StringSliceVar(&rooms, "room", nil, "also print widget changes in this room (repeatable)")
			return flagSet
		},
		Run: func(args []string) error {
			roomIDs := make([]ref.RoomID, 0, len(rooms))
			for _, raw := range rooms {
				roomID, err := ref.ParseRoomID(raw)
				if err != nil {
					return fmt.Errorf("--room: %w", err)
				}
				roomIDs = append(roomIDs, roomID)
			}

			ctx, cancel := commandContext()
			defer cancel()
			env, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			var outputMutex sync.Mutex
			printf := func(format string, args ...any) {
				outputMutex.Lock()
				defer outputMutex.Unlock()
				fmt.Fprintf(a.stdout, format, args...)
			}

			listener := &integrationmanager.ListenerFuncs{
				OnIntegrationEnabledChanged: func(enabled bool) {
					printf("integrations enabled=%t\n", enabled)
				},
				OnConfigurationChanged: func(configs []integrationmanager.Config) {
					printf("integration manager preferred=%s source=%s tiers=%d\n", configs[0].APIURL, configs[0].Kind, len(configs))
				},
				OnWidgetPermissionsChanged: func(permissions map[string]bool) {
					printf("widget permissions decisions=%d\n", len(permissions))
				},
			}
			env.registry.AddListener(listener)
			defer env.registry.RemoveListener(listener)

			var printers sync.WaitGroup
			subscriptions := make([]*widgets.Subscription, 0, len(roomIDs))
			for _, roomID := range roomIDs {
				subscription := env.widgets.WatchRoomWidgets(roomID, widgets.Query{})
				subscriptions = append(subscriptions, subscription)
				printers.Add(1)
				go func() {
					defer printers.Done()
					for view := range subscription.C {
						active := 0
						for _, widget := range view {
							if widget.Active {
								active++
							}
						}
						printf("room %s widgets=%d active=%d\n", roomID, len(view), active)
					}
				}()
			}
			defer func() {
				for _, subscription := range subscriptions {
					subscription.Close()
				}
				printers.Wait()
			}()

			go env.registry.RunWellKnownRefresh(ctx, env.config.WellKnownRefresh.Std())

			loop := syncloop.New(syncloop.Options{
				Session:         env.session,
				AccountData:     []syncloop.AccountDataHandler{env.registry, env.widgets},
				RoomState:       []syncloop.RoomStateHandler{env.widgets},
				LongPollTimeout: env.config.Sync.Timeout.Std(),
				OnBatch:         func(string) { env.saveSnapshot() },
				Logger:          env.logger,
			})
			env.logger.Info("watching", "user_id", env.session.UserID(), "rooms", len(roomIDs))
			err = loop.Run(ctx)
			env.saveSnapshot()
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}
