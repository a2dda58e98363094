// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/integrations/cmd/bureau-integrations/cli"
	"github.com/bureau-foundation/integrations/lib/async"
	"github.com/bureau-foundation/integrations/lib/ref"
)

func (a *app) enableCommand(enable bool) *cli.Command {
	name, summary := "enable", "Enable integrations"
	if !enable {
		name, summary = "disable", "Disable integrations"
	}
	return &cli.Command{
		Name:    name,
		Summary: summary,
		Flags:   func() *pflag.FlagSet { return a.flagSet(name, false) },
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("%s takes no arguments", name)
			}
			ctx, cancel := commandContext()
			defer cancel()
			env, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			_, err = await(ctx, func(callback async.Callback[struct{}]) *async.Request {
				return env.registry.SetIntegrationEnabled(enable, callback)
			})
			if err != nil {
				return err
			}
			env.saveSnapshot()
			fmt.Fprintf(a.stdout, "Integrations enabled: %t\n", enable)
			return nil
		},
	}
}

func (a *app) widgetCommand() *cli.Command {
	decide := func(allowed bool) *cli.Command {
		name := decision(allowed)
		return &cli.Command{
			Name:    name,
			Summary: fmt.Sprintf("%s a widget by the event ID of its state event", titleCase(name)),
			Usage:   fmt.Sprintf("bureau-integrations widget %s <state-event-id> [flags]", name),
			Flags:   func() *pflag.FlagSet { return a.flagSet("widget "+name, false) },
			Run: func(args []string) error {
				if len(args) != 1 {
					return fmt.Errorf("widget %s takes exactly one state event ID", name)
				}
				eventID, err := ref.ParseEventID(args[0])
				if err != nil {
					return fmt.Errorf("widget %s: %w", name, err)
				}
				stateEventID := eventID.String()
				ctx, cancel := commandContext()
				defer cancel()
				env, err := a.open(ctx)
				if err != nil {
					return err
				}
				defer env.Close()

				_, err = await(ctx, func(callback async.Callback[struct{}]) *async.Request {
					return env.registry.SetWidgetAllowed(stateEventID, allowed, callback)
				})
				if err != nil {
					return err
				}
				env.saveSnapshot()
				fmt.Fprintf(a.stdout, "%s %s\n", name, stateEventID)
				return nil
			},
		}
	}
	return &cli.Command{
		Name:        "widget",
		Summary:     "Allow or deny individual widgets",
		Subcommands: []*cli.Command{decide(true), decide(false)},
	}
}

func (a *app) domainCommand() *cli.Command {
	decide := func(allowed bool) *cli.Command {
		name := decision(allowed)
		return &cli.Command{
			Name:    name,
			Summary: fmt.Sprintf("%s native widgets of a type served from a domain", titleCase(name)),
			Usage:   fmt.Sprintf("bureau-integrations domain %s <widget-type> <domain> [flags]", name),
			Examples: []cli.Example{{
				Description: "Trust Jitsi widgets served by meet.example.org",
				Command:     "bureau-integrations domain allow jitsi meet.example.org",
			}},
			Flags: func() *pflag.FlagSet { return a.flagSet("domain "+name, false) },
			Run: func(args []string) error {
				if len(args) != 2 {
					return fmt.Errorf("domain %s takes a widget type and a domain", name)
				}
				widgetType, domain := args[0], args[1]
				ctx, cancel := commandContext()
				defer cancel()
				env, err := a.open(ctx)
				if err != nil {
					return err
				}
				defer env.Close()

				_, err = await(ctx, func(callback async.Callback[struct{}]) *async.Request {
					return env.registry.SetNativeWidgetDomainAllowed(widgetType, domain, allowed, callback)
				})
				if err != nil {
					return err
				}
				env.saveSnapshot()
				fmt.Fprintf(a.stdout, "%s %s %s\n", name, widgetType, domain)
				return nil
			},
		}
	}
	return &cli.Command{
		Name:        "domain",
		Summary:     "Allow or deny native widget domains",
		Subcommands: []*cli.Command{decide(true), decide(false)},
	}
}

func titleCase(word string) string {
	if word == "" {
		return word
	}
	return strings.ToUpper(word[:1]) + word[1:]
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.SortedFunc(maps.Keys(m), cmp.Compare[string])
}
