// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/integrations/cmd/bureau-integrations/cli"
	"github.com/bureau-foundation/integrations/integrationmanager"
)

type statusOutput struct {
	Enabled       bool                        `json:"enabled"`
	Preferred     integrationmanager.Config   `json:"preferred"`
	Configs       []integrationmanager.Config `json:"configs"`
	Widgets       map[string]bool             `json:"widgets"`
	NativeWidgets map[string]map[string]bool  `json:"native_widgets"`
}

func (a *app) statusCommand() *cli.Command {
	return &cli.Command{
		Name:    "status",
		Summary: "Show the integration settings",
		Description: `Show whether integrations are enabled, the integration managers in
precedence order (account data, well-known, default), and every
widget and native widget domain permission decision.`,
		Flags: func() *pflag.FlagSet { return a.flagSet("status", true) },
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("status takes no arguments")
			}
			ctx, cancel := commandContext()
			defer cancel()
			env, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer env.Close()
			env.saveSnapshot()

			status := statusOutput{
				Enabled:       env.registry.IsIntegrationEnabled(),
				Preferred:     env.registry.PreferredConfig(),
				Configs:       env.registry.OrderedConfigs(),
				Widgets:       env.registry.WidgetPermissions(),
				NativeWidgets: env.registry.NativeWidgetPermissions(),
			}
			if a.jsonOutput {
				return cli.WriteJSON(a.stdout, status)
			}

			fmt.Fprintf(a.stdout, "Integrations enabled: %t\n\nIntegration managers:\n", status.Enabled)
			writer := tabwriter.NewWriter(a.stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(writer, "  SOURCE\tAPI URL\tUI URL\n")
			for _, managerConfig := range status.Configs {
				fmt.Fprintf(writer, "  %s\t%s\t%s\n", managerConfig.Kind, managerConfig.APIURL, managerConfig.UIURL)
			}
			writer.Flush()

			fmt.Fprintf(a.stdout, "\nWidget permissions: %d\n", len(status.Widgets))
			for _, stateEventID := range sortedKeys(status.Widgets) {
				fmt.Fprintf(a.stdout, "  %s\t%s\n", decision(status.Widgets[stateEventID]), stateEventID)
			}
			fmt.Fprintf(a.stdout, "\nNative widget domains:\n")
			for _, widgetType := range sortedKeys(status.NativeWidgets) {
				domains := status.NativeWidgets[widgetType]
				for _, domain := range sortedKeys(domains) {
					fmt.Fprintf(a.stdout, "  %s\t%s %s\n", decision(domains[domain]), widgetType, domain)
				}
			}
			return nil
		},
	}
}

func decision(allowed bool) string {
	if allowed {
		return "allow"
	}
	return "deny"
}
