// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/bureau-foundation/integrations/cmd/bureau-integrations/cli"
)

func (a *app) root() *cli.Command {
	return &cli.Command{
		Name:    "bureau-integrations",
		Summary: "Manage integration managers and widget permissions",
		Description: `Manage the integration manager and widget permission settings stored in
your Matrix account data, and the widgets of rooms you are in.

Every command reads its configuration from --config or the
BUREAU_INTEGRATIONS_CONFIG environment variable.`,
		Subcommands: []*cli.Command{
			a.statusCommand(),
			a.enableCommand(true),
			a.enableCommand(false),
			a.widgetCommand(),
			a.domainCommand(),
			a.widgetsCommand(),
			a.watchCommand(),
		},
	}
}
