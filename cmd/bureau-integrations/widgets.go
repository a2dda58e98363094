// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/integrations/cmd/bureau-integrations/cli"
	"github.com/bureau-foundation/integrations/lib/async"
	"github.com/bureau-foundation/integrations/lib/ref"
	"github.com/bureau-foundation/integrations/widgets"
)

// widgetRow is one line of widget listing output. Allowed is the
// registry's decision for the widget's state event.
type widgetRow struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Name      string         `json:"name,omitempty"`
	URL       string         `json:"url,omitempty"`
	Active    bool           `json:"active"`
	Allowed   bool           `json:"allowed"`
	EventID   string         `json:"event_id,omitempty"`
	EventType string         `json:"event_type"`
	Sender    string         `json:"sender,omitempty"`
	Content   map[string]any `json:"content"`
}

func (a *app) widgetsCommand() *cli.Command {
	return &cli.Command{
		Name:    "widgets",
		Summary: "List, create, and destroy widgets",
		Subcommands: []*cli.Command{
			a.widgetsListCommand(),
			a.widgetsUserCommand(),
			a.widgetsURLCommand(),
			a.widgetsCreateCommand(),
			a.widgetsDestroyCommand(),
		},
	}
}

// queryFlags binds the widget query filters.
type queryFlags struct {
	id       string
	types    []string
	excluded []string
}

func (flags *queryFlags) register(flagSet *pflag.FlagSet, withID bool) {
	if withID {
		flagSet.StringVar(&flags.id, "id", "", "only the widget with this ID")
	}
	flagSet.StringSliceVar(&flags.types, "type", nil, "only widgets of this type (repeatable)")
	flagSet.StringSliceVar(&flags.excluded, "exclude-type", nil, "drop widgets of this type (repeatable, applied after --type)")
}

func (flags *queryFlags) query() widgets.Query {
	query := widgets.Query{WidgetID: flags.id}
	if len(flags.types) > 0 {
		query.Types = widgets.NewTypeSet(flags.types...)
	}
	if len(flags.excluded) > 0 {
		query.ExcludedTypes = widgets.NewTypeSet(flags.excluded...)
	}
	return query
}

func parseRoomFlag(raw string) (ref.RoomID, error) {
	if raw == "" {
		return ref.RoomID{}, fmt.Errorf("--room is required")
	}
	roomID, err := ref.ParseRoomID(raw)
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("--room: %w", err)
	}
	return roomID, nil
}

func (a *app) widgetsListCommand() *cli.Command {
	var room string
	var filters queryFlags
	return &cli.Command{
		Name:    "list",
		Summary: "List the widgets of a room",
		Description: `List the widgets declared in a room's state, including deactivated
ones. The ALLOWED column is your permission decision for each widget.`,
		Examples: []cli.Example{{
			Description: "Everything except Jitsi calls",
			Command:     "bureau-integrations widgets list --room '!abc:example.org' --exclude-type jitsi",
		}},
		Flags: func() *pflag.FlagSet {
			flagSet := a.flagSet("widgets list", true)
			flagSet.StringVar(&room, "room", "", "room ID (required)")
			filters.register(flagSet, true)
			return flagSet
		},
		Run: func(args []string) error {
			roomID, err := parseRoomFlag(room)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()
			env, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			if err := env.widgets.LoadRoom(ctx, roomID); err != nil {
				return err
			}
			return a.printWidgets(env, env.widgets.RoomWidgets(roomID, filters.query()))
		},
	}
}

func (a *app) widgetsUserCommand() *cli.Command {
	var filters queryFlags
	return &cli.Command{
		Name:    "user",
		Summary: "List your user widgets",
		Flags: func() *pflag.FlagSet {
			flagSet := a.flagSet("widgets user", true)
			filters.register(flagSet, false)
			return flagSet
		},
		Run: func(args []string) error {
			ctx, cancel := commandContext()
			defer cancel()
			env, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			if err := env.widgets.LoadUserWidgets(ctx); err != nil {
				return err
			}
			return a.printWidgets(env, env.widgets.UserWidgets(filters.query()))
		},
	}
}

func (a *app) widgetsURLCommand() *cli.Command {
	var room, widgetID, displayName, avatarURL, token string
	return &cli.Command{
		Name:    "url",
		Summary: "Print the URL a client would load for a widget",
		Description: `Substitute the $matrix_* template variables and the widget's data keys
into the widget URL. Without --room the widget is looked up among your
user widgets. With --token, widgets served by the preferred integration
manager get the token appended as scalar_token.`,
		Examples: []cli.Example{{
			Description: "Resolve a room's Jitsi widget URL",
			Command:     "bureau-integrations widgets url --room '!abc:example.org' --id jitsi1",
		}},
		Flags: func() *pflag.FlagSet {
			flagSet := a.flagSet("widgets url", true)
			flagSet.StringVar(&room, "room", "", "room ID (default: user widgets)")
			flagSet.StringVar(&widgetID, "id", "", "widget ID (required)")
			flagSet.StringVar(&displayName, "display-name", "", "value for $matrix_display_name")
			flagSet.StringVar(&avatarURL, "avatar-url", "", "value for $matrix_avatar_url")
			flagSet.StringVar(&token, "token", "", "integration manager token for manager widgets")
			return flagSet
		},
		Run: func(args []string) error {
			if widgetID == "" {
				return fmt.Errorf("--id is required")
			}
			var roomID ref.RoomID
			if room != "" {
				var err error
				if roomID, err = parseRoomFlag(room); err != nil {
					return err
				}
			}

			ctx, cancel := commandContext()
			defer cancel()
			env, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			query := widgets.Query{WidgetID: widgetID}
			var found []widgets.Widget
			if roomID.IsZero() {
				if err := env.widgets.LoadUserWidgets(ctx); err != nil {
					return err
				}
				found = env.widgets.UserWidgets(query)
			} else {
				if err := env.widgets.LoadRoom(ctx, roomID); err != nil {
					return err
				}
				found = env.widgets.RoomWidgets(roomID, query)
			}
			if len(found) == 0 {
				return fmt.Errorf("no widget with ID %q", widgetID)
			}

			formatted, err := widgets.FormatURL(found[0], widgets.URLParams{
				UserID:       env.session.UserID(),
				DisplayName:  displayName,
				AvatarURL:    avatarURL,
				ManagerUIURL: env.registry.PreferredConfig().UIURL,
				ManagerToken: token,
			})
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return cli.WriteJSON(a.stdout, map[string]string{"id": widgetID, "url": formatted})
			}
			fmt.Fprintln(a.stdout, formatted)
			return nil
		},
	}
}

func (a *app) widgetsCreateCommand() *cli.Command {
	var room, widgetID, contentPath string
	return &cli.Command{
		Name:    "create",
		Summary: "Add a widget to a room",
		Description: `Send an im.vector.modular.widgets state event. The content file is JSON
(comments and trailing commas allowed) and is sent unmodified. Your
power level in the room must allow sending widget state events.`,
		Examples: []cli.Example{{
			Description: "Add a dashboard with a generated widget ID",
			Command:     "bureau-integrations widgets create --room '!abc:example.org' --content dashboard.jsonc",
		}},
		Flags: func() *pflag.FlagSet {
			flagSet := a.flagSet("widgets create", true)
			flagSet.StringVar(&room, "room", "", "room ID (required)")
			flagSet.StringVar(&widgetID, "id", "", "widget ID (default: a new UUID)")
			flagSet.StringVar(&contentPath, "content", "", "widget content file (required)")
			return flagSet
		},
		Run: func(args []string) error {
			roomID, err := parseRoomFlag(room)
			if err != nil {
				return err
			}
			if contentPath == "" {
				return fmt.Errorf("--content is required")
			}
			content, err := readWidgetContent(contentPath)
			if err != nil {
				return err
			}
			id := widgetID
			if id == "" {
				id = uuid.NewString()
			}

			ctx, cancel := commandContext()
			defer cancel()
			env, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			if err := env.widgets.LoadRoom(ctx, roomID); err != nil {
				return err
			}
			widget, err := await(ctx, func(callback async.Callback[widgets.Widget]) *async.Request {
				return env.widgets.CreateRoomWidget(roomID, id, content, callback)
			})
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return cli.WriteJSON(a.stdout, newWidgetRow(env, widget))
			}
			fmt.Fprintf(a.stdout, "created widget %s (%s)\n", widget.ID, widget.EventID)
			return nil
		},
	}
}

func (a *app) widgetsDestroyCommand() *cli.Command {
	var room, widgetID string
	return &cli.Command{
		Name:    "destroy",
		Summary: "Deactivate a room widget",
		Flags: func() *pflag.FlagSet {
			flagSet := a.flagSet("widgets destroy", false)
			flagSet.StringVar(&room, "room", "", "room ID (required)")
			flagSet.StringVar(&widgetID, "id", "", "widget ID (required)")
			return flagSet
		},
		Run: func(args []string) error {
			roomID, err := parseRoomFlag(room)
			if err != nil {
				return err
			}
			if widgetID == "" {
				return fmt.Errorf("--id is required")
			}
			ctx, cancel := commandContext()
			defer cancel()
			env, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			if err := env.widgets.LoadRoom(ctx, roomID); err != nil {
				return err
			}
			_, err = await(ctx, func(callback async.Callback[struct{}]) *async.Request {
				return env.widgets.DestroyRoomWidget(roomID, widgetID, callback)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "destroyed widget %s\n", widgetID)
			return nil
		},
	}
}

// readWidgetContent reads a JSON-with-comments widget content file.
func readWidgetContent(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading widget content: %w", err)
	}
	var content map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &content); err != nil {
		return nil, fmt.Errorf("parsing widget content %s: %w", path, err)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("widget content %s is empty", path)
	}
	return content, nil
}

func newWidgetRow(env *environment, widget widgets.Widget) widgetRow {
	row := widgetRow{
		ID:        widget.ID,
		Type:      widget.Type,
		Name:      widget.Name,
		URL:       widget.URL,
		Active:    widget.Active,
		EventType: widget.EventType.String(),
		Content:   widget.Content,
	}
	if !widget.EventID.IsZero() {
		row.EventID = widget.EventID.String()
		row.Allowed = env.registry.IsWidgetAllowed(row.EventID)
	}
	if !widget.Sender.IsZero() {
		row.Sender = widget.Sender.String()
	}
	return row
}

func (a *app) printWidgets(env *environment, list []widgets.Widget) error {
	rows := make([]widgetRow, len(list))
	for i, widget := range list {
		rows[i] = newWidgetRow(env, widget)
	}
	if a.jsonOutput {
		return cli.WriteJSON(a.stdout, rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(a.stdout, "no widgets")
		return nil
	}
	writer := tabwriter.NewWriter(a.stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintf(writer, "ID\tTYPE\tACTIVE\tALLOWED\tNAME\tURL\n")
	for _, row := range rows {
		fmt.Fprintf(writer, "%s\t%s\t%t\t%t\t%s\t%s\n", row.ID, row.Type, row.Active, row.Allowed, row.Name, row.URL)
	}
	return writer.Flush()
}
