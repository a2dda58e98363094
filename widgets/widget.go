// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package widgets

import (
	"cmp"
	"slices"

	"github.com/bureau-foundation/integrations/lib/ref"
	"github.com/bureau-foundation/integrations/lib/schema"
)

// Widget is one room or user widget as declared by its most recent
// state event (or m.widgets entry).
type Widget struct {
	// ID is the widget ID: the state key of the declaring event.
	ID string

	// Type, Name, URL, and Data are read from the content. They are
	// empty for deactivated widgets.
	Type string
	Name string
	URL  string
	Data map[string]any

	// Content is the declaring event's full content, unmodified.
	Content map[string]any

	// RoomID is zero for user widgets.
	RoomID    ref.RoomID
	Sender    ref.UserID
	EventID   ref.EventID
	EventType ref.EventType

	// Active is false when the declaring event's content has no type
	// or no URL.
	Active bool
}

// IsUserWidget reports whether the widget comes from the user's
// account data rather than room state.
func (widget Widget) IsUserWidget() bool {
	return widget.RoomID.IsZero()
}

// newWidget builds a Widget from a widget-declaring event. Malformed
// content (fields with the wrong JSON type) is returned as an error.
func newWidget(id string, eventType ref.EventType, content map[string]any) (Widget, error) {
	parsed, err := schema.ParseWidgetContent(content)
	if err != nil {
		return Widget{}, err
	}
	return Widget{
		ID:        id,
		Type:      parsed.Type,
		Name:      parsed.Name,
		URL:       parsed.URL,
		Data:      parsed.Data,
		Content:   content,
		EventType: eventType,
		Active:    parsed.IsActive(),
	}, nil
}

// TypeSet is a set of widget content types. A nil TypeSet means "no
// filter"; a non-nil empty TypeSet matches nothing.
type TypeSet map[string]struct{}

// NewTypeSet returns a TypeSet containing types.
func NewTypeSet(types ...string) TypeSet {
	set := make(TypeSet, len(types))
	for _, widgetType := range types {
		set[widgetType] = struct{}{}
	}
	return set
}

// Contains reports whether widgetType is in the set.
func (set TypeSet) Contains(widgetType string) bool {
	_, ok := set[widgetType]
	return ok
}

// Query filters a widget listing. The zero Query matches every widget.
type Query struct {
	// WidgetID restricts the listing to one widget. Empty means no
	// condition.
	WidgetID string

	// Types keeps only widgets whose type is in the set. Nil keeps
	// every type.
	Types TypeSet

	// ExcludedTypes drops widgets whose type is in the set. Applied
	// after Types, so a type in both sets is dropped.
	ExcludedTypes TypeSet
}

// Matches reports whether widget passes the query.
func (query Query) Matches(widget Widget) bool {
	if query.WidgetID != "" && widget.ID != query.WidgetID {
		return false
	}
	if query.Types != nil && !query.Types.Contains(widget.Type) {
		return false
	}
	if query.ExcludedTypes != nil && query.ExcludedTypes.Contains(widget.Type) {
		return false
	}
	return true
}

// filter returns the widgets matching query, sorted by ID. The result
// is never nil so an empty view is distinguishable from "no view".
func (query Query) filter(widgets []Widget) []Widget {
	result := make([]Widget, 0, len(widgets))
	for _, widget := range widgets {
		if query.Matches(widget) {
			result = append(result, widget)
		}
	}
	slices.SortFunc(result, func(a, b Widget) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return result
}
