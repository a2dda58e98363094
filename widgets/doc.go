// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package widgets maintains the session user's view of room widgets
// (m.widget and im.vector.modular.widgets state events) and user
// widgets (the m.widgets account data document).
//
// The [Service] cache is fed by [Service.LoadRoom],
// [Service.LoadUserWidgets] and by the /sync
// loop through [Service.HandleRoomState] and
// [Service.HandleAccountData]. Reads ([Service.RoomWidgets],
// [Service.UserWidgets]) never touch the network. Live queries
// ([Service.WatchRoomWidgets], [Service.WatchUserWidgets]) deliver the
// filtered view on a channel every time the underlying widget set
// changes, keeping only the latest view when the consumer falls
// behind.
//
// Deactivated widgets (state events with empty content) stay listed
// with Active false. Deactivation and permission revocation in
// package integrationmanager are independent.
//
// [FormatURL] turns a widget's templated URL into the URL a client
// loads.
package widgets
