// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable Matrix identifiers:
// room IDs, user IDs, event IDs, and event types.
//
// Identifiers arrive from the homeserver (sync responses, state
// events, account data) or from operator input (CLI flags, config
// files) and are validated once at that boundary. Past the boundary,
// code passes the typed values around and never re-parses raw
// strings.
//
// All struct-wrapped types implement encoding.TextMarshaler and
// encoding.TextUnmarshaler, so they serialize as plain strings in JSON
// and CBOR and can be used as JSON map keys. The zero value of each
// type is "unset"; use IsZero to check.
package ref
