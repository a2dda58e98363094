// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package syncloop runs the Matrix /sync long-poll for a session and
// hands each response to the components that keep caches of account
// data and room state.
//
// A [Loop] performs one immediate /sync (timeout 0) to catch up, then
// long-polls with the since token. Global account data goes to every
// [AccountDataHandler]; the state changes of each joined room (the
// state section followed by state events in the timeline) go to every
// [RoomStateHandler]. Transient failures are retried a bounded number
// of times with a short server timeout, dropping idle connections
// between attempts.
package syncloop
