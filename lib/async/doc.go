// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package async implements the callback-and-cancel contract used by
// every mutating operation in the integration registry and widget
// service.
//
// A mutation returns immediately with a [*Request] and completes later
// on its own goroutine by invoking a [Callback]: OnSuccess with the
// result, or OnFailure with the error. [Request.Cancel] suppresses
// delivery: once Cancel returns true, neither the callback nor the
// operation's apply step (cache update and listener notification)
// runs, even if the remote call later succeeds.
//
// Cancellation is local only. The remote call is not aborted and any
// state it already changed on the homeserver stays changed; the
// authoritative value reaches local caches through the next /sync.
//
// Delivery happens on the request's goroutine. Callers that need to
// marshal results onto a particular goroutine do so in their callback.
package async
