// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the subset of the Matrix client-server API
// that the integration registry and widget service depend on.
//
// [Client] is an unauthenticated client holding the homeserver URL
// and HTTP transport. It fetches server discovery metadata
// (/.well-known/matrix/client) and mints authenticated sessions from
// an access token.
//
// [DirectSession] wraps a Client with an access token for
// authenticated operations: per-user account data (get/set), room
// state (single event and full state), state event writes, and
// incremental /sync with long-polling. The [Session] interface is the
// narrow surface the higher-level packages accept, so tests can
// substitute an in-memory fake.
//
// All homeserver errors are returned as [*MatrixError] with the
// standard Matrix error code (M_FORBIDDEN, M_NOT_FOUND, etc.) and HTTP
// status code. [IsMatrixError] tests for a specific error code.
// [IsNotFound] identifies account data the user never set, and
// [IsAuthFailure] a rejected access token, which no retry can fix.
//
// Request URLs are built by string concatenation with url.PathEscape
// per segment rather than url.URL, to avoid double-encoding of path
// segments that contain escaped characters.
package messaging
