// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the Matrix event types and content structures
// that the integration registry and widget service read and write.
// Event type constants are Matrix event type strings; Go structs define
// the JSON content.
//
// Three families of documents are covered:
//
//   - Account data (per user, shared across devices):
//     [AccountDataTypeIntegrationProvisioning] holds the global
//     enabled flag, [AccountDataTypeAllowedWidgets] holds widget and
//     native widget domain permission decisions, and
//     [AccountDataTypeWidgets] holds user-scoped widgets, including
//     the user's chosen integration manager.
//   - Room state: [EventTypeWidget] and [EventTypeModularWidget] declare
//     room widgets (state key = widget ID), and
//     [MatrixEventTypePowerLevels] decides who may change them.
//   - Server discovery: [ClientWellKnown] is the body of
//     /.well-known/matrix/client, whose m.integrations section lists
//     server-recommended integration managers.
//
// This package depends only on lib/ref.
package schema
