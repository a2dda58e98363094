// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the module's standard CBOR encoding
// configuration.
//
// Serialization follows a clear boundary: JSON for external interfaces
// (the Matrix client-server API, CLI output) and CBOR for on-disk
// state (the registry snapshot). This package holds the shared CBOR
// modes so every encoder produces identical bytes for the same logical
// data. The encoder uses Core Deterministic Encoding (RFC 8949 §4.2):
// sorted map keys, smallest integer encoding, no indefinite-length
// items. The snapshot digest depends on that property.
//
// Usage:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// # Struct Tag Rules
//
// A `cbor` tag marks a type that is only ever serialized as CBOR. A
// `json` tag marks a type that may be serialized as both: fxamacker/cbor
// reads `json` tags when `cbor` tags are absent, so one tag controls
// field naming for both formats. Never use both tags on the same field.
package codec
