// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot persists small state documents to disk in a
// compact, integrity-checked form.
//
// A snapshot file is laid out as:
//
//	magic   [4]byte  "BISN"
//	version uint8    formatVersion
//	digest  [32]byte BLAKE3 keyed hash of the uncompressed body
//	body    []byte   zstd-compressed deterministic CBOR
//
// [Write] replaces the file atomically (temporary file, fsync, rename,
// directory fsync) so readers never observe a partial snapshot. [Read]
// rejects files with a bad header, an undecodable body, or a digest
// mismatch by returning an error wrapping [ErrCorrupt]; a missing file
// returns an error wrapping os.ErrNotExist. Callers treat both as "no
// usable snapshot" and rebuild from the homeserver.
package snapshot
