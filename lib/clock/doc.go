// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock instead of calling time.Now,
// time.After, or time.NewTicker directly. Real() provides the standard
// library behavior; Fake() provides a deterministic clock that advances
// only when Advance is called.
//
// The integration registry uses a Clock for its periodic well-known
// refresh and for snapshot timestamps; the sync loop uses it for the
// backoff between failed /sync attempts. Tests drive both with a
// FakeClock and WaitForTimers instead of sleeping.
package clock
