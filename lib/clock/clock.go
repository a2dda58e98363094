// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the time source injected into the registry and the sync
// loop. Production code uses Real(); tests use Fake().
type Clock interface {
	// Now returns the current time. Snapshots record it as SavedAt.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed, immediately if d <= 0. The sync loop waits on it
	// between failed attempts.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker firing every d. Panics if d <= 0.
	// The well-known refresh runs on one.
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers periodic ticks on C until stopped. C has capacity
// one: a consumer that falls behind misses ticks rather than queuing
// them.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop ends the ticks. C is not closed.
func (t *Ticker) Stop() { t.stopFunc() }
