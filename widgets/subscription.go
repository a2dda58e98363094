// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package widgets

import (
	"sync"

	"github.com/bureau-foundation/integrations/lib/ref"
)

// Subscription is a live widget query. C receives the current
// filtered view when the subscription is created and the new view
// after every change to the watched widget set. C has a buffer of one
// and a slow consumer only ever sees the latest view; intermediate
// views are dropped, never queued.
type Subscription struct {
	// C delivers filtered views, sorted by widget ID. Closed by Close.
	C <-chan []Widget

	channel chan []Widget
	service *Service
	user    bool
	roomID  ref.RoomID
	query   Query

	mutex  sync.Mutex
	closed bool
}

func newRoomSubscription(service *Service, roomID ref.RoomID, query Query) *Subscription {
	subscription := newSubscription(service, query)
	subscription.roomID = roomID
	return subscription
}

func newUserSubscription(service *Service, query Query) *Subscription {
	subscription := newSubscription(service, query)
	subscription.user = true
	return subscription
}

func newSubscription(service *Service, query Query) *Subscription {
	channel := make(chan []Widget, 1)
	return &Subscription{
		C:       channel,
		channel: channel,
		service: service,
		query:   query,
	}
}

// watchesRoom reports whether the subscription follows roomID's
// widgets.
func (subscription *Subscription) watchesRoom(roomID ref.RoomID) bool {
	return !subscription.user && subscription.roomID == roomID
}

// deliver replaces any undelivered view with view. Never blocks: the
// buffer is drained first and only deliver sends on the channel.
func (subscription *Subscription) deliver(view []Widget) {
	subscription.mutex.Lock()
	defer subscription.mutex.Unlock()
	if subscription.closed {
		return
	}
	select {
	case <-subscription.channel:
	default:
	}
	subscription.channel <- view
}

// Close unsubscribes and closes C. Safe to call more than once.
func (subscription *Subscription) Close() {
	subscription.service.unsubscribe(subscription)

	subscription.mutex.Lock()
	defer subscription.mutex.Unlock()
	if subscription.closed {
		return
	}
	subscription.closed = true
	close(subscription.channel)
}
