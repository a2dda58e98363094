// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package async

import (
	"context"
	"sync"
)

// Callback receives the outcome of an asynchronous operation. Exactly
// one of OnSuccess or OnFailure is called per uncanceled request.
// Either field may be nil.
type Callback[T any] struct {
	OnSuccess func(T)
	OnFailure func(error)
}

func (callback Callback[T]) succeed(value T) {
	if callback.OnSuccess != nil {
		callback.OnSuccess(value)
	}
}

func (callback Callback[T]) fail(err error) {
	if callback.OnFailure != nil {
		callback.OnFailure(err)
	}
}

// Cancelable is the handle returned by asynchronous operations.
//
// Cancel returns true if it prevented delivery, false if the operation
// had already settled (its outcome is being or has been delivered) or
// was already canceled. This mirrors time.Timer.Stop.
type Cancelable interface {
	Cancel() bool
}

type requestState int

const (
	statePending requestState = iota
	stateCanceled
	stateSettled
)

// Request tracks one in-flight asynchronous operation.
type Request struct {
	mutex sync.Mutex
	state requestState
	done  chan struct{}
}

var _ Cancelable = (*Request)(nil)

func newRequest() *Request {
	return &Request{done: make(chan struct{})}
}

// Cancel prevents the callback and apply step from running. See
// [Cancelable].
func (request *Request) Cancel() bool {
	request.mutex.Lock()
	defer request.mutex.Unlock()
	if request.state != statePending {
		return false
	}
	request.state = stateCanceled
	return true
}

// Canceled reports whether Cancel succeeded on this request.
func (request *Request) Canceled() bool {
	request.mutex.Lock()
	defer request.mutex.Unlock()
	return request.state == stateCanceled
}

// Done returns a channel that is closed when the request's goroutine
// exits, whether it delivered, failed, or was canceled. Delivery (if
// any) has completed by the time Done is closed.
func (request *Request) Done() <-chan struct{} {
	return request.done
}

// settle moves a pending request to settled. Returns false if the
// request was canceled first, in which case nothing may be delivered.
func (request *Request) settle() bool {
	request.mutex.Lock()
	defer request.mutex.Unlock()
	if request.state != statePending {
		return false
	}
	request.state = stateSettled
	return true
}

// Go runs work on a new goroutine and returns its Request.
//
// If the request is canceled before work starts, work is skipped. When
// work returns, the request settles: a canceled request delivers
// nothing. Otherwise a failure goes to callback.OnFailure; a success
// runs apply (which may be nil) and then callback.OnSuccess.
//
// ctx is passed to work unchanged. Canceling the request does not
// cancel ctx.
func Go[T any](ctx context.Context, work func(context.Context) (T, error), apply func(T), callback Callback[T]) *Request {
	return GoLocked(ctx, nil, work, apply, callback)
}

// GoLocked is Go with work and apply serialized by lock: the lock is
// acquired before work and released after apply, before the callback
// runs. Requests sharing a lock therefore observe each other's applied
// results, which makes read-modify-write of a shared document safe. A
// nil lock behaves like Go.
func GoLocked[T any](ctx context.Context, lock sync.Locker, work func(context.Context) (T, error), apply func(T), callback Callback[T]) *Request {
	request := newRequest()
	go func() {
		defer close(request.done)
		if request.Canceled() {
			return
		}
		if lock != nil {
			lock.Lock()
			// Cancellation while queued behind another holder skips
			// the work entirely.
			if request.Canceled() {
				lock.Unlock()
				return
			}
		}
		result, err := work(ctx)
		settled := request.settle()
		if settled && err == nil && apply != nil {
			apply(result)
		}
		if lock != nil {
			lock.Unlock()
		}
		if !settled {
			return
		}
		if err != nil {
			callback.fail(err)
			return
		}
		callback.succeed(result)
	}()
	return request
}

// Fail returns a Request that delivers err to callback.OnFailure on
// its own goroutine. Used for precondition failures so callers observe
// the same asynchronous contract as a remote failure.
func Fail[T any](err error, callback Callback[T]) *Request {
	return Go(context.Background(), func(context.Context) (T, error) {
		var zero T
		return zero, err
	}, nil, callback)
}
