// File: router/dispatch.go
// Package router implements priority-ordered listener dispatch.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package router

import (
	"fmt"

	"github.com/momentics/proctree/api"
)

// listenerList keeps listeners sorted by ascending priority with stable
// tie-breaking; registration order wins among equals.
type listenerList struct {
	items []api.Listener

	// reporting guards against recursion when OnRouterError itself fails.
	reporting bool
}

func (ll *listenerList) add(l api.Listener) {
	idx := len(ll.items)
	for i, e := range ll.items {
		if l.Priority() < e.Priority() {
			idx = i
			break
		}
	}
	ll.items = append(ll.items, nil)
	copy(ll.items[idx+1:], ll.items[idx:])
	ll.items[idx] = l
}

// invoke runs one callback under a recover guard. A listener failure is
// rethrown as OnRouterError; it never stops the loop or later listeners.
func (ll *listenerList) invoke(r *Router, op api.RouterOp, fn func(api.Listener), l api.Listener) {
	defer func() {
		if rec := recover(); rec != nil {
			cause, ok := rec.(error)
			if !ok {
				cause = fmt.Errorf("%v", rec)
			}
			ll.dispatchError(r, op, 0, "listener failed",
				api.WrapError(api.ErrCodeListener, "listener failed", cause))
		}
	}()
	fn(l)
}

func (ll *listenerList) dispatchSent(r *Router, ev *api.MessageEvent) {
	for _, l := range ll.items {
		ll.invoke(r, api.OpSend, func(l api.Listener) { l.OnMessageSent(ev) }, l)
	}
}

func (ll *listenerList) dispatchReceived(r *Router, ev *api.MessageEvent) {
	for _, l := range ll.items {
		ll.invoke(r, api.OpRecv, func(l api.Listener) { l.OnMessageReceived(ev) }, l)
	}
}

func (ll *listenerList) dispatchInterrupt(r *Router, ev *api.MessageEvent) {
	for _, l := range ll.items {
		ll.invoke(r, api.OpRecv, func(l api.Listener) { l.OnInterruptReceive(ev) }, l)
	}
}

func (ll *listenerList) dispatchPeerShutdown(r *Router, exec api.ExecutorControl, pid int, lost []api.LostMessage) {
	for _, l := range ll.items {
		ll.invoke(r, api.OpRecv, func(l api.Listener) { l.OnPeerShutdown(exec, pid, lost) }, l)
	}
}

func (ll *listenerList) dispatchError(r *Router, op api.RouterOp, errno int, msg string, cause error) {
	if ll.reporting {
		return
	}
	ll.reporting = true
	defer func() { ll.reporting = false }()
	for _, l := range ll.items {
		func() {
			defer func() { _ = recover() }()
			l.OnRouterError(op, errno, msg, cause)
		}()
	}
}
