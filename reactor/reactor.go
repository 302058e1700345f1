// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral event reactor contract.

package reactor

import "os"

// FDEventType is a bitmask of readiness conditions.
type FDEventType uint32

const (
	EventRead FDEventType = 1 << iota
	EventWrite
	EventError
)

// FDCallback handles readiness on a registered descriptor.
type FDCallback func(fd int, events FDEventType)

// SignalCallback handles a signal made pending during a kernel wait.
type SignalCallback func(sig os.Signal)

// Reactor defines basic reactor operations.
type Reactor interface {
	// Register adds a descriptor with an interest set and its handler.
	Register(fd int, events FDEventType, cb FDCallback) error

	// Modify replaces the interest set of a registered descriptor.
	Modify(fd int, events FDEventType) error

	// Unregister removes a descriptor from the watch list.
	Unregister(fd int) error

	// RegisterSignal routes sig to fn. Signals never preempt a running
	// callback; they are queued and delivered between dispatches.
	RegisterSignal(sig os.Signal, fn SignalCallback)

	// Poll waits up to timeoutMs for events and dispatches handlers.
	// timeoutMs < 0 blocks until at least one event fires; 0 polls.
	// Returns the number of fd events dispatched.
	Poll(timeoutMs int) (int, error)

	// Wakeup interrupts a concurrent Poll. Safe from any goroutine.
	Wakeup()

	// Close releases reactor resources.
	Close() error
}
