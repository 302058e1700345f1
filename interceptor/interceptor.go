// File: interceptor/interceptor.go
// Package interceptor implements the listener-side handler chain.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package interceptor

import "github.com/momentics/proctree/api"

// EventKind discriminates the chain event variant.
type EventKind int

const (
	KindSent EventKind = iota
	KindReceived
	KindInterrupted
	KindPeerShutdown
	KindError
)

// String returns the variant label.
func (k EventKind) String() string {
	switch k {
	case KindSent:
		return "sent"
	case KindReceived:
		return "received"
	case KindInterrupted:
		return "interrupted"
	case KindPeerShutdown:
		return "peer_shutdown"
	default:
		return "error"
	}
}

// Event is the explicit variant handed through the chain: either a message
// event, a peer shutdown, or an error — never more than one at a time.
type Event struct {
	Kind EventKind

	// Msg is set for Sent, Received and Interrupted.
	Msg *api.MessageEvent

	// Peer fields are set for PeerShutdown.
	Executor api.ExecutorControl
	PeerPID  int
	Unsent   []api.LostMessage

	// Error fields are set for Error.
	Op      api.RouterOp
	Errno   int
	Message string
	Cause   error
}

// Predicate decides whether an interceptor handles an event.
type Predicate func(*Event) bool

// Handler processes a matched event; returning true stops propagation.
type Handler func(*Event) bool

// Interceptor pairs a predicate with its handler.
type Interceptor struct {
	Match  Predicate
	Handle Handler
}

// MatchKind is a predicate selecting a single event variant.
func MatchKind(kind EventKind) Predicate {
	return func(ev *Event) bool { return ev.Kind == kind }
}

// MatchAny accepts every event.
func MatchAny() Predicate {
	return func(*Event) bool { return true }
}

// Chain is an api.Listener walking registered interceptors in order.
type Chain struct {
	priority int
	chain    []Interceptor
}

var _ api.Listener = (*Chain)(nil)

// NewChain builds a chain listener with the given priority.
func NewChain(priority int, interceptors ...Interceptor) *Chain {
	return &Chain{priority: priority, chain: interceptors}
}

// Register appends an interceptor to the end of the chain.
func (c *Chain) Register(i Interceptor) {
	c.chain = append(c.chain, i)
}

// Priority implements api.Listener.
func (c *Chain) Priority() int { return c.priority }

// walk runs matching interceptors until one stops propagation.
func (c *Chain) walk(ev *Event) {
	for _, i := range c.chain {
		if i.Match != nil && !i.Match(ev) {
			continue
		}
		if i.Handle(ev) {
			return
		}
	}
}

func (c *Chain) OnMessageSent(ev *api.MessageEvent) {
	c.walk(&Event{Kind: KindSent, Msg: ev})
}

func (c *Chain) OnMessageReceived(ev *api.MessageEvent) {
	c.walk(&Event{Kind: KindReceived, Msg: ev})
}

func (c *Chain) OnInterruptReceive(ev *api.MessageEvent) {
	c.walk(&Event{Kind: KindInterrupted, Msg: ev})
}

func (c *Chain) OnPeerShutdown(exec api.ExecutorControl, pid int, unsent []api.LostMessage) {
	c.walk(&Event{Kind: KindPeerShutdown, Executor: exec, PeerPID: pid, Unsent: unsent})
}

func (c *Chain) OnRouterError(op api.RouterOp, errno int, message string, cause error) {
	c.walk(&Event{Kind: KindError, Op: op, Errno: errno, Message: message, Cause: cause})
}
