// File: api/events.go
// Package api defines the message event delivered to listeners.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// RouterControl is the read-only router handle exposed on events.
type RouterControl interface {
	PID() int
	Alias() string
	PendingFrames() int
}

// ExecutorControl is the executor handle exposed on events and on the
// peer-shutdown callback. It is the sanctioned way for a listener to reach
// back into the owning process tree.
type ExecutorControl interface {
	PID() int
	ParentPID() int
	RootPID() int
	IsRoot() bool
	Shutdown()
}

// EventInfo carries the field set used to build a MessageEvent.
type EventInfo struct {
	ID        uint32
	Src       int
	Dst       int // semantic destination; 0 for broadcast
	FD        int
	Urgent    bool
	Ack       bool
	Broadcast bool
	Serialize bool
	Payload   []byte
	Router    RouterControl
	Executor  ExecutorControl
}

// MessageEvent is handed to listeners. All fields are read-only except the
// payload, which interceptors may rewrite via SetPayload.
type MessageEvent struct {
	info EventInfo
}

// NewMessageEvent builds an event; used by the router.
func NewMessageEvent(info EventInfo) *MessageEvent {
	return &MessageEvent{info: info}
}

// ID returns the logical message id, stable across routing and ack.
func (ev *MessageEvent) ID() uint32 { return ev.info.ID }

// Src returns the pid of the original emitter.
func (ev *MessageEvent) Src() int { return ev.info.Src }

// Dst returns the semantic destination pid, 0 for broadcast.
func (ev *MessageEvent) Dst() int { return ev.info.Dst }

// FD returns the socket the frame crossed.
func (ev *MessageEvent) FD() int { return ev.info.FD }

func (ev *MessageEvent) IsUrgent() bool    { return ev.info.Urgent }
func (ev *MessageEvent) IsAck() bool       { return ev.info.Ack }
func (ev *MessageEvent) IsBroadcast() bool { return ev.info.Broadcast }

// IsSerialized reports the transport-opaque serialize marker; the library
// does not prescribe a payload encoding.
func (ev *MessageEvent) IsSerialized() bool { return ev.info.Serialize }

// Payload returns the payload bytes.
func (ev *MessageEvent) Payload() []byte { return ev.info.Payload }

// SetPayload rewrites the payload, e.g. after application-level decoding.
func (ev *MessageEvent) SetPayload(p []byte) { ev.info.Payload = p }

// Router returns the owning router handle.
func (ev *MessageEvent) Router() RouterControl { return ev.info.Router }

// Executor returns the owning executor handle; nil for a standalone router.
func (ev *MessageEvent) Executor() ExecutorControl { return ev.info.Executor }
