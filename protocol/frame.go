// File: protocol/frame.go
// Package protocol defines the routed message frame.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

// Special DstRemote values. Any other value is the ultimate destination pid.
const (
	// DstBroadcast marks a frame fanned out at every node.
	DstBroadcast uint32 = 0
	// DstAlias marks a frame addressed by the alias string.
	DstAlias uint32 = 1
)

// Frame is a single routed message. Outbound frames are treated as
// immutable; forwarding works on copies where only Dst, LastNodePID and the
// ack-variant fields are rewritten.
type Frame struct {
	Dst         uint32 // next-hop peer pid, rewritten at each hop
	Src         uint32 // original emitter pid, immutable
	Serialize   bool   // application-encoded payload marker, forwarded opaque
	RequestAck  bool   // recipient must emit an ack
	IsAck       bool   // this frame is itself an ack
	ID          uint32 // logical message id, stable across routing and ack
	Urgent      bool   // sender signals the next hop after flush
	DstRemote   uint32 // DstBroadcast, DstAlias, or a destination pid
	LastNodePID uint32 // pid that transmitted this hop (split-horizon key)
	Broadcast   bool   // fan-out at each node
	Alias       string // destination alias when DstRemote == DstAlias
	Payload     []byte // opaque bytes
}

// Clone returns a forwarding copy sharing the payload bytes.
func (f *Frame) Clone() *Frame {
	c := *f
	return &c
}

// WireSize returns the encoded size of the frame in bytes.
func (f *Frame) WireSize() int {
	return HeaderSize + len(f.Alias) + 4 + len(f.Payload)
}
