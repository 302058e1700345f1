// File: transport/endpoint.go
// Package transport implements the per-neighbour endpoint.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/momentics/proctree/api"
	"github.com/momentics/proctree/pool"
	"github.com/momentics/proctree/protocol"
)

// RcvBufSize is the scratch size of a single read(2).
const RcvBufSize = 64 << 10

// Sink receives everything an endpoint learns from its socket. The router
// implements it.
type Sink interface {
	// OnFrameReceived fires for each fully decoded inbound frame.
	OnFrameReceived(ep *Endpoint, f *protocol.Frame)

	// OnFrameFlushed fires when the last byte of a frame left the socket.
	OnFrameFlushed(ep *Endpoint, f *protocol.Frame)

	// OnPeerEOF fires when read(2) returned zero: the peer shut down.
	OnPeerEOF(ep *Endpoint)

	// OnIOError fires on a transient or fatal socket/protocol error.
	OnIOError(ep *Endpoint, op api.RouterOp, errno int, err error)
}

// Endpoint owns the socket toward one neighbour pid. All methods run on
// the reactor goroutine.
type Endpoint struct {
	pid int
	fd  int

	readBuf []byte // decoder accumulator

	cursor   []byte          // remaining bytes of the partially sent frame
	inFlight *protocol.Frame // frame the cursor belongs to
	sendQ    *queue.Queue    // whole frames awaiting encode

	writerOn bool // write interest currently registered
	scratch  *pool.BytePool
	closed   bool
}

// NewEndpoint wraps an already-connected non-blocking descriptor.
func NewEndpoint(pid, fd int, scratch *pool.BytePool) *Endpoint {
	if scratch == nil {
		scratch = pool.NewBytePool(RcvBufSize)
	}
	return &Endpoint{
		pid:     pid,
		fd:      fd,
		sendQ:   queue.New(),
		scratch: scratch,
	}
}

// PID returns the neighbour pid this endpoint leads to.
func (ep *Endpoint) PID() int { return ep.pid }

// FD returns the socket descriptor.
func (ep *Endpoint) FD() int { return ep.fd }

// WriterRegistered reports whether write interest is currently on.
func (ep *Endpoint) WriterRegistered() bool { return ep.writerOn }

// SetWriterRegistered records the write-interest state kept in the reactor.
func (ep *Endpoint) SetWriterRegistered(on bool) { ep.writerOn = on }

// Idle reports whether both the cursor and the send queue are empty.
func (ep *Endpoint) Idle() bool {
	return len(ep.cursor) == 0 && ep.sendQ.Length() == 0
}

// PendingFrames counts frames not yet fully flushed.
func (ep *Endpoint) PendingFrames() int {
	n := ep.sendQ.Length()
	if ep.inFlight != nil {
		n++
	}
	return n
}

// Enqueue appends a whole frame to the send queue. Returns true when the
// endpoint was idle, i.e. the caller must (re)register write interest.
func (ep *Endpoint) Enqueue(f *protocol.Frame) bool {
	wasIdle := ep.Idle()
	ep.sendQ.Add(f)
	return wasIdle
}

// HandleReadable drains the socket: reads until EAGAIN, decodes every
// complete frame from the accumulator and hands it to the sink. EOF and
// errors are reported, never returned.
func (ep *Endpoint) HandleReadable(sink Sink) {
	if ep.closed {
		return
	}
	buf := ep.scratch.GetBuffer()
	defer ep.scratch.PutBuffer(buf)
	for {
		n, err := unix.Read(ep.fd, buf)
		if n > 0 {
			ep.readBuf = append(ep.readBuf, buf[:n]...)
			if !ep.decodePending(sink) {
				return
			}
			continue
		}
		switch {
		case n == 0 && err == nil:
			sink.OnPeerEOF(ep)
			return
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return
		case err == unix.EINTR:
			continue
		default:
			sink.OnIOError(ep, api.OpRecv, errnoOf(err),
				api.WrapError(api.ErrCodeIO, "read", err).WithContext("fd", ep.fd))
			return
		}
	}
}

// decodePending consumes complete frames from the head of the accumulator.
// Returns false on a protocol fault; the accumulator cannot resynchronize.
func (ep *Endpoint) decodePending(sink Sink) bool {
	for {
		f, consumed, err := protocol.DecodeFrameFromBytes(ep.readBuf)
		if err != nil {
			sink.OnIOError(ep, api.OpRecv, 0,
				api.WrapError(api.ErrCodeProtocol, api.ErrProtocolFault.Error(), err).WithContext("pid", ep.pid))
			return false
		}
		if f == nil {
			return true
		}
		remain := len(ep.readBuf) - consumed
		copy(ep.readBuf, ep.readBuf[consumed:])
		ep.readBuf = ep.readBuf[:remain]
		sink.OnFrameReceived(ep, f)
	}
}

// HandleWritable pushes bytes out: the cursor first, then frames dequeued
// from the send queue. Returns true when the endpoint went idle and the
// caller should drop write interest. newestFirst is the advisory knob
// honoured only on an explicit drain: the newest queued frame goes out
// first and the rest follow in enqueue order. Regular readiness uses FIFO.
func (ep *Endpoint) HandleWritable(sink Sink, newestFirst bool) (idle bool) {
	if ep.closed {
		return true
	}
	for {
		if len(ep.cursor) == 0 {
			if ep.sendQ.Length() == 0 {
				return true
			}
			f := ep.dequeue(newestFirst)
			newestFirst = false
			ep.inFlight = f
			ep.cursor = protocol.EncodeFrame(f)
		}
		n, err := unix.Write(ep.fd, ep.cursor)
		if n > 0 {
			ep.cursor = ep.cursor[n:]
			if len(ep.cursor) == 0 {
				f := ep.inFlight
				ep.inFlight = nil
				ep.cursor = nil
				sink.OnFrameFlushed(ep, f)
			}
		}
		switch {
		case err == nil:
			continue
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return false
		case err == unix.EINTR:
			continue
		default:
			sink.OnIOError(ep, api.OpSend, errnoOf(err),
				api.WrapError(api.ErrCodeIO, "write", err).WithContext("fd", ep.fd))
			return false
		}
	}
}

func (ep *Endpoint) dequeue(newest bool) *protocol.Frame {
	if newest {
		// Rotate the newest frame to the head; relative order of the rest
		// is preserved.
		for i := ep.sendQ.Length(); i > 1; i-- {
			ep.sendQ.Add(ep.sendQ.Remove())
		}
	}
	return ep.sendQ.Remove().(*protocol.Frame)
}

// DrainUnsent empties the write path and returns the frames that never
// made it out, in enqueue order. A partially sent frame counts as unsent.
func (ep *Endpoint) DrainUnsent() []*protocol.Frame {
	var out []*protocol.Frame
	if ep.inFlight != nil {
		out = append(out, ep.inFlight)
		ep.inFlight = nil
		ep.cursor = nil
	}
	for ep.sendQ.Length() > 0 {
		out = append(out, ep.sendQ.Remove().(*protocol.Frame))
	}
	return out
}

// Close shuts the socket down.
func (ep *Endpoint) Close() error {
	if ep.closed {
		return nil
	}
	ep.closed = true
	return unix.Close(ep.fd)
}

func errnoOf(err error) int {
	if errno, ok := err.(unix.Errno); ok {
		return int(errno)
	}
	return 0
}
