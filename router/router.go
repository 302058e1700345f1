// File: router/router.go
// Package router implements flood routing with split-horizon.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package router

import (
	"errors"
	"math/rand"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/momentics/proctree/api"
	"github.com/momentics/proctree/control"
	"github.com/momentics/proctree/pool"
	"github.com/momentics/proctree/protocol"
	"github.com/momentics/proctree/reactor"
	"github.com/momentics/proctree/transport"
)

// emission tracks how many neighbour-hops a locally originated message
// still has in flight, so OnMessageSent fires exactly once per id in
// process-context mode. The entry dies when the count reaches zero.
type emission struct {
	fired     bool
	remaining int
}

// Router owns the endpoints of one process and decides, per inbound
// frame, whether to deliver locally, forward, do both, or drop.
// All methods except the control accessors run on the reactor goroutine.
type Router struct {
	pid   int
	alias string
	rx    reactor.Reactor

	endpoints map[int]*transport.Endpoint
	listeners listenerList
	counters  map[uint32]*emission

	interrupted bool
	inDrain     bool

	mode      DispatchMode
	urgentSig syscall.Signal
	idFn      func() uint32

	scratch *pool.BytePool
	metrics *control.MetricsRegistry
	probes  *control.DebugProbes
	exec    api.ExecutorControl
}

var _ transport.Sink = (*Router)(nil)
var _ api.RouterControl = (*Router)(nil)

// New creates a router for the process identified by pid, optionally
// reachable under alias.
func New(pid int, alias string, rx reactor.Reactor, opts ...Option) *Router {
	r := &Router{
		pid:       pid,
		alias:     alias,
		rx:        rx,
		endpoints: make(map[int]*transport.Endpoint),
		counters:  make(map[uint32]*emission),
		urgentSig: unix.SIGUSR1,
		idFn:      rand.Uint32,
		scratch:   pool.NewBytePool(transport.RcvBufSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.probes != nil {
		r.probes.RegisterProbe("router", r.stateSnapshot)
	}
	return r
}

// PID returns the local pid.
func (r *Router) PID() int { return r.pid }

// Alias returns the local alias; empty when unnamed.
func (r *Router) Alias() string { return r.alias }

// UrgentSignal returns the configured urgent-delivery signal.
func (r *Router) UrgentSignal() syscall.Signal { return r.urgentSig }

// PendingFrames counts frames queued or partially written across all
// endpoints.
func (r *Router) PendingFrames() int {
	n := 0
	for _, ep := range r.endpoints {
		n += ep.PendingFrames()
	}
	return n
}

// Neighbours returns the pids of all direct neighbours.
func (r *Router) Neighbours() []int {
	out := make([]int, 0, len(r.endpoints))
	for pid := range r.endpoints {
		out = append(out, pid)
	}
	return out
}

// AddListener registers a listener, keeping ascending priority order.
func (r *Router) AddListener(l api.Listener) {
	r.listeners.add(l)
}

// AddEndpoint registers the socket leading to a direct neighbour and
// starts watching it for reads. A router never holds an endpoint whose
// pid equals its own.
func (r *Router) AddEndpoint(pid, fd int) error {
	if pid == r.pid {
		return api.ErrLoopback
	}
	if _, ok := r.endpoints[pid]; ok {
		return api.ErrEndpointExists
	}
	ep := transport.NewEndpoint(pid, fd, r.scratch)
	if err := r.rx.Register(fd, reactor.EventRead, r.endpointCallback(ep)); err != nil {
		return err
	}
	r.endpoints[pid] = ep
	return nil
}

// endpointCallback adapts reactor readiness to the endpoint handlers.
func (r *Router) endpointCallback(ep *transport.Endpoint) reactor.FDCallback {
	return func(fd int, ev reactor.FDEventType) {
		if ev&(reactor.EventRead|reactor.EventError) != 0 {
			ep.HandleReadable(r)
		}
		// The read pass may have removed the endpoint on EOF.
		if _, alive := r.endpoints[ep.PID()]; !alive {
			return
		}
		if ev&reactor.EventWrite != 0 {
			if ep.HandleWritable(r, false) {
				r.setWriteInterest(ep, false)
			}
		}
	}
}

func (r *Router) setWriteInterest(ep *transport.Endpoint, on bool) {
	if ep.WriterRegistered() == on {
		return
	}
	events := reactor.EventRead
	if on {
		events |= reactor.EventWrite
	}
	if err := r.rx.Modify(ep.FD(), events); err != nil {
		r.listeners.dispatchError(r, api.OpSend, 0, "write interest update failed", err)
		return
	}
	ep.SetWriterRegistered(on)
}

// enqueue places a frame on an endpoint and arms the writer. Every frame
// leaving this node carries the local pid as its split-horizon key.
func (r *Router) enqueue(ep *transport.Endpoint, f *protocol.Frame) {
	f.LastNodePID = uint32(r.pid)
	if ep.Enqueue(f) {
		r.setWriteInterest(ep, true)
	}
}

// Send submits a payload to a destination pid. When dst is a direct
// neighbour the frame takes that edge; otherwise it floods every edge.
// Returns the message id.
func (r *Router) Send(dst int, payload []byte, opts ...SendOption) (uint32, error) {
	cfg := sendConfig{dst: dst}
	for _, opt := range opts {
		opt(&cfg)
	}
	return r.submit(cfg, payload)
}

// SendAlias submits a payload addressed by alias.
func (r *Router) SendAlias(alias string, payload []byte, opts ...SendOption) (uint32, error) {
	cfg := sendConfig{alias: alias}
	for _, opt := range opts {
		opt(&cfg)
	}
	return r.submit(cfg, payload)
}

// Broadcast submits a payload delivered once to every other node in the
// tree.
func (r *Router) Broadcast(payload []byte, opts ...SendOption) (uint32, error) {
	cfg := sendConfig{broadcast: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return r.submit(cfg, payload)
}

func (r *Router) submit(cfg sendConfig, payload []byte) (uint32, error) {
	if !cfg.broadcast && cfg.alias == "" && cfg.dst == r.pid {
		return 0, api.ErrLoopback
	}
	if !cfg.broadcast && cfg.alias == "" && uint32(cfg.dst) <= protocol.DstAlias {
		// 0 and 1 are reserved dst_remote values on the wire.
		return 0, api.NewError(api.ErrCodeInvalidArgument, "reserved destination pid").
			WithContext("dst", cfg.dst)
	}
	if len(r.endpoints) == 0 {
		return 0, api.ErrNoRoute
	}

	f := &protocol.Frame{
		Src:         uint32(r.pid),
		LastNodePID: uint32(r.pid),
		ID:          r.idFn(),
		Serialize:   cfg.serialize,
		RequestAck:  cfg.ack,
		Urgent:      cfg.urgent,
		Broadcast:   cfg.broadcast,
		Payload:     payload,
	}
	switch {
	case cfg.broadcast:
		f.DstRemote = protocol.DstBroadcast
	case cfg.alias != "":
		f.DstRemote = protocol.DstAlias
		f.Alias = cfg.alias
	default:
		f.DstRemote = uint32(cfg.dst)
	}

	transmissions := 0
	if ep, ok := r.endpoints[cfg.dst]; ok && !cfg.broadcast && cfg.alias == "" {
		c := f.Clone()
		c.Dst = uint32(cfg.dst)
		r.enqueue(ep, c)
		transmissions = 1
	} else {
		for pid, ep := range r.endpoints {
			c := f.Clone()
			c.Dst = uint32(pid)
			r.enqueue(ep, c)
			transmissions++
		}
	}
	r.counters[f.ID] = &emission{remaining: transmissions}
	if cfg.broadcast {
		r.metrics.Incr(control.CtrBroadcasts)
	}
	return f.ID, nil
}

// OnFrameReceived routes one decoded inbound frame: forward with
// split-horizon, acknowledge, deliver, or any combination.
func (r *Router) OnFrameReceived(ep *transport.Endpoint, f *protocol.Frame) {
	r.metrics.Incr(control.CtrFramesReceived)

	targeted := f.DstRemote == uint32(r.pid) ||
		(f.DstRemote == protocol.DstAlias && r.alias != "" && f.Alias == r.alias)
	bcast := f.DstRemote == protocol.DstBroadcast || f.Broadcast

	if !targeted || bcast {
		for pid, n := range r.endpoints {
			if pid == ep.PID() || uint32(pid) == f.LastNodePID {
				continue // split-horizon
			}
			c := f.Clone()
			c.Dst = uint32(pid)
			r.enqueue(n, c)
			r.metrics.Incr(control.CtrFramesForward)
		}
	}
	if !targeted && !bcast {
		// Pure unicast in transit; raw-context tracing still observes it.
		if r.mode == RawContext {
			r.listeners.dispatchReceived(r, r.eventFor(f, ep, false))
		}
		return
	}

	if targeted && f.RequestAck && !f.IsAck {
		ack := &protocol.Frame{
			Dst:       uint32(ep.PID()),
			Src:       uint32(r.pid),
			IsAck:     true,
			ID:        f.ID,
			DstRemote: f.Src,
			Payload:   []byte("1"),
		}
		// The ack returns the way the original frame came.
		r.enqueue(ep, ack)
		r.metrics.Incr(control.CtrAcksSent)
	}

	ev := r.eventFor(f, ep, targeted)
	if r.interrupted {
		r.listeners.dispatchInterrupt(r, ev)
	} else {
		r.listeners.dispatchReceived(r, ev)
	}
}

// OnFrameFlushed runs the post-flush action: urgent signalling and the
// deduplicated OnMessageSent emission.
func (r *Router) OnFrameFlushed(ep *transport.Endpoint, f *protocol.Frame) {
	r.metrics.Incr(control.CtrFramesSent)
	if f.Urgent {
		_ = unix.Kill(ep.PID(), r.urgentSig)
	}

	if r.mode == RawContext {
		r.listeners.dispatchSent(r, r.eventFor(f, ep, false))
		r.noteTransmission(f)
		return
	}
	if f.Src != uint32(r.pid) {
		return
	}
	ctr, ok := r.counters[f.ID]
	if !ok {
		return
	}
	if !ctr.fired {
		ctr.fired = true
		r.listeners.dispatchSent(r, r.eventFor(f, ep, false))
	}
	ctr.remaining--
	if ctr.remaining <= 0 {
		delete(r.counters, f.ID)
	}
}

// noteTransmission counts one transmission of a local frame without firing
// OnMessageSent, keeping the emission map bounded in raw-context mode and
// for frames lost on peer EOF.
func (r *Router) noteTransmission(f *protocol.Frame) {
	if f.Src != uint32(r.pid) {
		return
	}
	if ctr, ok := r.counters[f.ID]; ok {
		ctr.remaining--
		if ctr.remaining <= 0 {
			delete(r.counters, f.ID)
		}
	}
}

// OnPeerEOF drops the endpoint and surfaces the frames it still held.
func (r *Router) OnPeerEOF(ep *transport.Endpoint) {
	unsent := ep.DrainUnsent()
	for _, f := range unsent {
		r.noteTransmission(f)
	}
	r.removeEndpoint(ep)
	r.metrics.Incr(control.CtrPeerShutdowns)

	lost := make([]api.LostMessage, 0, len(unsent))
	for _, f := range unsent {
		lost = append(lost, api.LostMessage{
			Dst:       int(f.DstRemote),
			Alias:     f.Alias,
			Serialize: f.Serialize,
			IsAck:     f.IsAck,
			Urgent:    f.Urgent,
			Broadcast: f.Broadcast,
			Data:      f.Payload,
		})
	}
	r.listeners.dispatchPeerShutdown(r, r.exec, ep.PID(), lost)
}

// OnIOError reports socket failures; a protocol fault additionally closes
// the endpoint since resynchronization is impossible.
func (r *Router) OnIOError(ep *transport.Endpoint, op api.RouterOp, errno int, err error) {
	r.listeners.dispatchError(r, op, errno, err.Error(), err)
	var ae *api.Error
	if errors.As(err, &ae) && ae.Code == api.ErrCodeProtocol {
		r.removeEndpoint(ep)
	}
}

func (r *Router) removeEndpoint(ep *transport.Endpoint) {
	if _, ok := r.endpoints[ep.PID()]; !ok {
		return
	}
	delete(r.endpoints, ep.PID())
	_ = r.rx.Unregister(ep.FD())
	_ = ep.Close()
}

// RemoveEndpoint detaches a neighbour without firing peer-shutdown.
func (r *Router) RemoveEndpoint(pid int) {
	if ep, ok := r.endpoints[pid]; ok {
		r.removeEndpoint(ep)
	}
}

// DrainEndpoint runs a synchronous read pass on one neighbour, used by the
// executor right after reaping so the EOF is observed promptly.
func (r *Router) DrainEndpoint(pid int) {
	if ep, ok := r.endpoints[pid]; ok {
		ep.HandleReadable(r)
	}
}

// InterruptDrain is the urgent-delivery entry: it reads every endpoint
// without blocking and delivers parsed frames through OnInterruptReceive.
// Re-entry is a hard error.
func (r *Router) InterruptDrain() error {
	if r.inDrain {
		return api.ErrUrgentReentry
	}
	r.inDrain = true
	r.interrupted = true
	r.metrics.Incr(control.CtrUrgentDrains)

	eps := make([]*transport.Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		eps = append(eps, ep)
	}
	for _, ep := range eps {
		ep.HandleReadable(r)
	}

	r.interrupted = false
	r.inDrain = false
	return nil
}

// FlushWrites synchronously pushes queued bytes on every endpoint until
// the sockets would block. fifo=false sends each queue's newest frame
// first and the rest in enqueue order; this explicit call is the only
// place the knob is honoured.
func (r *Router) FlushWrites(fifo bool) {
	eps := make([]*transport.Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		eps = append(eps, ep)
	}
	for _, ep := range eps {
		if _, alive := r.endpoints[ep.PID()]; !alive {
			continue
		}
		if ep.HandleWritable(r, !fifo) {
			r.setWriteInterest(ep, false)
		}
	}
}

// Close detaches and closes every endpoint.
func (r *Router) Close() error {
	for _, ep := range r.endpoints {
		_ = r.rx.Unregister(ep.FD())
		_ = ep.Close()
	}
	r.endpoints = make(map[int]*transport.Endpoint)
	if r.probes != nil {
		r.probes.RemoveProbe("router")
	}
	return nil
}

func (r *Router) eventFor(f *protocol.Frame, ep *transport.Endpoint, targeted bool) *api.MessageEvent {
	dst := int(f.DstRemote)
	switch {
	case f.DstRemote == protocol.DstBroadcast || f.Broadcast:
		dst = 0
	case f.DstRemote == protocol.DstAlias:
		if targeted {
			dst = r.pid
		} else {
			dst = 0
		}
	}
	return api.NewMessageEvent(api.EventInfo{
		ID:        f.ID,
		Src:       int(f.Src),
		Dst:       dst,
		FD:        ep.FD(),
		Urgent:    f.Urgent,
		Ack:       f.IsAck,
		Broadcast: f.Broadcast || f.DstRemote == protocol.DstBroadcast,
		Serialize: f.Serialize,
		Payload:   f.Payload,
		Router:    r,
		Executor:  r.exec,
	})
}

func (r *Router) stateSnapshot() any {
	eps := make(map[int]int, len(r.endpoints))
	for pid, ep := range r.endpoints {
		eps[pid] = ep.PendingFrames()
	}
	return map[string]any{
		"pid":         r.pid,
		"alias":       r.alias,
		"endpoints":   eps,
		"in_flight":   len(r.counters),
		"interrupted": r.interrupted,
	}
}
