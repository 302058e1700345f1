//go:build linux
// +build linux

package router_test

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/proctree/api"
	"github.com/momentics/proctree/control"
	"github.com/momentics/proctree/reactor"
	"github.com/momentics/proctree/router"
	"github.com/momentics/proctree/transport"
)

// capture records every callback it sees.
type capture struct {
	prio   int
	sent   []*api.MessageEvent
	recv   []*api.MessageEvent
	intr   []*api.MessageEvent
	peers  []int
	lost   [][]api.LostMessage
	errs   []error
	onRecv func(ev *api.MessageEvent)
}

func (c *capture) Priority() int { return c.prio }
func (c *capture) OnMessageSent(ev *api.MessageEvent) {
	c.sent = append(c.sent, ev)
}
func (c *capture) OnMessageReceived(ev *api.MessageEvent) {
	c.recv = append(c.recv, ev)
	if c.onRecv != nil {
		c.onRecv(ev)
	}
}
func (c *capture) OnInterruptReceive(ev *api.MessageEvent) {
	c.intr = append(c.intr, ev)
}
func (c *capture) OnPeerShutdown(_ api.ExecutorControl, pid int, unsent []api.LostMessage) {
	c.peers = append(c.peers, pid)
	c.lost = append(c.lost, unsent)
}
func (c *capture) OnRouterError(_ api.RouterOp, _ int, _ string, cause error) {
	c.errs = append(c.errs, cause)
}

// node is one simulated process: its own reactor, router and listener.
type node struct {
	pid    int
	rx     reactor.Reactor
	r      *router.Router
	lis    *capture
	probes *control.DebugProbes
}

func newNode(t *testing.T, pid int, alias string, opts ...router.Option) *node {
	t.Helper()
	rx, err := reactor.NewReactor()
	require.NoError(t, err)
	probes := control.NewDebugProbes()
	// Signal 0 keeps urgent flushes harmless across the fake pid space.
	opts = append([]router.Option{
		router.WithUrgentSignal(syscall.Signal(0)),
		router.WithProbes(probes),
	}, opts...)
	r := router.New(pid, alias, rx, opts...)
	lis := &capture{}
	r.AddListener(lis)
	t.Cleanup(func() {
		r.Close()
		rx.Close()
	})
	return &node{pid: pid, rx: rx, r: r, lis: lis, probes: probes}
}

// connect joins two nodes with a socketpair edge.
func connect(t *testing.T, a, b *node) {
	t.Helper()
	fds, err := transport.NewSocketPair()
	require.NoError(t, err)
	require.NoError(t, a.r.AddEndpoint(b.pid, fds[0]))
	require.NoError(t, b.r.AddEndpoint(a.pid, fds[1]))
}

// pump polls every node until two consecutive rounds dispatch nothing.
func pump(t *testing.T, nodes ...*node) {
	t.Helper()
	quiet := 0
	for rounds := 0; rounds < 10000 && quiet < 2; rounds++ {
		busy := false
		for _, n := range nodes {
			k, err := n.rx.Poll(0)
			require.NoError(t, err)
			if k > 0 {
				busy = true
			}
		}
		if busy {
			quiet = 0
		} else {
			quiet++
		}
	}
	require.Equal(t, 2, quiet, "topology never went quiescent")
}

func TestLineTopologyUnicast(t *testing.T) {
	a := newNode(t, 100, "")
	b := newNode(t, 200, "")
	c := newNode(t, 300, "")
	connect(t, a, b)
	connect(t, b, c)

	_, err := a.r.Send(300, []byte("hello"))
	require.NoError(t, err)
	pump(t, a, b, c)

	require.Len(t, c.lis.recv, 1)
	ev := c.lis.recv[0]
	assert.Equal(t, "hello", string(ev.Payload()))
	assert.Equal(t, 100, ev.Src())
	assert.Equal(t, 300, ev.Dst())
	assert.False(t, ev.IsBroadcast())
	assert.False(t, ev.IsAck())

	// B forwarded but never delivered locally.
	assert.Empty(t, b.lis.recv)
	// A observed its own emission exactly once.
	require.Len(t, a.lis.sent, 1)
}

func TestDirectNeighbourTakesSingleEdge(t *testing.T) {
	a := newNode(t, 100, "")
	b := newNode(t, 200, "")
	d := newNode(t, 400, "")
	connect(t, a, b)
	connect(t, a, d)

	_, err := a.r.Send(200, []byte("direct"))
	require.NoError(t, err)
	pump(t, a, b, d)

	require.Len(t, b.lis.recv, 1)
	assert.Empty(t, d.lis.recv)
}

func TestStarBroadcastDeliversOncePerNode(t *testing.T) {
	r := newNode(t, 100, "")
	x := newNode(t, 200, "")
	y := newNode(t, 300, "")
	z := newNode(t, 400, "")
	connect(t, r, x)
	connect(t, r, y)
	connect(t, r, z)

	_, err := r.r.Broadcast([]byte("bcast"))
	require.NoError(t, err)
	pump(t, r, x, y, z)

	for _, n := range []*node{x, y, z} {
		require.Len(t, n.lis.recv, 1, "pid %d", n.pid)
		ev := n.lis.recv[0]
		assert.Equal(t, "bcast", string(ev.Payload()))
		assert.True(t, ev.IsBroadcast())
		assert.Equal(t, 0, ev.Dst())
		assert.Equal(t, 100, ev.Src())
	}
	// Exactly one onMessageSent despite the three-way fan-out, and no
	// echo back to the emitter.
	require.Len(t, r.lis.sent, 1)
	assert.Empty(t, r.lis.recv)
}

func TestBroadcastReachesGrandchildren(t *testing.T) {
	r := newNode(t, 100, "")
	b := newNode(t, 200, "")
	c := newNode(t, 300, "")
	connect(t, r, b)
	connect(t, b, c)

	_, err := r.r.Broadcast([]byte("deep"))
	require.NoError(t, err)
	pump(t, r, b, c)

	require.Len(t, b.lis.recv, 1)
	require.Len(t, c.lis.recv, 1)
	assert.Empty(t, r.lis.recv)
}

func TestAckRoundTrip(t *testing.T) {
	a := newNode(t, 100, "")
	b := newNode(t, 200, "")
	connect(t, a, b)

	id, err := a.r.Send(200, []byte("q"), router.WithAck())
	require.NoError(t, err)
	pump(t, a, b)

	require.Len(t, b.lis.recv, 1)
	assert.False(t, b.lis.recv[0].IsAck())
	assert.Equal(t, id, b.lis.recv[0].ID())

	require.Len(t, a.lis.sent, 1)
	require.Len(t, a.lis.recv, 1)
	ack := a.lis.recv[0]
	assert.True(t, ack.IsAck())
	assert.Equal(t, id, ack.ID())
	assert.Equal(t, "1", string(ack.Payload()))
	// B's ack is not a local submission, so B fires no OnMessageSent.
	require.Len(t, b.lis.sent, 0)
}

func TestAliasRoutingAcrossDepth(t *testing.T) {
	r := newNode(t, 100, "")
	b := newNode(t, 200, "")
	c := newNode(t, 300, "worker")
	d := newNode(t, 400, "idler")
	connect(t, r, b)
	connect(t, b, c)
	connect(t, r, d) // sibling branch exercises forward-then-filter

	_, err := r.r.SendAlias("worker", []byte("job"))
	require.NoError(t, err)
	pump(t, r, b, c, d)

	require.Len(t, c.lis.recv, 1)
	ev := c.lis.recv[0]
	assert.Equal(t, "job", string(ev.Payload()))
	assert.Equal(t, 300, ev.Dst())
	assert.Empty(t, b.lis.recv)
	assert.Empty(t, d.lis.recv)
}

func TestRawContextTracesTransitHops(t *testing.T) {
	a := newNode(t, 100, "")
	b := newNode(t, 200, "", router.WithDispatchMode(router.RawContext))
	c := newNode(t, 300, "")
	connect(t, a, b)
	connect(t, b, c)

	_, err := a.r.Send(300, []byte("trace"))
	require.NoError(t, err)
	pump(t, a, b, c)

	// The transit node observes both the hop receive and the hop send.
	require.Len(t, b.lis.recv, 1)
	require.Len(t, b.lis.sent, 1)
	require.Len(t, c.lis.recv, 1)
}

func TestEmissionCounterDrained(t *testing.T) {
	r := newNode(t, 100, "")
	x := newNode(t, 200, "")
	y := newNode(t, 300, "")
	connect(t, r, x)
	connect(t, r, y)

	_, err := r.r.Broadcast([]byte("once"))
	require.NoError(t, err)
	pump(t, r, x, y)

	state := r.probes.DumpState()["router"].(map[string]any)
	assert.Equal(t, 0, state["in_flight"])
}

func TestPeerShutdownSurfacesUnsentInOrder(t *testing.T) {
	a := newNode(t, 100, "")
	b := newNode(t, 200, "")
	connect(t, a, b)

	// Queue two frames and kill the peer before any write pass runs.
	_, err := a.r.Send(200, []byte("x"))
	require.NoError(t, err)
	_, err = a.r.Send(200, []byte("y"))
	require.NoError(t, err)

	b.r.Close()
	a.r.DrainEndpoint(200)

	require.Equal(t, []int{200}, a.lis.peers)
	require.Len(t, a.lis.lost, 1)
	lost := a.lis.lost[0]
	require.Len(t, lost, 2)
	assert.Equal(t, "x", string(lost[0].Data))
	assert.Equal(t, "y", string(lost[1].Data))
	assert.Equal(t, 200, lost[0].Dst)
	assert.Empty(t, a.r.Neighbours())
}

func TestLoopbackAndNoRouteRejected(t *testing.T) {
	a := newNode(t, 100, "")

	_, err := a.r.Send(100, []byte("self"))
	require.ErrorIs(t, err, api.ErrLoopback)

	_, err = a.r.Send(999, []byte("nowhere"))
	require.ErrorIs(t, err, api.ErrNoRoute)

	require.ErrorIs(t, a.r.AddEndpoint(100, 0), api.ErrLoopback)
}

func TestListenerPriorityAndPanicIsolation(t *testing.T) {
	a := newNode(t, 100, "")
	b := newNode(t, 200, "")
	connect(t, a, b)

	var order []string
	first := &capture{prio: -10, onRecv: func(*api.MessageEvent) { order = append(order, "first") }}
	boom := &capture{prio: 0, onRecv: func(*api.MessageEvent) { panic(errors.New("listener boom")) }}
	last := &capture{prio: 10, onRecv: func(*api.MessageEvent) { order = append(order, "last") }}
	b.r.AddListener(last)
	b.r.AddListener(first)
	b.r.AddListener(boom)

	_, err := a.r.Send(200, []byte("p"))
	require.NoError(t, err)
	pump(t, a, b)

	assert.Equal(t, []string{"first", "last"}, order)
	require.NotEmpty(t, b.lis.errs)
	assert.Contains(t, b.lis.errs[0].Error(), "listener boom")
}

func TestUrgentDrainDeliversViaInterrupt(t *testing.T) {
	a := newNode(t, 100, "")
	b := newNode(t, 200, "")
	connect(t, a, b)

	_, err := a.r.Send(200, []byte("now"), router.WithUrgent())
	require.NoError(t, err)
	// Flush the sender only; B's reactor never polls.
	pump(t, a)

	require.NoError(t, b.r.InterruptDrain())

	require.Len(t, b.lis.intr, 1)
	assert.Empty(t, b.lis.recv)
	ev := b.lis.intr[0]
	assert.True(t, ev.IsUrgent())
	assert.Equal(t, "now", string(ev.Payload()))
}

func TestUrgentReentryIsFatal(t *testing.T) {
	a := newNode(t, 100, "")
	b := newNode(t, 200, "")
	connect(t, a, b)

	var reentry error
	b.r.AddListener(&interruptHook{fn: func() {
		reentry = b.r.InterruptDrain()
	}})

	_, err := a.r.Send(200, []byte("now"), router.WithUrgent())
	require.NoError(t, err)
	pump(t, a)

	require.NoError(t, b.r.InterruptDrain())
	require.ErrorIs(t, reentry, api.ErrUrgentReentry)
}

type interruptHook struct {
	capture
	fn func()
}

func (h *interruptHook) OnInterruptReceive(ev *api.MessageEvent) {
	h.capture.OnInterruptReceive(ev)
	h.fn()
}
