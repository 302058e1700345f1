// File: executor/executor.go
// Package executor implements the process-tree executor.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package executor

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/momentics/proctree/api"
	"github.com/momentics/proctree/control"
	"github.com/momentics/proctree/reactor"
	"github.com/momentics/proctree/router"
)

// DefaultTTL caps the shutdown loop iterations once no child is living.
const DefaultTTL = 100

// defaultShutdownPollMs is the poll timeout while draining the shutdown
// phase, so the TTL makes progress even with no events.
const defaultShutdownPollMs = 10

// Executor owns the router, the reactor and the child table of one
// process in the tree.
type Executor struct {
	pid       int
	parentPID int
	rootPID   int
	alias     string

	rx reactor.Reactor
	r  *router.Router

	children map[int]*ChildInfo

	shutdown bool
	behavior api.ShutdownBehavior
	ttl      int
	exitCode int
	pollMs   int

	urgentSig  syscall.Signal
	mode       router.DispatchMode
	metrics    *control.MetricsRegistry
	probes     *control.DebugProbes
	routerOpts []router.Option

	execListeners []api.ExecutorListener
}

var _ api.ExecutorControl = (*Executor)(nil)

// Option mutates executor construction.
type Option func(*Executor)

// WithAlias names this process for alias-based routing.
func WithAlias(alias string) Option {
	return func(e *Executor) { e.alias = alias }
}

// WithShutdownBehavior sets the shutdown behaviour bitmask.
func WithShutdownBehavior(b api.ShutdownBehavior) Option {
	return func(e *Executor) { e.behavior = b }
}

// WithExitCode sets the exit code used when this process exits after its
// loop is done.
func WithExitCode(code int) Option {
	return func(e *Executor) { e.exitCode = code }
}

// WithTTL overrides the shutdown loop cap.
func WithTTL(ttl int) Option {
	return func(e *Executor) { e.ttl = ttl }
}

// WithUrgentSignal overrides the urgent-delivery signal; zero disables
// the urgent wiring entirely.
func WithUrgentSignal(sig syscall.Signal) Option {
	return func(e *Executor) { e.urgentSig = sig }
}

// WithDispatchMode selects process-context or raw-context dispatch.
func WithDispatchMode(mode router.DispatchMode) Option {
	return func(e *Executor) { e.mode = mode }
}

// WithMetrics attaches a counter registry shared with the router.
func WithMetrics(mr *control.MetricsRegistry) Option {
	return func(e *Executor) { e.metrics = mr }
}

// WithProbes attaches a debug probe registry.
func WithProbes(dp *control.DebugProbes) Option {
	return func(e *Executor) { e.probes = dp }
}

// WithRouterOptions forwards extra options to the router constructor.
func WithRouterOptions(opts ...router.Option) Option {
	return func(e *Executor) { e.routerOpts = append(e.routerOpts, opts...) }
}

// withLineage is applied by the child bootstrap.
func withLineage(parentPID, rootPID int) Option {
	return func(e *Executor) {
		e.parentPID = parentPID
		e.rootPID = rootPID
	}
}

// New builds the executor of the calling process. The calling process is
// the tree root unless the executor was built by the child bootstrap.
func New(opts ...Option) (*Executor, error) {
	pid := os.Getpid()
	e := &Executor{
		pid:       pid,
		rootPID:   pid,
		children:  make(map[int]*ChildInfo),
		ttl:       DefaultTTL,
		pollMs:    defaultShutdownPollMs,
		urgentSig: unix.SIGUSR1,
	}
	for _, opt := range opts {
		opt(e)
	}

	rx, err := reactor.NewReactor()
	if err != nil {
		return nil, err
	}
	e.rx = rx

	ropts := []router.Option{
		router.WithExecutor(e),
		router.WithDispatchMode(e.mode),
		router.WithUrgentSignal(e.urgentSig),
		router.WithMetrics(e.metrics),
	}
	if e.probes != nil {
		ropts = append(ropts, router.WithProbes(e.probes))
	}
	ropts = append(ropts, e.routerOpts...)
	e.r = router.New(pid, e.alias, rx, ropts...)

	e.wireSignals()
	if e.probes != nil {
		e.probes.RegisterProbe("executor", e.stateSnapshot)
	}
	return e, nil
}

// PID returns the local pid.
func (e *Executor) PID() int { return e.pid }

// ParentPID returns the parent pid; zero at the root.
func (e *Executor) ParentPID() int { return e.parentPID }

// RootPID returns the pid of the tree root.
func (e *Executor) RootPID() int { return e.rootPID }

// IsRoot reports whether this process is the tree root.
func (e *Executor) IsRoot() bool { return e.pid == e.rootPID }

// Router exposes the owned router.
func (e *Executor) Router() *router.Router { return e.r }

// AddListener registers a router listener.
func (e *Executor) AddListener(l api.Listener) { e.r.AddListener(l) }

// AddExecutorListener registers a lifecycle listener.
func (e *Executor) AddExecutorListener(l api.ExecutorListener) {
	e.execListeners = append(e.execListeners, l)
}

// Send submits a payload to a destination pid.
func (e *Executor) Send(dst int, payload []byte, opts ...router.SendOption) (uint32, error) {
	return e.r.Send(dst, payload, opts...)
}

// SendAlias submits a payload addressed by alias.
func (e *Executor) SendAlias(alias string, payload []byte, opts ...router.SendOption) (uint32, error) {
	return e.r.SendAlias(alias, payload, opts...)
}

// Broadcast submits a payload to every node of the tree.
func (e *Executor) Broadcast(payload []byte, opts ...router.SendOption) (uint32, error) {
	return e.r.Broadcast(payload, opts...)
}

// AddRoute registers an already-connected neighbour socket, e.g. the
// parent edge inherited across fork.
func (e *Executor) AddRoute(pid, fd int) error {
	return e.r.AddEndpoint(pid, fd)
}

// Children returns a snapshot of the direct-child table.
func (e *Executor) Children() map[int]ChildInfo {
	out := make(map[int]ChildInfo, len(e.children))
	for pid, ci := range e.children {
		out[pid] = *ci
	}
	return out
}

// ReadChildState returns the state of one child. Reading a terminated
// state acknowledges it and removes the record; a living child stays.
func (e *Executor) ReadChildState(pid int) (ChildInfo, bool) {
	ci, ok := e.children[pid]
	if !ok {
		return ChildInfo{}, false
	}
	out := *ci
	if !ci.Living() {
		delete(e.children, pid)
	}
	return out, true
}

func (e *Executor) livingChildren() int {
	n := 0
	for _, ci := range e.children {
		if ci.Living() {
			n++
		}
	}
	return n
}

// Shutdown requests loop termination. Safe to call from listeners and
// from other goroutines; the loop condition and behaviour flags decide
// how much draining happens before the loop actually ends.
func (e *Executor) Shutdown() {
	if e.shutdown {
		return
	}
	e.shutdown = true
	e.dispatchExec(func(l api.ExecutorListener) { l.OnShutdown(e) })
	e.rx.Wakeup()
}

// ShuttingDown reports whether Shutdown was requested.
func (e *Executor) ShuttingDown() bool { return e.shutdown }

func (e *Executor) continueLooping() bool {
	if !e.shutdown {
		return true
	}
	if e.behavior.Has(api.FlushPendingMessages) && e.r.PendingFrames() > 0 {
		return true
	}
	if e.behavior.Has(api.WaitForPeersTermination) && len(e.children) > 0 {
		return true
	}
	return false
}

// Loop runs the reactor until shutdown completes. After the loop it
// closes remaining sockets, reaps still-living children, and — when this
// is the root and ExitAfterShutdown is set — exits the process.
func (e *Executor) Loop() error {
	e.dispatchExec(func(l api.ExecutorListener) { l.OnStart(e) })

	ttl := e.ttl
	for e.continueLooping() {
		timeout := -1
		if e.shutdown {
			timeout = e.pollMs
		}
		if _, err := e.rx.Poll(timeout); err != nil {
			return err
		}
		if e.shutdown && e.livingChildren() == 0 {
			// A behaviour flag that can never be satisfied must not spin
			// forever.
			ttl--
			if ttl <= 0 {
				break
			}
		}
	}

	e.dispatchExec(func(l api.ExecutorListener) { l.OnExitLoop(e) })
	e.gracefulShutdown()

	if e.IsRoot() && e.behavior.Has(api.ExitAfterShutdown) {
		os.Exit(e.exitCode)
	}
	return nil
}

// gracefulShutdown closes every endpoint and blocks until all living
// children are reaped.
func (e *Executor) gracefulShutdown() {
	_ = e.r.Close()
	for e.livingChildren() > 0 {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, 0, nil)
		if pid <= 0 || err != nil {
			break
		}
		e.applyChildExit(pid, ws)
	}
	if e.probes != nil {
		e.probes.RemoveProbe("executor")
	}
	_ = e.rx.Close()
}

// ExitCode returns the configured exit code for this process.
func (e *Executor) ExitCode() int { return e.exitCode }

func (e *Executor) dispatchExec(fn func(api.ExecutorListener)) {
	for _, l := range e.execListeners {
		func() {
			defer func() { _ = recover() }()
			fn(l)
		}()
	}
}

func (e *Executor) stateSnapshot() any {
	states := make(map[int]string, len(e.children))
	for pid, ci := range e.children {
		states[pid] = ci.State.String()
	}
	return map[string]any{
		"pid":      e.pid,
		"parent":   e.parentPID,
		"root":     e.rootPID,
		"alias":    e.alias,
		"children": states,
		"shutdown": e.shutdown,
		"pending":  e.r.PendingFrames(),
	}
}
