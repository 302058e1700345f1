// File: router/options.go
// Package router configuration options.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package router

import (
	"syscall"

	"github.com/momentics/proctree/api"
	"github.com/momentics/proctree/control"
)

// DispatchMode selects which hops fire listener callbacks.
type DispatchMode int

const (
	// ProcessContext fires callbacks only on the logical sender and the
	// logical receiver. Default.
	ProcessContext DispatchMode = iota

	// RawContext also fires callbacks on every transit hop, for tracing.
	RawContext
)

// Option mutates router construction.
type Option func(*Router)

// WithDispatchMode selects process-context or raw-context dispatch.
func WithDispatchMode(mode DispatchMode) Option {
	return func(r *Router) { r.mode = mode }
}

// WithUrgentSignal overrides the signal sent to the next hop after an
// urgent frame is flushed.
func WithUrgentSignal(sig syscall.Signal) Option {
	return func(r *Router) { r.urgentSig = sig }
}

// WithMetrics attaches a counter registry.
func WithMetrics(mr *control.MetricsRegistry) Option {
	return func(r *Router) { r.metrics = mr }
}

// WithProbes attaches a debug probe registry; the router exports its
// state snapshot under the "router" probe.
func WithProbes(dp *control.DebugProbes) Option {
	return func(r *Router) { r.probes = dp }
}

// WithExecutor wires the executor back-reference handed to listeners.
func WithExecutor(exec api.ExecutorControl) Option {
	return func(r *Router) { r.exec = exec }
}

// WithIDSource replaces the random message-id generator.
func WithIDSource(fn func() uint32) Option {
	return func(r *Router) { r.idFn = fn }
}

// SendOption refines a single submission.
type SendOption func(*sendConfig)

type sendConfig struct {
	serialize bool
	ack       bool
	urgent    bool
	broadcast bool
	alias     string
	dst       int
}

// WithAck asks the recipient to emit an acknowledge frame.
func WithAck() SendOption {
	return func(c *sendConfig) { c.ack = true }
}

// WithUrgent signals the next hop once the frame's bytes are flushed.
func WithUrgent() SendOption {
	return func(c *sendConfig) { c.urgent = true }
}

// WithSerialize marks the payload as an application-encoded blob. The
// marker is forwarded unchanged; the library prescribes no encoding.
func WithSerialize() SendOption {
	return func(c *sendConfig) { c.serialize = true }
}
