// File: router/loglistener.go
// Package router provides an optional tracing listener.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package router

import (
	"github.com/sirupsen/logrus"

	"github.com/momentics/proctree/api"
)

// LogListener traces router events through logrus. The library itself
// never logs; register this explicitly when tracing is wanted, typically
// together with raw-context dispatch.
type LogListener struct {
	priority int
	log      *logrus.Logger
}

// NewLogListener builds a tracing listener with the given priority.
func NewLogListener(log *logrus.Logger, priority int) *LogListener {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogListener{priority: priority, log: log}
}

func (ll *LogListener) Priority() int { return ll.priority }

func (ll *LogListener) fields(ev *api.MessageEvent) logrus.Fields {
	return logrus.Fields{
		"id":        ev.ID(),
		"src":       ev.Src(),
		"dst":       ev.Dst(),
		"fd":        ev.FD(),
		"ack":       ev.IsAck(),
		"urgent":    ev.IsUrgent(),
		"broadcast": ev.IsBroadcast(),
		"bytes":     len(ev.Payload()),
	}
}

func (ll *LogListener) OnMessageSent(ev *api.MessageEvent) {
	ll.log.WithFields(ll.fields(ev)).Debug("message sent")
}

func (ll *LogListener) OnMessageReceived(ev *api.MessageEvent) {
	ll.log.WithFields(ll.fields(ev)).Debug("message received")
}

func (ll *LogListener) OnInterruptReceive(ev *api.MessageEvent) {
	ll.log.WithFields(ll.fields(ev)).Debug("interrupt receive")
}

func (ll *LogListener) OnPeerShutdown(_ api.ExecutorControl, pid int, unsent []api.LostMessage) {
	ll.log.WithFields(logrus.Fields{"pid": pid, "lost": len(unsent)}).Info("peer shutdown")
}

func (ll *LogListener) OnRouterError(op api.RouterOp, errno int, message string, cause error) {
	entry := ll.log.WithFields(logrus.Fields{"op": op.String(), "errno": errno})
	if cause != nil {
		entry = entry.WithError(cause)
	}
	entry.Error(message)
}
