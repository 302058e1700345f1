// File: executor/signals.go
// Package executor wires SIGCHLD reaping and the urgent-delivery signal.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package executor

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

func (e *Executor) wireSignals() {
	e.rx.RegisterSignal(unix.SIGCHLD, func(os.Signal) { e.reapChildren() })
	if e.urgentSig != 0 {
		e.rx.RegisterSignal(e.urgentSig, func(os.Signal) {
			// Re-entering the drain is a caller bug, not an I/O condition.
			if err := e.r.InterruptDrain(); err != nil {
				panic(err)
			}
		})
	}
}

// reapChildren collects every terminated child without blocking, then
// pokes the matching endpoint so its EOF is observed and OnPeerShutdown
// fires with whatever was still queued.
func (e *Executor) reapChildren() {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		if pid <= 0 || err != nil {
			return
		}
		e.applyChildExit(pid, ws)
		e.r.DrainEndpoint(pid)
	}
}

// applyChildExit moves a child record to its terminal state.
func (e *Executor) applyChildExit(pid int, ws unix.WaitStatus) {
	ci, ok := e.children[pid]
	if !ok {
		return
	}
	ci.Elapsed = time.Since(ci.Started)
	if ws.Signaled() {
		ci.State = TerminationSignal
		ci.Status = int(ws.Signal())
	} else {
		ci.State = TerminationExited
		ci.Status = ws.ExitStatus()
	}
}
