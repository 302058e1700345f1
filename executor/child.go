// File: executor/child.go
// Package executor tracks direct-child lifecycle state.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package executor

import "time"

// TerminationType classifies how a direct child ended.
type TerminationType int

const (
	// TerminationLiving marks a child that has not exited yet.
	TerminationLiving TerminationType = iota
	// TerminationExited marks a normal exit; Status holds the exit code.
	TerminationExited
	// TerminationSignal marks a signal death; Status holds the signal.
	TerminationSignal
)

// String returns the state label.
func (t TerminationType) String() string {
	switch t {
	case TerminationLiving:
		return "LIVING"
	case TerminationExited:
		return "EXITED"
	default:
		return "SIGNAL"
	}
}

// ChildInfo is the per-child record kept by the parent. It is created on
// fork, moved to its terminal state by the SIGCHLD reaper, and removed
// when the application acknowledges it via ReadChildState.
type ChildInfo struct {
	PID     int
	Started time.Time
	Elapsed time.Duration // set at termination
	State   TerminationType
	Status  int // exit code or signal number
}

// Living reports whether the child has not terminated yet.
func (ci *ChildInfo) Living() bool { return ci.State == TerminationLiving }
