// File: executor/fork.go
// Package executor implements fork+exec child creation.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package executor

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/proctree/api"
	"github.com/momentics/proctree/control"
	"github.com/momentics/proctree/transport"
)

// Fork spawns a child process running the named registered entry and
// connects it with a socketpair edge. The parent-side callable onForked
// runs before Fork returns; the child-side callable is the entry itself,
// invoked by Main in the child. Listeners do not cross the exec boundary;
// the entry re-installs its own.
func (e *Executor) Fork(entry, alias string, onForked func(*Executor, int)) (int, error) {
	if _, ok := entryFor(entry); !ok {
		return 0, fmt.Errorf("%w: %q", api.ErrUnknownEntry, entry)
	}
	if e.shutdown {
		return 0, api.ErrShuttingDown
	}

	fds, err := transport.NewSocketPair()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", api.ErrForkFailed, err)
	}
	exe, err := os.Executable()
	if err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return 0, fmt.Errorf("%w: %v", api.ErrForkFailed, err)
	}

	childEdge := os.NewFile(uintptr(fds[1]), "proctree-parent-edge")
	cmd := exec.Command(exe)
	cmd.Env = append(os.Environ(),
		envEntry+"="+entry,
		envAlias+"="+alias,
		envParentPID+"="+strconv.Itoa(e.pid),
		envRootPID+"="+strconv.Itoa(e.rootPID),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{childEdge} // becomes childEdgeFD in the child

	if err := cmd.Start(); err != nil {
		childEdge.Close()
		unix.Close(fds[0])
		return 0, fmt.Errorf("%w: %v", api.ErrForkFailed, err)
	}
	// The reactor reaps via wait4; os/exec bookkeeping is not used.
	childEdge.Close()
	childPID := cmd.Process.Pid
	_ = cmd.Process.Release()
	e.children[childPID] = &ChildInfo{
		PID:     childPID,
		Started: time.Now(),
		State:   TerminationLiving,
	}
	if err := e.r.AddEndpoint(childPID, fds[0]); err != nil {
		unix.Close(fds[0])
		return childPID, err
	}
	e.metrics.Incr(control.CtrForks)

	if onForked != nil {
		onForked(e, childPID)
	}
	return childPID, nil
}
