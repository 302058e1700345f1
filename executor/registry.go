// File: executor/registry.go
// Package executor implements the child entry registry and bootstrap.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package executor

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/momentics/proctree/transport"
)

// Environment handed from Fork to the child bootstrap.
const (
	envEntry     = "PROCTREE_ENTRY"
	envAlias     = "PROCTREE_ALIAS"
	envParentPID = "PROCTREE_PARENT_PID"
	envRootPID   = "PROCTREE_ROOT_PID"
)

// childEdgeFD is where the parent edge lands after exec: the first slot
// past stdin/stdout/stderr.
const childEdgeFD = 3

// EntryFunc is the child-side callable of Fork. It receives the child's
// freshly built executor with the parent edge already registered; the
// executor loops after it returns.
type EntryFunc func(*Executor)

var (
	entriesMu sync.RWMutex
	entries   = make(map[string]EntryFunc)
)

// RegisterEntry names a child entry point. Both sides of a Fork compile
// the same registry, so registration normally happens in init() or at the
// top of main(), before Main runs.
func RegisterEntry(name string, fn EntryFunc) {
	entriesMu.Lock()
	defer entriesMu.Unlock()
	entries[name] = fn
}

func entryFor(name string) (EntryFunc, bool) {
	entriesMu.RLock()
	defer entriesMu.RUnlock()
	fn, ok := entries[name]
	return fn, ok
}

// Main is the child bootstrap and must run before anything else in
// main(). In the parent (no entry environment) it returns immediately.
// In a child it rebuilds the executor from the inherited environment —
// fresh reactor, fresh router keyed by the fork alias, the parent edge on
// the inherited descriptor — runs the entry, enters the loop and exits
// the process with the configured code. It never returns in a child.
func Main(opts ...Option) {
	entry := os.Getenv(envEntry)
	if entry == "" {
		return
	}
	fn, ok := entryFor(entry)
	if !ok {
		fmt.Fprintf(os.Stderr, "proctree: entry %q not registered in this binary\n", entry)
		os.Exit(1)
	}
	parentPID, err := strconv.Atoi(os.Getenv(envParentPID))
	if err != nil || parentPID <= 0 {
		fmt.Fprintln(os.Stderr, "proctree: invalid parent pid in environment")
		os.Exit(1)
	}
	rootPID, err := strconv.Atoi(os.Getenv(envRootPID))
	if err != nil || rootPID <= 0 {
		rootPID = parentPID
	}
	alias := os.Getenv(envAlias)

	// Grandchildren must not inherit this process's bootstrap.
	os.Unsetenv(envEntry)
	os.Unsetenv(envAlias)
	os.Unsetenv(envParentPID)
	os.Unsetenv(envRootPID)

	opts = append(opts, WithAlias(alias), withLineage(parentPID, rootPID))
	e, err := New(opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "proctree: child bootstrap: %v\n", err)
		os.Exit(1)
	}
	if err := transport.SetNonblock(childEdgeFD); err != nil {
		fmt.Fprintf(os.Stderr, "proctree: parent edge: %v\n", err)
		os.Exit(1)
	}
	if err := e.AddRoute(parentPID, childEdgeFD); err != nil {
		fmt.Fprintf(os.Stderr, "proctree: parent edge: %v\n", err)
		os.Exit(1)
	}

	fn(e)
	_ = e.Loop()
	os.Exit(e.exitCode)
}
