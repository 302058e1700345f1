// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package executor drives one process of the tree: it forks children with
// an inherited socketpair edge, owns the router and the reactor, reaps
// terminated children, and runs the multi-phase graceful shutdown.
//
// The Go runtime does not survive a bare fork(2), so Fork spawns the
// current executable again and the child-side callable is a named entry
// registered with RegisterEntry. Main must run first in main(); in a
// child process it builds the executor from the inherited environment,
// runs the entry, loops and exits — it never returns.
package executor
