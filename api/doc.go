// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package api defines the shared contracts of the proctree library: the
// listener capability set, message events, structured errors, and the
// shutdown behaviour flags exchanged between the router and the executor.
package api
