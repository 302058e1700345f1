// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package router implements the per-process message router: flood routing
// with split-horizon over the neighbour endpoints, ack synthesis, broadcast
// fan-out, the urgent-delivery drain pass, and priority-ordered listener
// dispatch. A router owns its endpoints; the executor owns the router.
package router
