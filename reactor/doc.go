// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the single-threaded readiness multiplexer
// driving a proctree process: per-fd read/write callbacks over epoll on
// Linux, plus a bridge that turns POSIX signals into callbacks delivered
// between event dispatches. Exactly one callback runs at a time.
package reactor
