//go:build linux
// +build linux

// File: transport/socketpair_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// NewSocketPair creates the full-duplex, non-blocking, close-on-exec
// byte-stream pair connecting a parent to a forked child. Slot 0 stays in
// the parent; slot 1 is inherited by the child (exec clears CLOEXEC on the
// duplicated descriptor).
func NewSocketPair() ([2]int, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX,
		unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return [2]int{}, fmt.Errorf("socketpair: %w", err)
	}
	return fds, nil
}

// SetNonblock restores non-blocking mode on an inherited descriptor.
func SetNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}
