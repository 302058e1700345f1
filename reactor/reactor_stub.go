//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Package reactor stub for unsupported platforms.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import "github.com/momentics/proctree/api"

// NewReactor always fails where epoll is unavailable.
func NewReactor() (Reactor, error) {
	return nil, api.ErrNotSupported
}
