//go:build !linux
// +build !linux

// File: transport/socketpair_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import "github.com/momentics/proctree/api"

// NewSocketPair is unavailable off Linux.
func NewSocketPair() ([2]int, error) {
	return [2]int{}, api.ErrNotSupported
}

// SetNonblock is unavailable off Linux.
func SetNonblock(fd int) error {
	return api.ErrNotSupported
}
