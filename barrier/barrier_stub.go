//go:build !linux
// +build !linux

// File: barrier/barrier_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package barrier

import (
	"time"

	"github.com/momentics/proctree/api"
)

// Barrier is unavailable off Linux.
type Barrier struct{}

func Create(key, parties int) (*Barrier, error) { return nil, api.ErrNotSupported }
func Attach(key int) (*Barrier, error)          { return nil, api.ErrNotSupported }

func (b *Barrier) Key() int                         { return 0 }
func (b *Barrier) Parties() int                     { return 0 }
func (b *Barrier) Waiting() int                     { return 0 }
func (b *Barrier) Broken() bool                     { return false }
func (b *Barrier) Await(time.Duration) (int, error) { return 0, api.ErrNotSupported }
func (b *Barrier) Interrupt()                       {}
func (b *Barrier) Reset() error                     { return api.ErrNotSupported }
func (b *Barrier) Detach() error                    { return nil }
func (b *Barrier) Remove() error                    { return nil }
