//go:build linux
// +build linux

// File: barrier/barrier_linux.go
// Package barrier - SysV shm + futex implementation.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package barrier

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/momentics/proctree/api"
)

// Shared segment layout, one little-endian uint32 per slot.
const (
	offLock    = 0  // CAS spinlock guarding the counters
	offParties = 4  // configured party count, set at Create
	offWaiting = 8  // parties arrived in the current generation
	offGen     = 12 // generation word; also the futex waiters sleep on
	offState   = 16 // stArmed / stBroken / stInterrupted

	segSize = 4096
)

const (
	stArmed = iota
	stBroken
	stInterrupted
)

// Linux futex operation codes (linux/include/uapi/linux/futex.h); not
// exposed by golang.org/x/sys/unix, so defined here for use with the raw
// SYS_FUTEX syscall.
const (
	futexWait = 0
	futexWake = 1
)

// Barrier is one process's attachment to a shared rendezvous point.
type Barrier struct {
	key   int
	shmid int
	seg   []byte
	owner bool
}

// Create allocates (or reuses) the segment for key and arms it for the
// given party count. The creator owns the segment and should Remove it.
func Create(key, parties int) (*Barrier, error) {
	if parties < 0 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "negative party count")
	}
	b, err := attach(key, unix.IPC_CREAT|0o600)
	if err != nil {
		return nil, err
	}
	b.owner = true
	atomic.StoreUint32(b.word(offLock), 0)
	atomic.StoreUint32(b.word(offParties), uint32(parties))
	atomic.StoreUint32(b.word(offWaiting), 0)
	atomic.StoreUint32(b.word(offGen), 0)
	atomic.StoreUint32(b.word(offState), stArmed)
	return b, nil
}

// Attach joins an existing barrier.
func Attach(key int) (*Barrier, error) {
	return attach(key, 0o600)
}

func attach(key, flags int) (*Barrier, error) {
	shmid, err := unix.SysvShmGet(key, segSize, flags)
	if err != nil {
		return nil, fmt.Errorf("shmget key %d: %w", key, err)
	}
	seg, err := unix.SysvShmAttach(shmid, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("shmat key %d: %w", key, err)
	}
	return &Barrier{key: key, shmid: shmid, seg: seg}, nil
}

func (b *Barrier) word(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&b.seg[off]))
}

func (b *Barrier) lock() {
	for !atomic.CompareAndSwapUint32(b.word(offLock), 0, 1) {
		runtime.Gosched()
	}
}

func (b *Barrier) unlock() {
	atomic.StoreUint32(b.word(offLock), 0)
}

// Key returns the SysV key this barrier lives under.
func (b *Barrier) Key() int { return b.key }

// Parties returns the configured party count.
func (b *Barrier) Parties() int { return int(atomic.LoadUint32(b.word(offParties))) }

// Waiting returns the number of parties blocked in the current generation.
func (b *Barrier) Waiting() int { return int(atomic.LoadUint32(b.word(offWaiting))) }

// Broken reports whether the barrier is no longer usable until Reset.
func (b *Barrier) Broken() bool {
	return atomic.LoadUint32(b.word(offState)) != stArmed
}

func (b *Barrier) stateErr() error {
	switch atomic.LoadUint32(b.word(offState)) {
	case stInterrupted:
		return api.ErrBarrierInterrupted
	case stBroken:
		return api.ErrBarrierBroken
	}
	return nil
}

// breakWith marks the barrier, releases the current generation and wakes
// every waiter. All of them observe the broken state.
func (b *Barrier) breakWith(state uint32) {
	b.lock()
	atomic.StoreUint32(b.word(offState), state)
	atomic.StoreUint32(b.word(offWaiting), 0)
	atomic.AddUint32(b.word(offGen), 1)
	b.unlock()
	b.wakeAll()
}

// Await blocks until all parties arrived, the timeout expires, or the
// barrier breaks. timeout <= 0 waits forever. Returns the 0-based arrival
// rank. Expiration atomically breaks the barrier for everyone.
func (b *Barrier) Await(timeout time.Duration) (int, error) {
	if b.Parties() == 0 {
		// Zero remaining parties: nothing to wait for, nobody to wake.
		return 0, nil
	}

	b.lock()
	if err := b.stateErr(); err != nil {
		b.unlock()
		return 0, err
	}
	gen := atomic.LoadUint32(b.word(offGen))
	rank := int(atomic.LoadUint32(b.word(offWaiting)))
	atomic.StoreUint32(b.word(offWaiting), uint32(rank+1))
	if rank+1 >= b.Parties() {
		// Last arriver trips the barrier.
		atomic.StoreUint32(b.word(offWaiting), 0)
		atomic.AddUint32(b.word(offGen), 1)
		b.unlock()
		b.wakeAll()
		return rank, nil
	}
	b.unlock()

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if atomic.LoadUint32(b.word(offGen)) != gen {
			if err := b.stateErr(); err != nil {
				return rank, err
			}
			return rank, nil
		}
		var remaining time.Duration
		if timeout > 0 {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				b.breakWith(stBroken)
				return rank, api.ErrBarrierTimeout
			}
		}
		errno := b.futexWait(gen, remaining)
		switch errno {
		case 0, unix.EAGAIN, unix.EINTR:
			// EINTR covers runtime signals; loop and recheck.
		case unix.ETIMEDOUT:
			b.breakWith(stBroken)
			return rank, api.ErrBarrierTimeout
		default:
			return rank, fmt.Errorf("futex wait: %w", errno)
		}
	}
}

// Interrupt breaks the barrier on behalf of a cancelled participant; the
// concurrent waiters are released with the interrupted state.
func (b *Barrier) Interrupt() {
	b.breakWith(stInterrupted)
}

// Reset re-arms a broken barrier. It is only valid while nobody waits.
func (b *Barrier) Reset() error {
	b.lock()
	defer b.unlock()
	if atomic.LoadUint32(b.word(offWaiting)) != 0 {
		return api.NewError(api.ErrCodeInvalidArgument, "reset with active waiters")
	}
	atomic.StoreUint32(b.word(offState), stArmed)
	atomic.AddUint32(b.word(offGen), 1)
	return nil
}

func (b *Barrier) futexWait(val uint32, timeout time.Duration) unix.Errno {
	var tsPtr unsafe.Pointer
	if timeout > 0 {
		ts := unix.NsecToTimespec(timeout.Nanoseconds())
		tsPtr = unsafe.Pointer(&ts)
	}
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(b.word(offGen))),
		uintptr(futexWait), uintptr(val),
		uintptr(tsPtr), 0, 0)
	return errno
}

func (b *Barrier) wakeAll() {
	_, _, _ = unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(b.word(offGen))),
		uintptr(futexWake), uintptr(^uint32(0)>>1),
		0, 0, 0)
}

// Detach unmaps the segment; the barrier stays alive for other parties.
func (b *Barrier) Detach() error {
	if b.seg == nil {
		return nil
	}
	err := unix.SysvShmDetach(b.seg)
	b.seg = nil
	return err
}

// Remove detaches and destroys the segment. Only meaningful on the owner.
func (b *Barrier) Remove() error {
	if err := b.Detach(); err != nil {
		return err
	}
	_, err := unix.SysvShmCtl(b.shmid, unix.IPC_RMID, nil)
	return err
}
