//go:build linux
// +build linux

// File: reactor/epoll_reactor_linux.go
// Package reactor - Linux epoll implementation.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"fmt"
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
)

const maxEvents = 128

type fdHandler struct {
	interest FDEventType
	cb       FDCallback
}

// epollReactor implements Reactor using Linux epoll plus a self-pipe that
// turns os/signal notifications into reactor-context callbacks.
type epollReactor struct {
	epfd   int
	wakeRd int
	wakeWr int

	// callbacks is only touched on the loop goroutine.
	callbacks map[int]*fdHandler
	events    []unix.EpollEvent

	sigCh  chan os.Signal
	sigFns map[os.Signal]SignalCallback

	mu      sync.Mutex
	pending []os.Signal
	done    chan struct{}
	closed  bool
}

// NewReactor constructs the platform reactor for Linux.
func NewReactor() (Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	var pipefd [2]int
	if err := unix.Pipe2(pipefd[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("wakeup pipe: %w", err)
	}
	r := &epollReactor{
		epfd:      epfd,
		wakeRd:    pipefd[0],
		wakeWr:    pipefd[1],
		callbacks: make(map[int]*fdHandler),
		events:    make([]unix.EpollEvent, maxEvents),
		sigCh:     make(chan os.Signal, 64),
		sigFns:    make(map[os.Signal]SignalCallback),
		done:      make(chan struct{}),
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(r.wakeRd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, r.wakeRd, &ev); err != nil {
		r.closeFds()
		return nil, fmt.Errorf("epoll ctl wakeup: %w", err)
	}
	go r.forwardSignals()
	return r, nil
}

// forwardSignals moves notifications from the runtime's signal goroutine
// into the pending list and pokes the loop awake. User callbacks never run
// here; they run inside Poll.
func (r *epollReactor) forwardSignals() {
	for {
		select {
		case sig := <-r.sigCh:
			r.mu.Lock()
			r.pending = append(r.pending, sig)
			r.mu.Unlock()
			r.Wakeup()
		case <-r.done:
			return
		}
	}
}

func epollMask(events FDEventType) uint32 {
	var m uint32
	if events&EventRead != 0 {
		m |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		m |= unix.EPOLLOUT
	}
	return m
}

// Register adds a file descriptor to the epoll watch list.
func (r *epollReactor) Register(fd int, events FDEventType, cb FDCallback) error {
	ev := unix.EpollEvent{Events: epollMask(events), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	r.callbacks[fd] = &fdHandler{interest: events, cb: cb}
	return nil
}

// Modify replaces the interest set of fd.
func (r *epollReactor) Modify(fd int, events FDEventType) error {
	h, ok := r.callbacks[fd]
	if !ok {
		return fmt.Errorf("epoll modify: fd %d not registered", fd)
	}
	ev := unix.EpollEvent{Events: epollMask(events), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	h.interest = events
	return nil
}

// Unregister removes a file descriptor from the epoll watch list.
func (r *epollReactor) Unregister(fd int) error {
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	delete(r.callbacks, fd)
	return nil
}

// RegisterSignal routes sig to fn between dispatches.
func (r *epollReactor) RegisterSignal(sig os.Signal, fn SignalCallback) {
	r.sigFns[sig] = fn
	signal.Notify(r.sigCh, sig)
}

// Wakeup interrupts a blocking Poll.
func (r *epollReactor) Wakeup() {
	_, _ = unix.Write(r.wakeWr, []byte{0})
}

// Poll blocks and waits for events on registered file descriptors,
// then dispatches fd callbacks and any pending signal callbacks.
func (r *epollReactor) Poll(timeoutMs int) (int, error) {
	timeout := timeoutMs
	if timeout < 0 {
		timeout = -1
	}
	n, err := unix.EpollWait(r.epfd, r.events, timeout)
	if err != nil {
		if err == unix.EINTR {
			r.deliverSignals()
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}

	dispatched := 0
	for i := 0; i < n; i++ {
		ev := r.events[i]
		fd := int(ev.Fd)
		if fd == r.wakeRd {
			r.drainWakeup()
			continue
		}
		h, ok := r.callbacks[fd]
		if !ok {
			continue
		}
		var et FDEventType
		if ev.Events&unix.EPOLLIN != 0 {
			et |= EventRead
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			et |= EventWrite
		}
		if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			et |= EventError
		}
		dispatched++
		// Recover guard keeps the loop alive across handler panics.
		func() {
			defer func() { _ = recover() }()
			h.cb(fd, et)
		}()
		r.deliverSignals()
	}
	r.deliverSignals()
	return dispatched, nil
}

func (r *epollReactor) drainWakeup() {
	var buf [64]byte
	for {
		if _, err := unix.Read(r.wakeRd, buf[:]); err != nil {
			return
		}
	}
}

// deliverSignals runs pending signal callbacks on the loop goroutine.
func (r *epollReactor) deliverSignals() {
	r.mu.Lock()
	queued := r.pending
	r.pending = nil
	r.mu.Unlock()
	for _, sig := range queued {
		fn, ok := r.sigFns[sig]
		if !ok {
			continue
		}
		func() {
			defer func() { _ = recover() }()
			fn(sig)
		}()
	}
}

func (r *epollReactor) closeFds() {
	unix.Close(r.epfd)
	unix.Close(r.wakeRd)
	unix.Close(r.wakeWr)
}

// Close releases the epoll instance and stops signal forwarding.
func (r *epollReactor) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	signal.Stop(r.sigCh)
	close(r.done)
	r.closeFds()
	return nil
}
