//go:build linux

// Package poller provides concrete nbws.EventLoopAdapter implementations.
package poller

import (
	"fmt"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/coregx/nbws"
)

// Epoll is an nbws.EventLoopAdapter backed by Linux epoll, via
// golang.org/x/sys/unix. One Epoll serves every connection on one
// Context, and Wait must always be called from that Context's owning
// goroutine.
type Epoll struct {
	fd int

	mu     sync.Mutex
	byFD   map[int]*entry
	byConn map[*nbws.Connection]*entry
}

type entry struct {
	fd       int
	conn     *nbws.Connection
	events   uint32
	deadline time.Time
}

// NewEpoll creates an epoll instance. Callers must call Close when done.
func NewEpoll() (*Epoll, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("poller: epoll_create1: %w", err)
	}
	return &Epoll{
		fd:     fd,
		byFD:   make(map[int]*entry),
		byConn: make(map[*nbws.Connection]*entry),
	}, nil
}

func (e *Epoll) Close() error {
	return unix.Close(e.fd)
}

// Register adds c's transport to this epoll instance, initially armed for
// both readable and writable (the handshake state machine narrows
// interest as it advances through ISSUE_HANDSHAKE/WAITING_SERVER_REPLY).
func (e *Epoll) Register(c *nbws.Connection) error {
	fd, err := rawFD(c.Transport())
	if err != nil {
		return err
	}

	ent := &entry{fd: fd, conn: c, events: unix.EPOLLIN | unix.EPOLLOUT}

	e.mu.Lock()
	e.byFD[fd] = ent
	e.byConn[c] = ent
	e.mu.Unlock()

	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: ent.events,
		Fd:     int32(fd),
	})
}

// Unregister drops c from this epoll instance. Safe to call more than once.
func (e *Epoll) Unregister(c *nbws.Connection) {
	e.mu.Lock()
	ent, ok := e.byConn[c]
	if ok {
		delete(e.byConn, c)
		delete(e.byFD, ent.fd)
	}
	e.mu.Unlock()
	if ok {
		_ = unix.EpollCtl(e.fd, unix.EPOLL_CTL_DEL, ent.fd, nil)
	}
}

func (e *Epoll) modify(c *nbws.Connection, events uint32) {
	e.mu.Lock()
	ent, ok := e.byConn[c]
	if ok {
		ent.events = events
	}
	e.mu.Unlock()
	if !ok {
		return
	}
	_ = unix.EpollCtl(e.fd, unix.EPOLL_CTL_MOD, ent.fd, &unix.EpollEvent{
		Events: events,
		Fd:     int32(ent.fd),
	})
}

func (e *Epoll) ArmReadable(c *nbws.Connection) {
	e.mu.Lock()
	ent, ok := e.byConn[c]
	events := uint32(unix.EPOLLIN)
	if ok {
		events |= ent.events & unix.EPOLLOUT
	}
	e.mu.Unlock()
	e.modify(c, events)
}

func (e *Epoll) ArmWritable(c *nbws.Connection) {
	e.mu.Lock()
	ent, ok := e.byConn[c]
	events := uint32(unix.EPOLLOUT)
	if ok {
		events |= ent.events & unix.EPOLLIN
	}
	e.mu.Unlock()
	e.modify(c, events)
}

func (e *Epoll) ClearWritable(c *nbws.Connection) {
	e.mu.Lock()
	ent, ok := e.byConn[c]
	var events uint32
	if ok {
		events = ent.events &^ unix.EPOLLOUT
	}
	e.mu.Unlock()
	e.modify(c, events)
}

func (e *Epoll) SetTimeout(c *nbws.Connection, deadline time.Time) {
	e.mu.Lock()
	if ent, ok := e.byConn[c]; ok {
		ent.deadline = deadline
	}
	e.mu.Unlock()
	c.SetDeadline(deadline)
}

// Wait blocks for up to timeoutMS milliseconds (-1 blocks indefinitely),
// dispatches every ready fd to nbws.Service, and separately sweeps
// registered connections whose deadline has elapsed. Callers typically
// loop calling Wait forever on the Context's owning goroutine.
func (e *Epoll) Wait(timeoutMS int) error {
	var events [64]unix.EpollEvent
	n, err := unix.EpollWait(e.fd, events[:], timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return fmt.Errorf("poller: epoll_wait: %w", err)
	}

	for i := 0; i < n; i++ {
		ev := events[i]
		e.mu.Lock()
		ent, ok := e.byFD[int(ev.Fd)]
		e.mu.Unlock()
		if !ok {
			continue
		}

		switch {
		case ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0:
			nbws.Service(ent.conn, nbws.ReadinessError)
		case ev.Events&unix.EPOLLIN != 0:
			nbws.Service(ent.conn, nbws.ReadinessReadable)
		case ev.Events&unix.EPOLLOUT != 0:
			nbws.Service(ent.conn, nbws.ReadinessWritable)
		}
	}

	e.sweepTimeouts()
	return nil
}

func (e *Epoll) sweepTimeouts() {
	now := time.Now()
	var expired []*nbws.Connection

	e.mu.Lock()
	for _, ent := range e.byConn {
		if !ent.deadline.IsZero() && now.After(ent.deadline) {
			expired = append(expired, ent.conn)
		}
	}
	e.mu.Unlock()

	for _, c := range expired {
		nbws.Service(c, nbws.ReadinessTimeout)
	}
}

func rawFD(t nbws.Transport) (int, error) {
	sc, ok := t.(syscall.Conn)
	if !ok {
		return -1, fmt.Errorf("poller: transport %T does not support raw fd access", t)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	var ctrlErr error
	if err := raw.Control(func(fdv uintptr) { fd = int(fdv) }); err != nil {
		ctrlErr = err
	}
	if ctrlErr != nil {
		return -1, ctrlErr
	}
	return fd, nil
}
