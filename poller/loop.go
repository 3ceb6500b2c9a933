package poller

import (
	"net"
	"sync"
	"time"

	"github.com/coregx/nbws"
)

// probeTick is how often Loop re-arms a short deadline and re-invokes
// Service for a connection with outstanding interest.
const probeTick = 20 * time.Millisecond

// Loop is a portable nbws.EventLoopAdapter fallback for platforms without
// epoll: one goroutine per registered connection, ticking on a short
// interval. Each tick it sets a short read/write deadline on the
// raw transport and calls nbws.Service; the state machine's own reads
// then see os.ErrDeadlineExceeded (via net.Error.Timeout()) exactly the
// way a real non-blocking socket would report "not ready yet," and
// recover through the same wouldBlock path poller.Epoll's readiness
// events do. The handshake request write is not retried: a write that
// hits the deadline fails the connection.
//
// This is a correctness fallback for platforms without epoll, not a
// production I/O multiplexer. poller.Epoll should be preferred on Linux.
type Loop struct {
	mu    sync.Mutex
	conns map[*nbws.Connection]*loopEntry
}

type loopEntry struct {
	stop chan struct{}

	mu        sync.Mutex
	wantRead  bool
	wantWrite bool
	deadline  time.Time
}

// NewLoop creates an empty Loop.
func NewLoop() *Loop {
	return &Loop{conns: make(map[*nbws.Connection]*loopEntry)}
}

// Register starts polling c, initially interested in both directions,
// mirroring poller.Epoll's initial EPOLLIN|EPOLLOUT registration, since a
// freshly built Connection starts in ISSUE_HANDSHAKE (or
// WAITING_PROXY_REPLY) and must be serviced on whichever direction becomes
// ready first without an explicit Arm* call from the caller.
func (l *Loop) Register(c *nbws.Connection) {
	ent := &loopEntry{stop: make(chan struct{}), wantRead: true, wantWrite: true}
	l.mu.Lock()
	l.conns[c] = ent
	l.mu.Unlock()
	go l.run(c, ent)
}

// Unregister stops polling c. Safe to call more than once.
func (l *Loop) Unregister(c *nbws.Connection) {
	l.mu.Lock()
	ent, ok := l.conns[c]
	delete(l.conns, c)
	l.mu.Unlock()
	if ok {
		close(ent.stop)
	}
}

func (l *Loop) entryFor(c *nbws.Connection) *loopEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conns[c]
}

func (l *Loop) ArmReadable(c *nbws.Connection) {
	if e := l.entryFor(c); e != nil {
		e.mu.Lock()
		e.wantRead = true
		e.mu.Unlock()
	}
}

func (l *Loop) ArmWritable(c *nbws.Connection) {
	if e := l.entryFor(c); e != nil {
		e.mu.Lock()
		e.wantWrite = true
		e.mu.Unlock()
	}
}

func (l *Loop) ClearWritable(c *nbws.Connection) {
	if e := l.entryFor(c); e != nil {
		e.mu.Lock()
		e.wantWrite = false
		e.mu.Unlock()
	}
}

func (l *Loop) SetTimeout(c *nbws.Connection, deadline time.Time) {
	if e := l.entryFor(c); e != nil {
		e.mu.Lock()
		e.deadline = deadline
		e.mu.Unlock()
	}
	c.SetDeadline(deadline)
}

func (l *Loop) run(c *nbws.Connection, ent *loopEntry) {
	ticker := time.NewTicker(probeTick)
	defer ticker.Stop()
	for {
		select {
		case <-ent.stop:
			return
		case <-ticker.C:
			l.tick(c, ent)
		}
	}
}

func (l *Loop) tick(c *nbws.Connection, ent *loopEntry) {
	ent.mu.Lock()
	wantRead, wantWrite, deadline := ent.wantRead, ent.wantWrite, ent.deadline
	ent.mu.Unlock()

	if !deadline.IsZero() && time.Now().After(deadline) {
		nbws.Service(c, nbws.ReadinessTimeout)
		return
	}

	nc, ok := c.Transport().(net.Conn)
	if !ok {
		return
	}

	if wantWrite {
		_ = nc.SetWriteDeadline(time.Now().Add(probeTick))
		nbws.Service(c, nbws.ReadinessWritable)
	}
	if wantRead {
		_ = nc.SetReadDeadline(time.Now().Add(probeTick))
		nbws.Service(c, nbws.ReadinessReadable)
	}
}
