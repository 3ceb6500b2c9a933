// Package transport provides concrete Transport implementations for the
// nbws handshake core: TLS on top of an already-connected net.Conn.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/coregx/nbws"
)

// nonblockProbe is the deadline set on the raw connection before every
// HandshakeContext step, so a blocking Read/Write inside the TLS stack
// returns promptly with a timeout instead of stalling the caller's
// event-loop thread. poller.Loop's portable fallback uses the same
// deadline-probe trick for plain sockets.
const nonblockProbe = 1 * time.Millisecond

// TLS wraps a *tls.Conn as a non-blocking nbws.Transport, implementing
// nbws.Connector so the handshake core's ISSUE_HANDSHAKE step can drive
// the TLS handshake one short step at a time.
type TLS struct {
	*tls.Conn
	raw  net.Conn
	done bool
}

// NewTLS wraps raw for a connection to host. permissive corresponds to
// nbws.TLSOnPermissive: self-signed and otherwise-unverifiable
// certificates are accepted. The context's shared cfg is cloned, never
// mutated in place, so on-verified connections on the same Context are
// unaffected by an on-permissive one.
func NewTLS(raw net.Conn, cfg *tls.Config, host string, permissive bool) *TLS {
	c := cfg.Clone()
	if c == nil {
		c = &tls.Config{MinVersion: tls.VersionTLS12} //nolint:gosec // overridden by caller's shared config in the common case
	}
	c.ServerName = host
	if permissive {
		c.InsecureSkipVerify = true //nolint:gosec // explicit opt-in via TLSOnPermissive
	}
	return &TLS{
		Conn: tls.Client(raw, c),
		raw:  raw,
	}
}

// Connect implements nbws.Connector. The state machine calls it repeatedly
// from ISSUE_HANDSHAKE until it returns nil.
func (t *TLS) Connect() error {
	if t.done {
		return nil
	}

	if err := t.raw.SetDeadline(time.Now().Add(nonblockProbe)); err != nil {
		return err
	}
	defer func() { _ = t.raw.SetDeadline(time.Time{}) }()

	if err := t.Conn.HandshakeContext(context.Background()); err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nbws.ErrWantWrite
		}
		return err
	}

	t.done = true
	return nil
}

// SyscallConn exposes the raw connection's file descriptor for
// poller.Epoll's registration, since *tls.Conn itself does not implement
// syscall.Conn. Epoll interest is driven off the underlying socket; TLS
// record framing has no effect on fd readability/writability.
func (t *TLS) SyscallConn() (syscall.RawConn, error) {
	sc, ok := t.raw.(syscall.Conn)
	if !ok {
		return nil, fmt.Errorf("transport: %T does not support raw fd access", t.raw)
	}
	return sc.SyscallConn()
}
