package nbws

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Readiness is the notification the event-loop adapter delivers: a
// transport fd has become readable, writable, reported an error, or the
// mode's deadline has elapsed.
type Readiness int

const (
	ReadinessReadable Readiness = iota
	ReadinessWritable
	ReadinessError
	ReadinessTimeout
)

const (
	proxyReplyTimeout  = 10 * time.Second
	serverReplyTimeout = 10 * time.Second
)

// Service is the single entry point for driving a connection's handshake,
// dispatching on its current Mode. It is meant to be called by an
// EventLoopAdapter every time it observes readiness for c's transport.
func Service(c *Connection, r Readiness) {
	if c.mode == ModeEstablished {
		return // dataplane events are frame.Conn's concern now.
	}

	if r == ReadinessTimeout {
		c.fail(newError(KindTimeout, CloseNoStatus, fmt.Sprintf("%s deadline exceeded", c.mode), nil))
		return
	}
	if r == ReadinessError {
		c.fail(newError(KindTransportDead, CloseNoStatus, "transport error or hangup", nil))
		return
	}

	switch c.mode {
	case ModeWaitingProxyReply:
		if r == ReadinessReadable {
			serviceProxyReply(c)
		}
	case ModeIssueHandshake:
		if r == ReadinessWritable {
			serviceIssueHandshake(c)
		}
	case ModeWaitingServerReply:
		if r == ReadinessReadable {
			serviceServerReply(c)
		}
	}
}

// wouldBlock reports whether err is one of the soft conditions the state
// machine must recover from locally: a TLS want-read/want-write, or a
// deadline expiring on a transport whose non-blocking behavior is
// simulated with short read/write deadlines (the poller.Loop fallback's
// approach; see poller package).
func wouldBlock(err error) bool {
	if err == nil {
		return false
	}
	if isSoftTLSError(err) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

// serviceProxyReply implements the WAITING_PROXY_REPLY handling: accumulate
// bytes until the 13-byte prefix can be checked, without ever testing a
// short read as though it were the final verdict.
func serviceProxyReply(c *Connection) {
	need := len(proxyReplyPrefix) - len(c.proxyBuf)
	buf := make([]byte, need)
	n, err := c.reader.Read(buf)
	if n > 0 {
		c.proxyBuf = append(c.proxyBuf, buf[:n]...)
	}
	if err != nil {
		if wouldBlock(err) {
			c.ctx.Loop.ArmReadable(c)
			return
		}
		c.fail(newError(KindTransportDead, CloseNoStatus, "reading proxy CONNECT reply", err))
		return
	}

	if len(c.proxyBuf) < len(proxyReplyPrefix) {
		c.ctx.Loop.ArmReadable(c)
		return
	}
	if string(c.proxyBuf) != proxyReplyPrefix {
		c.fail(newError(KindProxyRejected, CloseNoStatus,
			fmt.Sprintf("proxy CONNECT reply %q", c.proxyBuf), ErrProxyRejected))
		return
	}

	c.proxyBuf = nil
	cancelTimeout(c)
	c.setMode(ModeIssueHandshake)
	c.ctx.Loop.ArmWritable(c)
}

// serviceIssueHandshake implements the ISSUE_HANDSHAKE row: drive an
// in-progress TLS connect to completion (re-arming on its soft errors),
// then build and write the Upgrade request in one shot.
func serviceIssueHandshake(c *Connection) {
	if connector, ok := c.transport.(Connector); ok {
		if err := connector.Connect(); err != nil {
			if isSoftTLSError(err) {
				// A soft want-read or want-write during TLS connect is
				// handled identically: clear POLLOUT interest and
				// re-request it, so suspension stays cooperative and
				// lossless regardless of which direction the TLS stack
				// actually blocked on.
				c.ctx.Loop.ClearWritable(c)
				c.ctx.Loop.ArmWritable(c)
				return
			}
			c.fail(newError(KindTLSHandshakeFailed, CloseNoStatus, "TLS connect", err))
			return
		}
	}

	names := proposeExtensions(c.ctx.extensions, c.handlers.confirmExtension)
	req, err := buildClientRequest(c, names)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			c.fail(e)
		} else {
			c.fail(newError(KindAllocFailed, CloseNoStatus, "building handshake request", err))
		}
		return
	}
	if _, werr := c.transport.Write(req); werr != nil {
		c.fail(newError(KindTransportDead, CloseNoStatus, "writing handshake request", werr))
		return
	}

	c.parser = newHeaderParser()
	c.setMode(ModeWaitingServerReply)
	c.ctx.Loop.ArmReadable(c)
	c.ctx.Loop.SetTimeout(c, time.Now().Add(serverReplyTimeout))
}

// serviceServerReply implements the WAITING_SERVER_REPLY row: bytes are
// fed to the header parser one at a time via the connection's bufio.Reader.
// The parser itself never asks for more than the terminating blank line,
// but bufio is free to fill its internal buffer past that in a single
// syscall. Any such bytes (a coalesced first data frame) simply remain
// buffered in the same *bufio.Reader that gets handed to frame.NewConn at
// ESTABLISHED, so nothing is lost and nothing is double-read: the
// non-over-read property holds at that reader, not at the raw transport,
// which bufio may already have read past the headers.
func serviceServerReply(c *Connection) {
	for {
		b, err := c.reader.ReadByte()
		if err != nil {
			if wouldBlock(err) {
				c.ctx.Loop.ArmReadable(c)
				return
			}
			c.fail(newError(KindTransportDead, CloseNoStatus, "reading handshake response", err))
			return
		}

		res, perr := c.parser.feed(b)
		switch res {
		case parseError:
			var e *Error
			if errors.As(perr, &e) {
				c.fail(e)
			} else {
				c.fail(newError(KindParseError, CloseProtocolErr, "header parse", perr))
			}
			return
		case parseComplete:
			if hsErr := interpretHandshakeResponse(c); hsErr != nil {
				c.fail(hsErr)
			}
			return
		case parseContinue:
			// keep reading
		}
	}
}

func cancelTimeout(c *Connection) {
	c.deadline = time.Time{}
	c.ctx.Loop.SetTimeout(c, time.Time{})
}
