package nbws

import (
	"bufio"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/coregx/nbws/frame"
)

// Mode is the coarse state of a connection during handshake. Transitions
// are monotonic within a successful handshake: there are no back-edges.
type Mode int

const (
	ModeWaitingProxyReply Mode = iota
	ModeIssueHandshake
	ModeWaitingServerReply
	ModeWaitingExtensionConnect
	ModeEstablished
)

func (m Mode) String() string {
	switch m {
	case ModeWaitingProxyReply:
		return "WAITING_PROXY_REPLY"
	case ModeIssueHandshake:
		return "ISSUE_HANDSHAKE"
	case ModeWaitingServerReply:
		return "WAITING_SERVER_REPLY"
	case ModeWaitingExtensionConnect:
		return "WAITING_EXTENSION_CONNECT"
	case ModeEstablished:
		return "ESTABLISHED"
	default:
		return "UNKNOWN"
	}
}

// TLSMode selects whether and how strictly a connection verifies its
// peer: off, on with verification, or on but permissive of a self-signed
// or otherwise unverifiable certificate.
type TLSMode int

const (
	TLSOff TLSMode = iota
	TLSOnVerified
	TLSOnPermissive
)

// Target names what a Connection dials: host/port/path plus the optional
// origin and protocol revision that shape the request the generator
// builds.
type Target struct {
	Host    string
	Port    int
	Path    string
	Origin  string
	Version int // RFC revision; 0 defaults to 13.

	// ProxyAddr, if set, makes the state machine start in
	// WAITING_PROXY_REPLY and check the proxy's CONNECT reply on the
	// transport before ISSUE_HANDSHAKE. This package neither dials
	// ProxyAddr nor sends the CONNECT request; it only reads the reply.
	ProxyAddr string
}

func (t Target) version() int {
	if t.Version == 0 {
		return 13
	}
	return t.Version
}

// proxyReplyPrefix is the literal 13-byte prefix a successful CONNECT
// reply must carry.
const proxyReplyPrefix = "HTTP/1.0 200 "

// Connection is one logical client WebSocket connection, exclusively owned
// by its state machine for the duration of the handshake.
type Connection struct {
	ctx      *Context
	handlers *Handlers

	transport Transport
	reader    *bufio.Reader

	mode     Mode
	useTLS   TLSMode
	target   Target
	deadline time.Time

	id  uuid.UUID
	log *logrus.Entry

	key            string
	expectedAccept [acceptLen]byte
	offeredProto   []string
	proposedExts   []string

	parser *headerParser

	proxyBuf []byte // accumulates bytes until proxyReplyPrefix can be checked

	selectedProtocol *ProtocolHandler
	perSessionData   []byte
	activeExtensions []activeExtension

	startedAt time.Time

	// rx is installed only at ESTABLISHED. Once non-nil, the handshake
	// fields above are no longer touched.
	rx *frame.Conn
}

// NewConnection builds a Connection ready to be driven by Service. The
// caller has already established transport (a raw TCP socket, or a
// transport.TLS wrapping one) and is responsible for registering it with
// ctx.Loop before the first Service call.
func NewConnection(ctx *Context, transport Transport, target Target, useTLS TLSMode, offeredProtocols []string, handlers *Handlers) *Connection {
	id := uuid.New()
	c := &Connection{
		ctx:          ctx,
		handlers:     handlers,
		transport:    transport,
		reader:       bufio.NewReader(transport),
		useTLS:       useTLS,
		target:       target,
		offeredProto: offeredProtocols,
		id:           id,
		log:          connLogger(ctx.Logger, id, target),
		startedAt:    time.Now(),
	}
	if target.ProxyAddr != "" {
		c.setMode(ModeWaitingProxyReply)
	} else {
		c.setMode(ModeIssueHandshake)
	}
	ctx.conns.add(c)
	return c
}

func (c *Connection) setMode(to Mode) {
	from := c.mode
	c.mode = to
	logModeTransition(c, from, to)
}

// ID returns the connection's log/metric correlation id. Never appears on
// the wire.
func (c *Connection) ID() uuid.UUID { return c.id }

// Mode returns the connection's current coarse state.
func (c *Connection) Mode() Mode { return c.mode }

// SelectedProtocol returns the negotiated sub-protocol handler, or nil
// before ESTABLISHED or when none was negotiated.
func (c *Connection) SelectedProtocol() *ProtocolHandler { return c.selectedProtocol }

// Data returns the post-handshake frame.Conn. Nil until ESTABLISHED.
func (c *Connection) Data() *frame.Conn { return c.rx }

// Transport exposes the underlying byte-stream handle so an
// EventLoopAdapter can extract a raw fd (for epoll) or otherwise drive
// readiness for this connection.
func (c *Connection) Transport() Transport { return c.transport }

// Deadline returns the connection's current per-mode deadline, the zero
// Time if none is set.
func (c *Connection) Deadline() time.Time { return c.deadline }

// SetDeadline is called by an EventLoopAdapter's SetTimeout implementation
// to record the deadline it just armed, so Deadline stays accurate for
// diagnostics.
func (c *Connection) SetDeadline(t time.Time) { c.deadline = t }

// fail tears the connection down on any fatal path: closes the transport,
// releases owned buffers, logs/counts the failure, and delivers
// ConnectionError if bound.
func (c *Connection) fail(err *Error) {
	logFailure(c, err)
	c.release()
	_ = c.transport.Close()
	c.ctx.conns.remove(c)
	c.handlers.connectionError(c, err)
}

// release drops every owned buffer exactly once, safe to call on any
// failure path regardless of which ones were populated.
func (c *Connection) release() {
	c.offeredProto = nil
	c.proposedExts = nil
	c.proxyBuf = nil
	c.perSessionData = nil
	c.activeExtensions = nil
	if c.parser != nil {
		c.parser.scratch.reset()
		c.parser = nil
	}
}

// Close closes the underlying transport. Safe to call after ESTABLISHED
// (closes the data plane) or mid-handshake.
func (c *Connection) Close() error {
	if c.rx != nil {
		return c.rx.Close()
	}
	return c.transport.Close()
}
