package nbws

import (
	"crypto/tls"
	"time"

	"github.com/sirupsen/logrus"
)

// EventLoopAdapter is the minimal interface this core asks of whatever
// multiplexer drives it: arm/clear interest on one connection's
// transport, and set its per-mode deadline. poller.Epoll and poller.Loop
// are the two shipped implementations; any multiplexer can fulfill it.
type EventLoopAdapter interface {
	ArmReadable(c *Connection)
	ArmWritable(c *Connection)
	ClearWritable(c *Connection)
	SetTimeout(c *Connection, deadline time.Time)
}

// Context holds the protocol and extension registries, the shared TLS
// configuration, and bookkeeping shared by every connection dispatched on
// one event-loop thread. A Context is created once at startup and must
// only be touched from the goroutine that owns its event loop.
type Context struct {
	protocols  []ProtocolHandler
	extensions []Extension

	TLSConfig *tls.Config
	Random    RandomSource
	Loop      EventLoopAdapter
	Metrics   *Metrics
	Logger    *logrus.Logger

	// scratch is a 4 KiB buffer allocated by NewContext. Nothing in this
	// package reads or writes it: buildClientRequest builds each request
	// in a buffer of its own.
	scratch []byte

	conns connRegistry
}

// NewContext builds a Context ready to dial connections. protocols must be
// non-empty for a Connection to get the default binding to the first
// registered protocol when the server's response omits
// Sec-WebSocket-Protocol.
func NewContext(protocols []ProtocolHandler, extensions []Extension) *Context {
	ctx := &Context{
		protocols:  protocols,
		extensions: extensions,
		TLSConfig:  &tls.Config{MinVersion: tls.VersionTLS12}, //nolint:gosec // overridden per-connection by TLSMode
		Random:     DefaultRandomSource,
		Metrics:    NewMetrics(),
		Logger:     logrus.StandardLogger(),
		scratch:    make([]byte, 0, 4096),
		conns:      newConnRegistry(),
	}
	return ctx
}

// protocolByName returns the registered handler with the given name, or
// nil. Used by the interpreter's round-trip-offer/accept check.
func (ctx *Context) protocolByName(name string) *ProtocolHandler {
	for i := range ctx.protocols {
		if ctx.protocols[i].Name == name {
			return &ctx.protocols[i]
		}
	}
	return nil
}

// LiveConnections returns the number of connections currently registered
// on this Context, for diagnostics and tests.
func (ctx *Context) LiveConnections() int {
	return ctx.conns.len()
}

// defaultProtocol is the first locally registered protocol, the fallback
// binding used when the server omits Sec-WebSocket-Protocol.
func (ctx *Context) defaultProtocol() *ProtocolHandler {
	if len(ctx.protocols) == 0 {
		return nil
	}
	return &ctx.protocols[0]
}
