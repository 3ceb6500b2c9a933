package nbws

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/coregx/nbws/frame"
)

// statusCodeToken extracts the numeric status-code field from a raw status
// line ("HTTP/1.1 101 Switching Protocols" -> "101"). The parser stores the
// line verbatim; pulling the code apart is the interpreter's job.
func statusCodeToken(line []byte) []byte {
	i := bytes.IndexByte(line, ' ')
	if i < 0 {
		return nil
	}
	rest := bytes.TrimLeft(line[i+1:], " ")
	if j := bytes.IndexByte(rest, ' '); j >= 0 {
		return rest[:j]
	}
	return rest
}

func statusIs101(line []byte) bool {
	code := statusCodeToken(line)
	return len(code) >= 3 && bytes.EqualFold(code[:3], []byte("101"))
}

// matchProtocol splits the server's value into strict comma-separated
// tokens, each whitespace-trimmed, rather than a substring scan anchored
// on a trailing delimiter, which could misfire against a
// whitespace-delimited list.
func matchProtocol(serverValue string, offered []string) (string, bool) {
	for _, tok := range strings.Split(serverValue, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		for _, o := range offered {
			if tok == o {
				return tok, true
			}
		}
	}
	return "", false
}

// negotiateProtocol binds c.selectedProtocol according to whether the
// server echoed a Sec-WebSocket-Protocol value. The no-header fast path
// binds the registry's default protocol directly; selectedProtocol is
// only ever assigned once the decision is final, by construction.
func negotiateProtocol(c *Connection) *Error {
	serverVal := strings.TrimSpace(string(c.parser.scratch.protocol))
	if serverVal == "" {
		c.selectedProtocol = c.ctx.defaultProtocol()
		return nil
	}

	name, ok := matchProtocol(serverVal, c.offeredProto)
	if !ok {
		return newError(KindUnknownProtocol, CloseProtocolErr,
			fmt.Sprintf("server selected protocol %q not offered", serverVal), nil)
	}
	proto := c.ctx.protocolByName(name)
	if proto == nil {
		return newError(KindUnknownProtocol, CloseProtocolErr,
			fmt.Sprintf("server selected protocol %q not registered", name), nil)
	}
	c.selectedProtocol = proto
	return nil
}

// negotiateExtensions constructs an activeExtension for every extension
// name the server echoed back. The loop over server-proposed names uses
// its own range variable; findExtension's internal scan over the registry
// uses a completely separate one, so the two never alias.
func negotiateExtensions(c *Connection) *Error {
	serverVal := strings.TrimSpace(string(c.parser.scratch.extensions))
	if serverVal == "" {
		return nil
	}

	for _, name := range splitExtensionNames(serverVal) {
		ext := findExtension(c.ctx.extensions, name)
		if ext == nil {
			return newError(KindUnknownExtension, CloseProtocolErr,
				fmt.Sprintf("server selected extension %q not registered", name), nil)
		}
		state, err := ext.ClientConstruct(c)
		if err != nil {
			return newError(KindAllocFailed, CloseProtocolErr,
				fmt.Sprintf("constructing extension %q", name), err)
		}
		c.activeExtensions = append(c.activeExtensions, activeExtension{ext: ext, state: state})
	}
	return nil
}

// interpretHandshakeResponse is invoked once the header parser reports
// complete. It runs the six ordered validation rules (first violation
// wins, the rest are skipped), then performs every post-validation action
// through to ESTABLISHED.
func interpretHandshakeResponse(c *Connection) *Error { //nolint:cyclop // one branch per ordered validation rule
	hs := &c.parser.scratch

	if !statusIs101(hs.status) {
		return newError(KindBadStatusLine, CloseProtocolErr, fmt.Sprintf("status line %q", hs.status), nil)
	}
	if !bytes.EqualFold(bytes.TrimSpace(hs.upgrade), []byte("websocket")) {
		return newError(KindBadUpgrade, CloseProtocolErr, fmt.Sprintf("Upgrade: %q", hs.upgrade), nil)
	}
	if !bytes.EqualFold(bytes.TrimSpace(hs.connection), []byte("upgrade")) {
		return newError(KindBadConnection, CloseProtocolErr, fmt.Sprintf("Connection: %q", hs.connection), nil)
	}
	if err := negotiateProtocol(c); err != nil {
		return err
	}
	if err := negotiateExtensions(c); err != nil {
		return err
	}
	if !acceptMatches(c.expectedAccept, string(hs.accept)) {
		return newError(KindBadAccept, CloseProtocolErr, fmt.Sprintf("Sec-WebSocket-Accept: %q", hs.accept), nil)
	}

	return commitEstablished(c)
}

// commitEstablished runs the post-validation actions in order: allocate
// per-session state, run the pre-establish filter, clear the handshake
// timeout and scratch state, hand the transport off to frame.Conn, and
// fire the established callbacks.
func commitEstablished(c *Connection) *Error {
	if c.selectedProtocol != nil && c.selectedProtocol.PerSessionDataLen > 0 {
		c.perSessionData = make([]byte, c.selectedProtocol.PerSessionDataLen)
	}

	if err := c.handlers.filterPreEstablish(c); err != nil {
		return newError(KindRejectedByFilter, CloseNoStatus, "rejected by pre-establish filter", err)
	}

	cancelTimeout(c)

	c.parser.scratch.reset()
	c.parser = nil

	c.setMode(ModeEstablished)

	bufSize := rxBufferSize(c.selectedProtocol)
	// NewReaderSize returns c.reader itself when it is already large
	// enough, and otherwise wraps it, so bytes it has already buffered
	// past the response headers are kept either way.
	c.reader = bufio.NewReaderSize(c.reader, bufSize)
	c.rx = frame.NewConn(c.transport, c.reader, bufio.NewWriter(c.transport), false)

	c.ctx.Metrics.recordEstablished(c.startedAt)
	c.handlers.established(c)

	for _, ext := range c.ctx.extensions {
		var state any
		for _, ae := range c.activeExtensions {
			if ae.ext == ext {
				state = ae.state
				break
			}
		}
		ext.AnyWsiEstablished(c, state)
	}

	if c.selectedProtocol != nil && c.selectedProtocol.Callback != nil {
		c.selectedProtocol.Callback(c)
	}

	return nil
}
