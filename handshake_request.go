package nbws

import (
	"fmt"
	"strings"
)

// handshakeSafetyTail is the headroom subtracted from the remaining
// capacity reported to AppendHandshakeHeader. The reported figure is
// advisory: the callback's returned buffer is used as is, not truncated.
const handshakeSafetyTail = 12

// buildClientRequest writes the Upgrade request in RFC 6455's field order,
// computes and stores the connection's expected Sec-WebSocket-Accept as a
// side effect, and returns the request bytes ready for a single write.
// extNames is the already-negotiated extension proposal from
// proposeExtensions.
func buildClientRequest(c *Connection, extNames []string) ([]byte, error) {
	key, err := generateKey(c.ctx.Random)
	if err != nil {
		return nil, err
	}
	c.key = key
	c.expectedAccept = computeExpectedAccept(key)
	c.proposedExts = extNames

	version := c.target.version()

	buf := make([]byte, 0, 512)
	buf = append(buf, "GET "...)
	buf = append(buf, c.target.Path...)
	buf = append(buf, " HTTP/1.1\r\n"...)
	buf = append(buf, "Pragma: no-cache\r\nCache-Control: no-cache\r\n"...)
	buf = append(buf, "Host: "...)
	buf = append(buf, hostHeaderValue(c.target, c.useTLS != TLSOff)...)
	buf = append(buf, "\r\n"...)
	buf = append(buf, "Upgrade: websocket\r\nConnection: Upgrade\r\n"...)
	buf = append(buf, "Sec-WebSocket-Key: "...)
	buf = append(buf, key...)
	buf = append(buf, "\r\n"...)

	if c.target.Origin != "" {
		if version == 13 {
			buf = append(buf, "Origin: "...)
		} else {
			buf = append(buf, "Sec-WebSocket-Origin: "...)
		}
		buf = append(buf, c.target.Origin...)
		buf = append(buf, "\r\n"...)
	}

	if len(c.offeredProto) > 0 {
		buf = append(buf, "Sec-WebSocket-Protocol: "...)
		buf = append(buf, strings.Join(c.offeredProto, ", ")...)
		buf = append(buf, "\r\n"...)
	}

	buf = append(buf, "Sec-WebSocket-Extensions: "...)
	buf = append(buf, strings.Join(extNames, ", ")...)
	buf = append(buf, "\r\n"...)

	buf = append(buf, fmt.Sprintf("Sec-WebSocket-Version: %d\r\n", version)...)

	remaining := cap(buf) - len(buf) - handshakeSafetyTail
	if remaining < 0 {
		remaining = 0
	}
	buf = c.handlers.appendHeaders(buf, remaining)

	buf = append(buf, "\r\n"...)
	return buf, nil
}

// hostHeaderValue omits the port when it's the scheme's default, the way
// every well-behaved HTTP client does.
func hostHeaderValue(t Target, tlsOn bool) string {
	defaultPort := 80
	if tlsOn {
		defaultPort = 443
	}
	if t.Port == 0 || t.Port == defaultPort {
		return t.Host
	}
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}
