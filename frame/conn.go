package frame

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"net"
	"sync"
	"unicode/utf8"
)

// Conn is the post-handshake data plane for one WebSocket connection.
//
// The nbws package constructs a Conn at the moment its handshake state
// machine reaches ESTABLISHED and hands the bare transport to it; Conn never
// participates in the handshake itself. It provides high-level methods for
// reading and writing messages, automatically handling:
//   - Message fragmentation (reassembly of multi-frame messages)
//   - Control frames (Ping, Pong, Close)
//   - UTF-8 validation for text messages
//   - Thread-safe writes
//
// isServer is retained from the framing algorithm even though this module
// only ever dials as a client (isServer is always false in production); it
// lets tests stand a loopback peer up using the same codec instead of
// hand-rolling raw bytes twice.
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer

	isServer bool

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    bool
	closeMu   sync.RWMutex

	fragmentBuf  bytes.Buffer
	fragmentType byte
	inFragment   bool
}

// NewConn wraps an already-negotiated net.Conn in the RFC 6455 data plane.
// isServer selects which side of the masking contract this Conn enforces:
// a client Conn (isServer=false, the only role nbws's handshake core ever
// produces) masks its own writes and rejects masked reads from the peer.
func NewConn(netConn net.Conn, reader *bufio.Reader, writer *bufio.Writer, isServer bool) *Conn {
	return &Conn{
		conn:     netConn,
		reader:   reader,
		writer:   writer,
		isServer: isServer,
	}
}

// Read reads the next complete message from the connection.
//
// RFC 6455 Section 5.4: "A fragmented message consists of a single frame with
// the FIN bit clear and an opcode other than 0, followed by zero or more frames
// with the FIN bit clear and the opcode set to 0, and terminated by a single
// frame with the FIN bit set and an opcode of 0."
func (c *Conn) Read() (MessageType, []byte, error) {
	c.closeMu.RLock()
	if c.closed {
		c.closeMu.RUnlock()
		return 0, nil, ErrClosed
	}
	c.closeMu.RUnlock()

	for {
		f, err := readFrame(c.reader, c.isServer)
		if err != nil {
			return 0, nil, err
		}

		switch f.opcode {
		case opcodePing:
			if err := c.Pong(f.payload); err != nil {
				return 0, nil, err
			}
			continue

		case opcodePong:
			continue

		case opcodeClose:
			c.handleCloseFrame(f.payload)
			return 0, nil, ErrClosed
		}

		switch f.opcode {
		case opcodeText, opcodeBinary:
			if f.fin {
				msgType := MessageType(f.opcode)
				if msgType == TextMessage && !utf8.Valid(f.payload) {
					_ = c.CloseWithCode(CloseInvalidFramePayloadData, "invalid UTF-8")
					return 0, nil, ErrInvalidUTF8
				}
				return msgType, f.payload, nil
			}

			c.inFragment = true
			c.fragmentType = f.opcode
			c.fragmentBuf.Reset()
			c.fragmentBuf.Write(f.payload)

		case opcodeContinuation:
			if !c.inFragment {
				_ = c.CloseWithCode(CloseProtocolError, "unexpected continuation")
				return 0, nil, ErrUnexpectedContinuation
			}

			c.fragmentBuf.Write(f.payload)

			if f.fin {
				c.inFragment = false
				msgType := MessageType(c.fragmentType)
				payload := c.fragmentBuf.Bytes()

				if msgType == TextMessage && !utf8.Valid(payload) {
					_ = c.CloseWithCode(CloseInvalidFramePayloadData, "invalid UTF-8")
					return 0, nil, ErrInvalidUTF8
				}

				result := make([]byte, len(payload))
				copy(result, payload)
				return msgType, result, nil
			}
		}
	}
}

// ReadText reads the next text message, failing with ErrInvalidMessageType
// if the message was binary.
func (c *Conn) ReadText() (string, error) {
	msgType, data, err := c.Read()
	if err != nil {
		return "", err
	}
	if msgType != TextMessage {
		return "", ErrInvalidMessageType
	}
	return string(data), nil
}

// Write writes a single, unfragmented message.
//
// Masking: a client Conn (the only role nbws dials as) masks every frame
// with a fresh random key per RFC 6455 Section 5.3; a server-role Conn
// never masks.
func (c *Conn) Write(messageType MessageType, data []byte) error {
	c.closeMu.RLock()
	if c.closed {
		c.closeMu.RUnlock()
		return ErrClosed
	}
	c.closeMu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var opcode byte
	switch messageType {
	case TextMessage:
		opcode = opcodeText
		if !utf8.Valid(data) {
			return ErrInvalidUTF8
		}
	case BinaryMessage:
		opcode = opcodeBinary
	default:
		return ErrInvalidMessageType
	}

	f := &frame{fin: true, opcode: opcode, payload: data}
	c.maskIfClient(f)
	return writeFrame(c.writer, f)
}

// WriteText writes a text message.
func (c *Conn) WriteText(text string) error {
	return c.Write(TextMessage, []byte(text))
}

// Ping sends a ping frame. Application data is optional (max 125 bytes).
func (c *Conn) Ping(data []byte) error {
	return c.writeControl(opcodePing, data)
}

// Pong sends a pong frame. Read automatically responds to Ping frames, so
// manual Pong is rarely needed.
func (c *Conn) Pong(data []byte) error {
	return c.writeControl(opcodePong, data)
}

func (c *Conn) writeControl(opcode byte, data []byte) error {
	c.closeMu.RLock()
	if c.closed {
		c.closeMu.RUnlock()
		return ErrClosed
	}
	c.closeMu.RUnlock()

	if len(data) > maxControlPayload {
		return ErrControlTooLarge
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	f := &frame{fin: true, opcode: opcode, payload: data}
	c.maskIfClient(f)
	return writeFrame(c.writer, f)
}

// Close sends a close frame with CloseNormalClosure and closes the
// underlying transport. Idempotent.
func (c *Conn) Close() error {
	return c.CloseWithCode(CloseNormalClosure, "")
}

// CloseWithCode sends a close frame carrying code and reason, then closes
// the underlying transport. Idempotent.
func (c *Conn) CloseWithCode(code CloseCode, reason string) error {
	var err error

	c.closeOnce.Do(func() {
		c.closeMu.Lock()
		c.closed = true
		c.closeMu.Unlock()

		if reason != "" && !utf8.ValidString(reason) {
			err = ErrInvalidUTF8
			return
		}

		payload := make([]byte, 2+len(reason))
		payload[0] = byte(code >> 8)
		payload[1] = byte(code & 0xFF)
		copy(payload[2:], reason)

		c.writeMu.Lock()
		f := &frame{fin: true, opcode: opcodeClose, payload: payload}
		c.maskIfClient(f)
		writeErr := writeFrame(c.writer, f)
		c.writeMu.Unlock()

		if writeErr != nil {
			err = writeErr
			return
		}

		if c.conn != nil {
			err = c.conn.Close()
		}
	})

	return err
}

// handleCloseFrame processes a close frame received from the peer,
// RFC 6455 Section 5.5.1: echo the status code back and tear down. A close
// frame without a status code is answered with CloseNormalClosure, since
// CloseNoStatusReceived must not be sent on the wire.
func (c *Conn) handleCloseFrame(payload []byte) {
	c.closeMu.Lock()
	c.closed = true
	c.closeMu.Unlock()

	var code CloseCode
	if len(payload) >= 2 {
		code = CloseCode(uint16(payload[0])<<8 | uint16(payload[1]))
	} else {
		code = CloseNormalClosure
	}

	_ = c.CloseWithCode(code, "")
}

// maskIfClient sets f.masked and draws a fresh random mask key when this
// Conn plays the client role. A fixed or predictable mask defeats the
// purpose RFC 6455 Section 10.3 describes (hiding WebSocket traffic from
// naive byte-pattern-matching intermediaries), so the key is drawn from
// crypto/rand per frame, never reused.
func (c *Conn) maskIfClient(f *frame) {
	if c.isServer {
		return
	}
	f.masked = true
	_, _ = rand.Read(f.mask[:])
}
