package nbws

import "bytes"

// headerToken identifies one of the small, fixed set of header slots the
// parser recognizes. HTTP refers to the status line itself, stored as one
// opaque token rather than parsed on the fly: validation of its contents
// is the handshake interpreter's job, not the parser's.
type headerToken int

const (
	tokHTTP headerToken = iota
	tokUpgrade
	tokConnection
	tokAccept
	tokNonce
	tokProtocol
	tokExtensions
	tokUnknown
)

// headerScratch maps the fixed set of header tokens to owned byte strings.
// A handful of named slices is simpler than a flat array indexed by token,
// and just as correct given how few tokens there are.
type headerScratch struct {
	status     []byte
	upgrade    []byte
	connection []byte
	accept     []byte
	nonce      []byte
	protocol   []byte
	extensions []byte
}

func (hs *headerScratch) slot(tok headerToken) *[]byte {
	switch tok {
	case tokHTTP:
		return &hs.status
	case tokUpgrade:
		return &hs.upgrade
	case tokConnection:
		return &hs.connection
	case tokAccept:
		return &hs.accept
	case tokNonce:
		return &hs.nonce
	case tokProtocol:
		return &hs.protocol
	case tokExtensions:
		return &hs.extensions
	default:
		return nil
	}
}

// reset clears every slot, releasing the parser's header-scratch storage
// on the success path and on every failure path alike.
func (hs *headerScratch) reset() {
	*hs = headerScratch{}
}

func classifyHeaderName(name []byte) headerToken {
	switch {
	case bytes.EqualFold(name, []byte("upgrade")):
		return tokUpgrade
	case bytes.EqualFold(name, []byte("connection")):
		return tokConnection
	case bytes.EqualFold(name, []byte("sec-websocket-accept")):
		return tokAccept
	case bytes.EqualFold(name, []byte("sec-websocket-nonce")):
		return tokNonce
	case bytes.EqualFold(name, []byte("sec-websocket-protocol")):
		return tokProtocol
	case bytes.EqualFold(name, []byte("sec-websocket-extensions")):
		return tokExtensions
	default:
		return tokUnknown
	}
}

// Per-parser limits. These bound memory on a hostile or buggy peer; they
// are implementation limits, not part of RFC 6455.
const (
	maxStatusLineLen  = 256
	maxHeaderNameLen  = 64
	maxHeaderValueLen = 4096
	maxHeaderLines    = 64
)

type parseResult int

const (
	parseContinue parseResult = iota
	parseComplete
	parseError
)

// pstate is the parser's finite machine:
// NAME_PART -> NAME_SKIPPING_WS -> ARGUMENT -> NAME_PART ... -> COMPLETE,
// with a SKIPPING_SAW_CR sub-state entered any time a CR is consumed and
// an LF is awaited before resuming whatever state follows it.
type pstate int

const (
	pStatusLine pstate = iota
	pNamePart
	pNameSkippingWS
	pArgument
	pSkippingSawCR
	pDone
)

// headerParser is fed one byte at a time via feed. It never reads ahead:
// the moment it reports parseComplete, not one more byte has been fed to
// it than the terminating "\r\n\r\n" required.
// This matters because the server may have coalesced the handshake
// response with the first WebSocket frame in the same read.
type headerParser struct {
	state   pstate
	after   pstate // state to resume once SKIPPING_SAW_CR sees its LF
	curTok  headerToken
	curName []byte
	curVal  []byte
	lines   int
	scratch headerScratch
}

func newHeaderParser() *headerParser {
	return &headerParser{state: pStatusLine}
}

// feed consumes one byte and advances the FSM. Once it returns
// parseComplete or parseError the parser must not be fed again.
//
//nolint:cyclop // one branch per FSM transition
func (p *headerParser) feed(b byte) (parseResult, error) {
	switch p.state {
	case pStatusLine:
		if b == '\r' {
			p.state = pSkippingSawCR
			p.after = pNamePart
			return parseContinue, nil
		}
		if len(p.scratch.status) >= maxStatusLineLen {
			p.state = pDone
			return parseError, newError(KindParseError, CloseProtocolErr, "status line too long", ErrMalformedStatusLine)
		}
		p.scratch.status = append(p.scratch.status, b)
		return parseContinue, nil

	case pNamePart:
		if b == '\r' {
			// Blank line: end of headers.
			p.state = pSkippingSawCR
			p.after = pDone
			return parseContinue, nil
		}
		if b == ':' {
			p.curTok = classifyHeaderName(p.curName)
			p.curName = nil
			p.state = pNameSkippingWS
			return parseContinue, nil
		}
		if len(p.curName) >= maxHeaderNameLen {
			p.state = pDone
			return parseError, newError(KindParseError, CloseProtocolErr, "header name too long", ErrHeaderValueOverflow)
		}
		p.curName = append(p.curName, b)
		return parseContinue, nil

	case pNameSkippingWS:
		if b == ' ' || b == '\t' {
			return parseContinue, nil
		}
		p.state = pArgument
		return p.feed(b) // re-dispatch the first non-whitespace byte as ARGUMENT

	case pArgument:
		if b == '\r' {
			if slot := p.scratch.slot(p.curTok); slot != nil {
				*slot = append(*slot, p.curVal...)
			}
			p.curVal = nil
			p.lines++
			if p.lines > maxHeaderLines {
				p.state = pDone
				return parseError, newError(KindParseError, CloseProtocolErr, "too many header lines", ErrHeaderTableOverflow)
			}
			p.state = pSkippingSawCR
			p.after = pNamePart
			return parseContinue, nil
		}
		if len(p.curVal) >= maxHeaderValueLen {
			p.state = pDone
			return parseError, newError(KindParseError, CloseProtocolErr, "header value too long", ErrHeaderValueOverflow)
		}
		p.curVal = append(p.curVal, b)
		return parseContinue, nil

	case pSkippingSawCR:
		if b != '\n' {
			p.state = pDone
			return parseError, newError(KindParseError, CloseProtocolErr, "expected LF after CR", ErrMalformedStatusLine)
		}
		p.state = p.after
		if p.state == pDone {
			return parseComplete, nil
		}
		return parseContinue, nil

	default: // pDone
		return parseError, newError(KindParseError, CloseProtocolErr, "parser fed after completion", nil)
	}
}
