package nbws

// Handlers collects the optional callbacks a caller binds to one
// Connection (passed to NewConnection): one function field per
// collaborator callback the core consumes.
// Any left nil are treated as no-ops (or, for ConfirmExtensionSupported, as
// "allow").
type Handlers struct {
	// AppendHandshakeHeader is invoked once during request build
	// (CLIENT_APPEND_HANDSHAKE_HEADER) with the buffer built so far and the
	// number of bytes still safely writable (the remaining buffer minus a
	// safety tail reserved for the request terminator). It returns the
	// buffer with any additional header lines appended.
	AppendHandshakeHeader func(buf []byte, remaining int) []byte

	// ConfirmExtensionSupported implements CLIENT_CONFIRM_EXTENSION_SUPPORTED:
	// called once per candidate that survived the mutual OkToPropose veto.
	// Returning false drops it from the proposal.
	ConfirmExtensionSupported func(name string) bool

	// FilterPreEstablish implements CLIENT_FILTER_PRE_ESTABLISH: the last
	// chance to veto a connection after full validation but before commit.
	// Returning an error aborts the handshake with KindRejectedByFilter.
	FilterPreEstablish func(c *Connection) error

	// Established implements CLIENT_ESTABLISHED, delivered once the
	// connection commits to ESTABLISHED.
	Established func(c *Connection)

	// ConnectionError implements CLIENT_CONNECTION_ERROR, delivered on any
	// fatal handshake failure.
	ConnectionError func(c *Connection, err *Error)
}

func (h *Handlers) confirmExtension(name string) bool {
	if h == nil || h.ConfirmExtensionSupported == nil {
		return true
	}
	return h.ConfirmExtensionSupported(name)
}

func (h *Handlers) appendHeaders(buf []byte, remaining int) []byte {
	if h == nil || h.AppendHandshakeHeader == nil {
		return buf
	}
	return h.AppendHandshakeHeader(buf, remaining)
}

func (h *Handlers) filterPreEstablish(c *Connection) error {
	if h == nil || h.FilterPreEstablish == nil {
		return nil
	}
	return h.FilterPreEstablish(c)
}

func (h *Handlers) established(c *Connection) {
	if h == nil || h.Established == nil {
		return
	}
	h.Established(c)
}

func (h *Handlers) connectionError(c *Connection, err *Error) {
	if h == nil || h.ConnectionError == nil {
		return
	}
	h.ConnectionError(c, err)
}
