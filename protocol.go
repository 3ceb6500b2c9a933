package nbws

// ProtocolHandler is one entry in a Context's sub-protocol registry.
//
// Name is matched, byte for byte, against the comma-separated tokens the
// client offered in Sec-WebSocket-Protocol and whatever single token (if
// any) the server echoes back. Callback is invoked once negotiation selects
// this handler as ANY_WSI_ESTABLISHED fires. PerSessionDataLen and
// RxBufferSize size the allocations the interpreter makes on the success
// path: per-protocol user state, and a receive buffer sized to at least
// the library default.
type ProtocolHandler struct {
	Name              string
	Callback          func(c *Connection)
	PerSessionDataLen int
	RxBufferSize      int
}

// defaultRxBufferSize is used when the selected protocol does not request
// anything larger.
const defaultRxBufferSize = 4096

// rxBufferSize returns the larger of the protocol's declared size and the
// library default.
func rxBufferSize(p *ProtocolHandler) int {
	if p != nil && p.RxBufferSize > defaultRxBufferSize {
		return p.RxBufferSize
	}
	return defaultRxBufferSize
}
