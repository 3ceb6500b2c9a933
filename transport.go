package nbws

import (
	"errors"
	"net"
)

// Transport is the byte-stream handle this core dials over: a plain socket
// or TLS session supporting non-blocking read/write. Plain net.Conn
// already satisfies it for the non-TLS case.
type Transport interface {
	net.Conn
}

// Connector is implemented by transports with a handshake of their own that
// must be driven incrementally from ISSUE_HANDSHAKE, TLS concretely. A
// transport without one (plain TCP) is treated by the state machine as
// already connected.
type Connector interface {
	// Connect advances the transport's own handshake by one step. A nil
	// error means the handshake finished; ErrWantRead and ErrWantWrite
	// are both soft: the state machine clears and re-arms writable
	// interest and retries on the next Service call; any other error is
	// fatal.
	Connect() error
}

// Soft errors a Connector may return instead of blocking, mirroring the
// want-read / want-write suspension points a non-blocking socket reports.
var (
	ErrWantRead  = errors.New("nbws: transport wants readable")
	ErrWantWrite = errors.New("nbws: transport wants writable")
)

// isSoftTLSError reports whether err is one of the two recoverable signals
// a Connector may return: on either, the caller should rearm writable
// interest and retry rather than treat the handshake as failed.
func isSoftTLSError(err error) bool {
	return errors.Is(err, ErrWantRead) || errors.Is(err, ErrWantWrite)
}
