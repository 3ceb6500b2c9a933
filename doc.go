// Package nbws implements the client-side RFC 6455 WebSocket handshake as a
// non-blocking state machine driven by readiness events from an external
// event loop (see the poller subpackage for two concrete adapters).
//
// The package deliberately stops at the handshake: once a Connection
// reaches Established, nbws hands the bare transport to a *frame.Conn from
// the sibling frame package and steps out of the way. DNS resolution, TCP
// connect, and the TLS certificate store are collaborators a caller injects,
// not things this package does itself.
package nbws
