package nbws

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// connLogger builds the per-connection logrus.Entry a Connection carries
// for its whole lifetime. The correlation id is a uuid.UUID used purely
// for tying log lines and metric samples to one connection. It never
// appears on the wire.
func connLogger(base *logrus.Logger, id uuid.UUID, target Target) *logrus.Entry {
	if base == nil {
		base = logrus.StandardLogger()
	}
	return base.WithFields(logrus.Fields{
		"conn_id": id.String(),
		"host":    target.Host,
		"port":    target.Port,
		"path":    target.Path,
	})
}

// logModeTransition emits a debug line at every forward Mode transition,
// and is a no-op when the connection carries no logger.
func logModeTransition(c *Connection, from, to Mode) {
	if c.log == nil {
		return
	}
	c.log.WithFields(logrus.Fields{"from": from, "to": to}).Debug("mode transition")
}

// logFailure emits a warning line with the Kind that killed the
// connection, and increments the matching Prometheus counter.
func logFailure(c *Connection, err *Error) {
	if c.ctx != nil {
		c.ctx.Metrics.recordFailure(err.Kind)
	}
	if c.log == nil {
		return
	}
	c.log.WithFields(logrus.Fields{"kind": err.Kind, "reason": err.Reason}).WithError(err.Err).Warn("handshake failed")
}
