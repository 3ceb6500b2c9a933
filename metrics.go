package nbws

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors a production deployment of this
// handshake core wants: counts of handshake failures by Kind, a latency
// histogram for completed handshakes, and a running count of established
// connections.
//
// Each Metrics owns a private prometheus.Registry rather than registering
// into the global default one, so that building multiple Contexts (as the
// test suite does) never panics on duplicate registration. Callers that
// want these exposed over HTTP register Registry with their own handler.
type Metrics struct {
	Registry *prometheus.Registry

	handshakeFailures *prometheus.CounterVec
	handshakeDuration prometheus.Histogram
	established       prometheus.Counter
}

// NewMetrics constructs and registers a fresh collector set.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		handshakeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nbws",
			Name:      "handshake_failures_total",
			Help:      "Count of fatal handshake failures by error kind.",
		}, []string{"kind"}),
		handshakeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nbws",
			Name:      "handshake_duration_seconds",
			Help:      "Wall-clock time from connection construction to ESTABLISHED.",
			Buckets:   prometheus.DefBuckets,
		}),
		established: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nbws",
			Name:      "handshakes_established_total",
			Help:      "Count of connections that reached ESTABLISHED.",
		}),
	}

	reg.MustRegister(m.handshakeFailures, m.handshakeDuration, m.established)
	return m
}

func (m *Metrics) recordFailure(kind Kind) {
	if m == nil {
		return
	}
	m.handshakeFailures.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) recordEstablished(started time.Time) {
	if m == nil {
		return
	}
	m.established.Inc()
	m.handshakeDuration.Observe(time.Since(started).Seconds())
}
