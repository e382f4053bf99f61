// Package metrics provides Prometheus metrics for echoping.
package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

const (
	namespace = "echoping"
)

// Metrics contains all Prometheus metrics for echo sessions.
//
// Record methods are safe to call on a nil *Metrics.
type Metrics struct {
	// Session metrics
	SessionsStarted *prometheus.CounterVec
	SessionAborts   *prometheus.CounterVec

	// Echo metrics
	EchoRequestsSent    prometheus.Counter
	EchoRepliesReceived prometheus.Counter
	BytesSent           prometheus.Counter
	BytesReceived       prometheus.Counter
	DecodeFailures      *prometheus.CounterVec
	EchoRTT             prometheus.Histogram
}

// NewMetricsWithRegistry creates a Metrics instance registered on reg. Each
// session run owns its registry, so collectors never leak between runs.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		SessionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total echo sessions started by address family",
		}, []string{"family"}),
		SessionAborts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_aborts_total",
			Help:      "Total echo sessions aborted by failing stage",
		}, []string{"stage"}),

		EchoRequestsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "echo_requests_sent_total",
			Help:      "Total ICMP echo requests sent",
		}),
		EchoRepliesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "echo_replies_received_total",
			Help:      "Total datagrams received in reply to echo requests",
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total ICMP bytes sent",
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total bytes received, including IP headers",
		}),
		DecodeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Total received datagrams that could not be decoded, by reason",
		}, []string{"reason"}),
		EchoRTT: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "echo_rtt_seconds",
			Help:      "Histogram of echo round-trip time",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
	}

	return m
}

// RecordSessionStart records a session starting for an address family.
func (m *Metrics) RecordSessionStart(family string) {
	if m == nil {
		return
	}
	m.SessionsStarted.WithLabelValues(family).Inc()
}

// RecordSessionAbort records a session aborted at stage.
func (m *Metrics) RecordSessionAbort(stage string) {
	if m == nil {
		return
	}
	m.SessionAborts.WithLabelValues(stage).Inc()
}

// RecordEchoSent records an echo request of the given size.
func (m *Metrics) RecordEchoSent(bytes int) {
	if m == nil {
		return
	}
	m.EchoRequestsSent.Inc()
	m.BytesSent.Add(float64(bytes))
}

// RecordEchoReceived records a received datagram and its round-trip time.
func (m *Metrics) RecordEchoReceived(bytes int, rttSeconds float64) {
	if m == nil {
		return
	}
	m.EchoRepliesReceived.Inc()
	m.BytesReceived.Add(float64(bytes))
	m.EchoRTT.Observe(rttSeconds)
}

// RecordDecodeFailure records a datagram that failed to decode.
func (m *Metrics) RecordDecodeFailure(reason string) {
	if m == nil {
		return
	}
	m.DecodeFailures.WithLabelValues(reason).Inc()
}

// WriteText writes every metric gathered from g to w in the Prometheus text
// exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
