package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "lobby"

// Remote call outcomes recorded by RemoteCalls.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// UnsupportedFunction is the function label used for names that resolve to no
// registered call, so client input cannot grow label cardinality.
const UnsupportedFunction = "unsupported"

// Metrics holds the Prometheus collectors exported by the lobby server.
type Metrics struct {
	// RemoteCalls counts dispatched remote calls by function and result.
	RemoteCalls *prometheus.CounterVec
	// CallDuration observes dispatch latency in milliseconds by function.
	CallDuration *prometheus.HistogramVec
	// Games is the number of registered games.
	Games prometheus.Gauge
	// Clients is the number of connected websocket clients across all games.
	Clients prometheus.Gauge
}

// NewMetrics creates the lobby collectors and registers them with reg.
//
// Precondition: reg must be non-nil and must not already hold these collectors.
// Postcondition: Returns Metrics whose collectors are all registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RemoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "remote_calls_total",
			Help:      "remote function calls dispatched to session managers",
		}, []string{"function", "result"}),
		CallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "remote_call_duration_ms",
			Help:      "remote function call dispatch latency in milliseconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"function"}),
		Games: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "games",
			Help:      "number of registered games",
		}),
		Clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connected_clients",
			Help:      "number of connected websocket clients",
		}),
	}
	reg.MustRegister(m.RemoteCalls, m.CallDuration, m.Games, m.Clients)
	return m
}

// ObserveCall records one dispatched call. function should already be mapped to
// UnsupportedFunction when it names no registered call.
func (m *Metrics) ObserveCall(function string, failed bool, elapsed time.Duration) {
	result := ResultOK
	if failed {
		result = ResultError
	}
	m.RemoteCalls.WithLabelValues(function, result).Inc()
	m.CallDuration.WithLabelValues(function).Observe(float64(elapsed) / float64(time.Millisecond))
}
