package xrplclient

import "github.com/prometheus/client_golang/prometheus"

// clientMetrics exposes the Health Aggregator's samples and the Connection
// Supervisor's lifecycle counters as Prometheus metrics for an embedding
// process's /metrics endpoint. A nil *clientMetrics is valid and every
// method on it is a no-op, so components never have to nil-check before
// recording.
type clientMetrics struct {
	connectAttempts  prometheus.Counter
	reconnects       prometheus.Counter
	nodeSwitches     prometheus.Counter
	rounds           prometheus.Counter
	callsSent        prometheus.Counter
	callsTimedOut    prometheus.Counter
	framesDropped    prometheus.Counter
	latencyMs        prometheus.Gauge
	feeDrops         prometheus.Gauge
	validatedLedgers prometheus.Gauge
}

func newClientMetrics(r *prometheus.Registry) *clientMetrics {
	m := &clientMetrics{
		connectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xrplclient",
			Name:      "connect_attempts",
			Help:      "number of connect attempts made against any endpoint",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xrplclient",
			Name:      "reconnects",
			Help:      "number of reconnects scheduled after the transport closed or failed to open",
		}),
		nodeSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xrplclient",
			Name:      "node_switches",
			Help:      "number of times the endpoint cursor advanced after exhausting attempts",
		}),
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xrplclient",
			Name:      "rounds",
			Help:      "number of times the endpoint cursor wrapped back to the first endpoint",
		}),
		callsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xrplclient",
			Name:      "calls_sent",
			Help:      "number of calls transmitted on the wire",
		}),
		callsTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xrplclient",
			Name:      "calls_timed_out",
			Help:      "number of calls rejected by the timeout controller",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xrplclient",
			Name:      "frames_dropped",
			Help:      "number of inbound frames dropped for failing to parse as JSON",
		}),
		latencyMs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "xrplclient",
			Name:      "latency_ms",
			Help:      "most recent server_info probe round-trip latency in milliseconds",
		}),
		feeDrops: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "xrplclient",
			Name:      "fee_drops",
			Help:      "most recent cushioned open-ledger fee sample in drops",
		}),
		validatedLedgers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "xrplclient",
			Name:      "validated_ledger_last",
			Help:      "index of the most recently validated ledger",
		}),
	}
	if r != nil {
		r.MustRegister(
			m.connectAttempts, m.reconnects, m.nodeSwitches, m.rounds,
			m.callsSent, m.callsTimedOut, m.framesDropped,
			m.latencyMs, m.feeDrops, m.validatedLedgers,
		)
	}
	return m
}

func (m *clientMetrics) incConnectAttempts() {
	if m == nil {
		return
	}
	m.connectAttempts.Inc()
}

func (m *clientMetrics) incReconnects() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *clientMetrics) incNodeSwitches() {
	if m == nil {
		return
	}
	m.nodeSwitches.Inc()
}

func (m *clientMetrics) incRounds() {
	if m == nil {
		return
	}
	m.rounds.Inc()
}

func (m *clientMetrics) incCallsSent() {
	if m == nil {
		return
	}
	m.callsSent.Inc()
}

func (m *clientMetrics) incCallsTimedOut() {
	if m == nil {
		return
	}
	m.callsTimedOut.Inc()
}

func (m *clientMetrics) incFramesDropped() {
	if m == nil {
		return
	}
	m.framesDropped.Inc()
}

func (m *clientMetrics) setLatencyMs(v float64) {
	if m == nil {
		return
	}
	m.latencyMs.Set(v)
}

func (m *clientMetrics) setFeeDrops(v float64) {
	if m == nil {
		return
	}
	m.feeDrops.Set(v)
}

func (m *clientMetrics) setValidatedLedgerLast(v float64) {
	if m == nil {
		return
	}
	m.validatedLedgers.Set(v)
}
