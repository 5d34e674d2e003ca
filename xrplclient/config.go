package xrplclient

import (
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus"
)

// Config holds the client's tunables: the dead-connect detection budget,
// the liveness window, and an optional hard cap on connect attempts against
// a single endpoint before rotation. All three have sane defaults and
// nothing here comes from a file or the environment.
type Config struct {
	ConnectAttemptTimeoutSeconds float64
	AssumeOfflineAfterSeconds    float64
	MaxConnectionAttempts        int
}

// DefaultConfig returns the zero-config defaults a Client starts with when
// no Option overrides them.
func DefaultConfig() Config {
	return Config{
		ConnectAttemptTimeoutSeconds: defaultConnectAttemptTimeoutSeconds,
		AssumeOfflineAfterSeconds:    defaultAssumeOfflineAfterSeconds,
	}
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithConnectAttemptTimeout overrides the dead-connect detection budget.
func WithConnectAttemptTimeout(seconds float64) Option {
	return func(cl *Client) { cl.cfg.ConnectAttemptTimeoutSeconds = seconds }
}

// WithAssumeOfflineAfter overrides the liveness watchdog window.
func WithAssumeOfflineAfter(seconds float64) Option {
	return func(cl *Client) { cl.cfg.AssumeOfflineAfterSeconds = seconds }
}

// WithMaxConnectionAttempts overrides the per-endpoint attempt cap before
// rotation. Leaving this unset with a multi-endpoint set forces it to 3.
func WithMaxConnectionAttempts(n int) Option {
	return func(cl *Client) { cl.cfg.MaxConnectionAttempts = n }
}

// WithTracer injects an OpenTelemetry tracer used to span connect attempts
// and inbound frame dispatch. Defaults to the global no-op tracer, matching
// a library that has no say over its embedder's SDK configuration.
func WithTracer(t trace.Tracer) Option {
	return func(cl *Client) { cl.tracer = t }
}

// WithMetricsRegistry registers the client's counters/gauges on r. Without
// this option the client records no metrics at all.
func WithMetricsRegistry(r *prometheus.Registry) Option {
	return func(cl *Client) { cl.metrics = newClientMetrics(r) }
}

// WithDialer overrides how the Connection Supervisor opens a transport.
// Tests use this to substitute a fake transport; production code never
// needs it.
func WithDialer(d dialer) Option {
	return func(cl *Client) { cl.dial = d }
}

// WithLogger injects the *zap.Logger every component logs through.
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithProductionLogging wires zap.NewProduction() instead of the default
// no-op logger.
func WithProductionLogging() Option {
	return func(cl *Client) {
		l, err := zap.NewProduction()
		if err != nil {
			return
		}
		cl.logger = l
	}
}

// WithLogFile fans log output through a rotating gopkg.in/natefinch/
// lumberjack.v2 sink at path, in addition to whatever logger is already
// configured.
func WithLogFile(path string) Option {
	return func(cl *Client) { cl.logger = withLumberjackSink(cl.logger, path) }
}
