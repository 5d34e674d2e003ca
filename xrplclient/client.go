package xrplclient

import (
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	uatomic "go.uber.org/atomic"
	"go.uber.org/zap"
)

// lifecycleState is the client's connection lifecycle: Init → Connecting →
// Online ⇆ Reconnecting → Closed.
type lifecycleState int

const (
	lifecycleInit lifecycleState = iota
	lifecycleConnecting
	lifecycleOnline
	lifecycleReconnecting
	lifecycleClosed
)

func (s lifecycleState) String() string {
	switch s {
	case lifecycleConnecting:
		return "connecting"
	case lifecycleOnline:
		return "online"
	case lifecycleReconnecting:
		return "reconnecting"
	case lifecycleClosed:
		return "closed"
	default:
		return "init"
	}
}

// Client is a resilient multiplexing client for an XRPL-style JSON-RPC/
// WebSocket cluster. A single loop goroutine owns every piece of mutable
// state; everything else either posts a command onto Client.cmds or is a
// plain atomic read.
type Client struct {
	cfg       Config
	endpoints *endpointSet
	registry  *callRegistry
	state     *serverState
	events    *eventBus
	logger    *zap.Logger
	metrics   *clientMetrics
	tracer    trace.Tracer
	dial      dialer

	cmds    chan interface{}
	stopped chan struct{}

	closed uatomic.Bool
	online uatomic.Bool

	lifecycle     lifecycleState
	everOnline    bool
	transportGen  uint64
	transportConn transport
	uplinkReady   bool

	probes map[uint64]*probeRecord

	readyWaiters []chan error

	watchdogTimer    *time.Timer
	reconnectTimer   *time.Timer
	deadConnectTimer *time.Timer
}

// New constructs a Client for the given endpoint set. endpoints == nil
// selects the single default endpoint (wss://xrplcluster.com) as a
// convenience for the no-argument case; a non-nil but empty slice is a
// configuration error, since the caller explicitly supplied no candidates.
// The connect/reconnect loop is started in the background before New
// returns.
func New(endpoints []string, opts ...Option) (*Client, error) {
	raw := endpoints
	if raw == nil {
		raw = []string{defaultEndpoint}
	}
	set, err := newEndpointSet(raw)
	if err != nil {
		return nil, err
	}

	cl := &Client{
		cfg:       DefaultConfig(),
		endpoints: set,
		registry:  newCallRegistry(),
		state:     newServerState(),
		events:    newEventBus(),
		logger:    zap.NewNop(),
		dial:      defaultDialer,
		tracer:    otel.Tracer("xrplclient"),
		cmds:      make(chan interface{}, 256),
		stopped:   make(chan struct{}),
		probes:    make(map[uint64]*probeRecord),
	}
	for _, o := range opts {
		o(cl)
	}
	if set.len() > 1 && cl.cfg.MaxConnectionAttempts == 0 {
		cl.cfg.MaxConnectionAttempts = forcedMaxConnectionAttempts
	}
	if cl.cfg.ConnectAttemptTimeoutSeconds <= 0 {
		cl.cfg.ConnectAttemptTimeoutSeconds = defaultConnectAttemptTimeoutSeconds
	}
	if cl.cfg.AssumeOfflineAfterSeconds <= 0 {
		cl.cfg.AssumeOfflineAfterSeconds = defaultAssumeOfflineAfterSeconds
	}
	cl.state.connectAttempts = -1

	go cl.loop()
	return cl, nil
}

// NewSingle is a convenience constructor for a single endpoint string.
func NewSingle(endpoint string, opts ...Option) (*Client, error) {
	return New([]string{endpoint}, opts...)
}

// post hands cmd to the loop goroutine. It never blocks past the client
// shutting down: once the loop has exited, cmds has no reader left, so post
// falls through the stopped case instead of blocking forever.
func (cl *Client) post(cmd interface{}) {
	select {
	case cl.cmds <- cmd:
	case <-cl.stopped:
	}
}

// loop is the single goroutine that owns every piece of mutable state in the
// client: the call registry, the endpoint cursor, server health, and the
// connection lifecycle. Nothing outside this function ever mutates them.
func (cl *Client) loop() {
	cl.lifecycle = lifecycleConnecting
	cl.connect()
	for cmd := range cl.cmds {
		cl.dispatch(cmd)
		if cl.lifecycle == lifecycleClosed {
			close(cl.stopped)
			return
		}
	}
}

func (cl *Client) dispatch(cmd interface{}) {
	switch c := cmd.(type) {
	case cmdSend:
		cl.handleSend(c)
	case cmdReady:
		cl.handleReady(c)
	case cmdGetState:
		c.reply <- cl.snapshot()
	case cmdClose:
		cl.handleClose(c)
	case cmdDialResult:
		cl.handleDialResult(c.generation, c.conn, c.err)
	case cmdTransportMessage:
		cl.handleInboundMessage(c.generation, c.data)
	case cmdTransportClosed:
		cl.handleTransportClosed(c.generation, c.err)
	case cmdReconnectTick:
		if c.generation == cl.transportGen {
			cl.connect()
		}
	case cmdCallTimeout:
		cl.metrics.incCallsTimedOut()
		cl.handleCallTimeout(c.internalID, c.seconds)
	case cmdWatchdogFired:
		cl.handleWatchdogFired(c.generation)
	case cmdDeadConnectFired:
		cl.handleDeadConnectFired(c.generation)
	default:
		cl.logger.Warn("dropping unknown internal command", zap.String("type", fmt.Sprintf("%T", cmd)))
	}
}

// resolveCall fulfils c's future exactly once; later calls are no-ops, so a
// resolved call's future is never also rejected, and vice versa.
func (cl *Client) resolveCall(c *call, value json.RawMessage) {
	if c.resolved {
		return
	}
	c.resolved = true
	cancelDeadline(c)
	c.resultCh <- sendResult{value: value}
}

// rejectCall is resolveCall's rejecting twin.
func (cl *Client) rejectCall(c *call, err error) {
	if c.resolved {
		return
	}
	c.resolved = true
	cancelDeadline(c)
	c.resultCh <- sendResult{err: err}
}

// takeProbe removes and returns the probe bookkeeping for internalID, if
// any.
func (cl *Client) takeProbe(internalID uint64) (*probeRecord, bool) {
	pr, ok := cl.probes[internalID]
	if ok {
		delete(cl.probes, internalID)
	}
	return pr, ok
}

// isOnline reports whether the client is online: uplink ready, not closed,
// and holding a transport (our proxy for "transport.OPEN", since the
// transport interface only exposes Send/Close, not a state query).
// Loop-goroutine-only; outside callers use IsOnline instead.
func (cl *Client) isOnline() bool {
	return cl.uplinkReady && cl.lifecycle != lifecycleClosed && cl.transportConn != nil
}

// IsOnline mirrors GetState().Online without round-tripping through the
// loop, for callers that just want a cheap liveness check (e.g. a health
// probe called at high frequency from an embedding process). Backed by the
// same atomic flag the loop keeps in lockstep with isOnline on every
// transition.
func (cl *Client) IsOnline() bool {
	return cl.online.Load()
}

func marshalMsg(msg map[string]interface{}) json.RawMessage {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil
	}
	return b
}
