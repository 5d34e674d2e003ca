package xrplclient

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// reconnectDelay computes a mild linear ramp bounded below by
// minReconnectDelaySeconds. It reads cl.state.connectAttempts as it stands
// right now, so callers decide where in the cycle they want the number
// measured; see supervisor_test.go and DESIGN.md for the choice made here.
func (cl *Client) reconnectDelay() float64 {
	factor := 1.0
	if cl.cfg.MaxConnectionAttempts > 1 {
		factor = (cl.cfg.ConnectAttemptTimeoutSeconds - 1) / float64(cl.cfg.MaxConnectionAttempts-1)
	}
	d := float64(cl.state.connectAttempts+1) * factor
	if d < minReconnectDelaySeconds {
		d = minReconnectDelaySeconds
	}
	return d
}

// connect runs one cycle of the Connection Supervisor's state machine: close
// any lingering transport, count the attempt, rotate or exhaust if the
// per-endpoint cap is hit, and otherwise kick off a new dial in the
// background.
func (cl *Client) connect() {
	cl.closeTransportBestEffort()
	cl.transportGen++
	gen := cl.transportGen
	cl.state.connectAttempts++
	cl.metrics.incConnectAttempts()

	if cl.everOnline {
		cl.lifecycle = lifecycleReconnecting
	} else {
		cl.lifecycle = lifecycleConnecting
	}

	if cl.cfg.MaxConnectionAttempts > 0 && cl.state.connectAttempts >= cl.cfg.MaxConnectionAttempts {
		if cl.endpoints.len() > 1 {
			wrapped := cl.endpoints.advance()
			cl.metrics.incNodeSwitches()
			if wrapped {
				cl.events.emitRound()
				cl.metrics.incRounds()
			}
			cl.events.emitNodeSwitch(NodeSwitchEvent{Endpoint: cl.endpoints.current()})
			cl.state.connectAttempts = 0
		} else {
			cl.transitionClosed(newClientError(KindConnectionExhausted, ErrConnectionExhausted))
			return
		}
	}

	_, span := cl.tracer.Start(context.Background(), "ConnectionSupervisor.Connect")
	uri := cl.endpoints.current()
	span.SetAttributes(attribute.String("xrplclient.endpoint", uri), attribute.Int64("xrplclient.attempt", int64(cl.state.connectAttempts)))
	span.End()

	delay := cl.reconnectDelay()
	deadConnectBudget := time.Duration(delay*1000-1) * time.Millisecond
	if deadConnectBudget <= 0 {
		deadConnectBudget = time.Millisecond
	}
	cl.armDeadConnectTimer(gen, deadConnectBudget)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cl.cfg.ConnectAttemptTimeoutSeconds*float64(time.Second)))
		defer cancel()
		conn, err := cl.dial(ctx, uri, cl, gen)
		cl.post(cmdDialResult{generation: gen, conn: conn, err: err})
	}()
}

func (cl *Client) armDeadConnectTimer(generation uint64, d time.Duration) {
	if cl.deadConnectTimer != nil {
		cl.deadConnectTimer.Stop()
	}
	cl.deadConnectTimer = time.AfterFunc(d, func() {
		cl.post(cmdDeadConnectFired{generation: generation})
	})
}

func (cl *Client) cancelDeadConnectTimer() {
	if cl.deadConnectTimer != nil {
		cl.deadConnectTimer.Stop()
		cl.deadConnectTimer = nil
	}
}

func (cl *Client) cancelReconnectTimer() {
	if cl.reconnectTimer != nil {
		cl.reconnectTimer.Stop()
		cl.reconnectTimer = nil
	}
}

func (cl *Client) cancelWatchdogTimer() {
	if cl.watchdogTimer != nil {
		cl.watchdogTimer.Stop()
		cl.watchdogTimer = nil
	}
}

// closeTransportBestEffort closes and forgets the current transport, if
// any. Best-effort: a failing Close() is logged and otherwise ignored.
func (cl *Client) closeTransportBestEffort() {
	cl.cancelDeadConnectTimer()
	if cl.transportConn == nil {
		return
	}
	if err := cl.transportConn.Close(); err != nil {
		cl.logTransportErr("close", err)
	}
	cl.transportConn = nil
}

// closeTransport is the Liveness Watchdog's only lever: it closes the
// socket without touching any other state. The resulting read error
// surfaces back through readLoop as a cmdTransportClosed, which is what
// actually drives the reconnect path; this function never does.
func (cl *Client) closeTransport() {
	if cl.transportConn == nil {
		return
	}
	if err := cl.transportConn.Close(); err != nil {
		cl.logTransportErr("watchdog-close", err)
	}
}

// handleDialResult processes the outcome of the background dial launched by
// connect(). A result tagged with a stale generation is discarded outright:
// the supervisor has already moved on to a newer cycle.
func (cl *Client) handleDialResult(generation uint64, conn transport, err error) {
	if generation != cl.transportGen {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	cl.cancelDeadConnectTimer()
	if err != nil {
		cl.logTransportErr("dial", err)
		cl.handleDisconnect(err)
		return
	}
	cl.transportConn = conn
	cl.state.serverURI = cl.endpoints.current()
	cl.sendLedgerSubscribeProbe()
	cl.sendServerInfoProbe()
}

// handleTransportClosed reacts to the read pump observing a closed/broken
// connection. Like handleDialResult, a stale generation is a no-op: its
// transport was already abandoned by a newer connect() cycle.
func (cl *Client) handleTransportClosed(generation uint64, err error) {
	if generation != cl.transportGen {
		return
	}
	cl.closeTransportBestEffort()
	cl.handleDisconnect(err)
}

// handleDeadConnectFired is the dead-connect detector: if the transport for
// this generation still hasn't opened by the time the timer fires, treat it
// exactly like a failed connect attempt.
func (cl *Client) handleDeadConnectFired(generation uint64) {
	if generation != cl.transportGen || cl.transportConn != nil {
		return
	}
	cl.logger.Debug("dead-connect timer fired before transport opened", zap.Uint64("generation", generation))
	cl.closeTransportBestEffort()
	cl.handleDisconnect(errDeadConnectTimeout)
}

// handleDisconnect is the shared tail of every "the uplink is gone" path:
// natural close, dial failure, and the dead-connect timer all funnel here.
// It emits the close/offline events, resets online-ness, and, unless the
// client is fully Closed, schedules the next connect() after the reconnect
// delay.
func (cl *Client) handleDisconnect(cause error) {
	cl.events.emitClose(CloseEvent{Err: cause})
	wasOnline := cl.uplinkReady
	if wasOnline {
		cl.events.emitOffline()
	}
	cl.uplinkReady = false
	cl.online.Store(false)
	cl.cancelWatchdogTimer()
	cl.clearServerInfoCache()
	cl.events.emitState(cl.snapshot())

	if cl.lifecycle == lifecycleClosed {
		return
	}

	delay := cl.reconnectDelay()
	cl.metrics.incReconnects()
	cl.events.emitRetry(RetryEvent{Attempt: cl.state.connectAttempts, Delay: delay})
	gen := cl.transportGen
	cl.cancelReconnectTimer()
	cl.reconnectTimer = time.AfterFunc(time.Duration(delay*float64(time.Second)), func() {
		cl.post(cmdReconnectTick{generation: gen})
	})
}

// clearServerInfoCache drops the cached server identity fields on
// disconnect: they describe the server on the other end of a transport
// that's now gone.
func (cl *Client) clearServerInfoCache() {
	cl.state.serverVersion = ""
	cl.state.serverPublicKey = ""
	cl.state.serverUptime = 0
}

// goOnline performs the Online transition: arm uplinkReady, zero the
// attempt counter, flush the registry, and announce it.
func (cl *Client) goOnline() {
	cl.uplinkReady = true
	cl.online.Store(true)
	cl.everOnline = true
	cl.lifecycle = lifecycleOnline
	cl.state.connectAttempts = 0
	cl.flush()
	cl.events.emitOnline()
	cl.events.emitState(cl.snapshot())
	cl.armWatchdog(cl.transportGen)
	cl.checkReadyWaiters()
}

// flush transmits every call that survived into this connection's lifetime
// in send order: pending one-shots first, then subscriptions.
func (cl *Client) flush() {
	for _, c := range cl.registry.flushSet() {
		if c.opts.TimeoutStartsWhenOnline {
			cl.armDeadline(c)
		}
		if err := cl.transmit(c); err != nil {
			cl.logTransportErr("flush", err)
		}
	}
}

// transitionClosed is reached when connect attempts against the only
// configured endpoint are exhausted. It mirrors the externally visible
// shape of a hard close (drain + reject + emit error) without requiring the
// caller to have invoked Close().
func (cl *Client) transitionClosed(cause error) {
	cl.lifecycle = lifecycleClosed
	cl.closeTransportBestEffort()
	cl.cancelReconnectTimer()
	cl.cancelWatchdogTimer()
	cl.online.Store(false)

	rejected := cl.registry.drainAll()
	for _, c := range rejected {
		cl.rejectCall(c, cause)
	}
	cl.probes = make(map[uint64]*probeRecord)
	for _, w := range cl.readyWaiters {
		w <- cause
	}
	cl.readyWaiters = nil

	cl.events.emitError(cause)
	cl.events.emitState(cl.snapshot())
}
