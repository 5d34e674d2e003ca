package xrplclient

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// Send submits req and blocks until a reply arrives, the call times out, or
// the client closes. req is mutated in place: its "command" is
// lowercased/trimmed and, for the ledger-only-unsubscribe rule, its
// "streams" may have "ledger" removed.
func (cl *Client) Send(req map[string]interface{}, opts SendOptions) (json.RawMessage, error) {
	if cl.closed.Load() {
		return nil, newClientError(KindClosedWhileInFlight, ErrClosed)
	}

	rawCommand, ok := req["command"].(string)
	if !ok {
		return nil, newClientError(KindCallRejectedSemantic, ErrInvalidRequest)
	}
	command := strings.ToLower(strings.TrimSpace(rawCommand))
	req["command"] = command
	streams := extractStreams(req)

	if command == "unsubscribe" {
		if idx := indexOfStream(streams, streamLedger); idx >= 0 {
			streams = append(streams[:idx], streams[idx+1:]...)
			req["streams"] = streamsToAny(streams)
			if len(streams) == 0 && onlyIDCommandStreams(req) {
				return nil, newClientError(KindCallRejectedSemantic, ErrLedgerOnlyUnsubscribeForbidden)
			}
		}
	}

	reply := make(chan sendResult, 1)
	cl.post(cmdSend{req: req, opts: opts, reply: reply})
	select {
	case res := <-reply:
		return res.value, res.err
	case <-cl.stopped:
		return nil, newClientError(KindClosedWhileInFlight, ErrClosed)
	}
}

// Ready resolves as soon as a state snapshot is online with recent contact
// and a known ledger, and otherwise on the next ledger event that makes it
// so.
func (cl *Client) Ready() error {
	reply := make(chan error, 1)
	cl.post(cmdReady{reply: reply})
	select {
	case err := <-reply:
		return err
	case <-cl.stopped:
		return newClientError(KindClosedWhileInFlight, ErrClosed)
	}
}

// GetState returns a read-only snapshot of the client's current view of the
// server.
func (cl *Client) GetState() ConnectionState {
	reply := make(chan ConnectionState, 1)
	cl.post(cmdGetState{reply: reply})
	select {
	case s := <-reply:
		return s
	case <-cl.stopped:
		return ConnectionState{}
	}
}

// Close performs a hard, idempotent shutdown. Calling it twice returns
// ErrAlreadyClosed instead of acting again.
func (cl *Client) Close(cause error) error {
	if !cl.closed.CompareAndSwap(false, true) {
		return ErrAlreadyClosed
	}
	reply := make(chan error, 1)
	cl.post(cmdClose{cause: cause, reply: reply})
	select {
	case err := <-reply:
		return err
	case <-cl.stopped:
		return nil
	}
}

// handleSend is the loop-side continuation of Send: allocate an internal
// id, rewrite it into the envelope, classify and register the call, and
// either transmit it now or leave it queued for the next flush.
func (cl *Client) handleSend(cmd cmdSend) {
	if cl.lifecycle == lifecycleClosed {
		cmd.reply <- sendResult{err: newClientError(KindClosedWhileInFlight, ErrClosed)}
		return
	}

	internalID := cl.registry.nextID()
	userID, err := rewriteID(cmd.req, internalID)
	if err != nil {
		cmd.reply <- sendResult{err: err}
		return
	}
	command, _ := cmd.req["command"].(string)
	streams := extractStreams(cmd.req)
	kind := classifyKind(command, cmd.opts)
	c := newCall(internalID, cmd.req, command, streams, kind, cmd.opts, userID)
	c.resultCh = cmd.reply

	if kind == CallKindSubscription {
		cl.registry.insertSubscription(c)
	} else {
		cl.registry.insertPending(c)
	}

	if cl.isOnline() || cmd.opts.SendIfNotReady {
		// Transmitting right now satisfies "deferred until actually
		// transmitted" regardless of TimeoutStartsWhenOnline, so the
		// deadline is armed unconditionally here (armDeadline is a no-op if
		// already armed or if no timeout was requested).
		cl.armDeadline(c)
		if err := cl.transmit(c); err != nil {
			cl.logTransportErr("send", err)
		}
		return
	}
	if !cmd.opts.TimeoutStartsWhenOnline {
		cl.armDeadline(c)
	}
}

// classifyKind decides whether a call is replayed across a reconnect
// (Subscription) or sent once and forgotten (OneShot).
func classifyKind(command string, opts SendOptions) CallKind {
	if opts.NoReplayAfterReconnect {
		return CallKindOneShot
	}
	switch command {
	case "subscribe", "unsubscribe", "path_find":
		return CallKindSubscription
	default:
		return CallKindOneShot
	}
}

// handleReady resolves reply immediately if the current snapshot already
// satisfies readiness, otherwise parks it for checkReadyWaiters to wake on
// the next ledger event.
func (cl *Client) handleReady(cmd cmdReady) {
	if cl.lifecycle == lifecycleClosed {
		cmd.reply <- newClientError(KindClosedWhileInFlight, ErrClosed)
		return
	}
	if cl.snapshotIsReady() {
		cmd.reply <- nil
		return
	}
	cl.readyWaiters = append(cl.readyWaiters, cmd.reply)
}

func (cl *Client) checkReadyWaiters() {
	if len(cl.readyWaiters) == 0 || !cl.snapshotIsReady() {
		return
	}
	for _, w := range cl.readyWaiters {
		w <- nil
	}
	cl.readyWaiters = nil
}

func (cl *Client) snapshotIsReady() bool {
	s := cl.snapshot()
	return s.Online && s.SecLastContact < readyLastContactWindow.Seconds() && s.Ledger.Last > 0
}

// handleClose implements the Public API's close operation on the loop
// side: reject every outstanding call and ready-waiter, tear down timers
// and the transport, and announce cause if one was given.
func (cl *Client) handleClose(cmd cmdClose) {
	cl.lifecycle = lifecycleClosed
	cl.closeTransportBestEffort()
	cl.cancelReconnectTimer()
	cl.cancelWatchdogTimer()
	cl.online.Store(false)

	rejected := cl.registry.drainAll()
	for _, c := range rejected {
		cl.rejectCall(c, newClientError(KindClosedWhileInFlight, ErrHardClose))
	}
	cl.probes = make(map[uint64]*probeRecord)

	for _, w := range cl.readyWaiters {
		w <- newClientError(KindClosedWhileInFlight, ErrClosed)
	}
	cl.readyWaiters = nil

	if cmd.cause != nil {
		cl.events.emitError(cmd.cause)
	}
	cl.events.emitState(cl.snapshot())
	cmd.reply <- nil
}

// snapshot builds the read-only ConnectionState view returned by GetState.
func (cl *Client) snapshot() ConnectionState {
	now := time.Now()

	var lat LatencyState
	if last, ok := cl.state.latency.last(); ok {
		lat.Last = last.ms
		lat.SecAgo = now.Sub(last.at).Seconds()
	}
	if n := cl.state.latency.len(); n > 0 {
		var sum float64
		for _, s := range cl.state.latency.items() {
			sum += s.ms
		}
		lat.Avg = sum / float64(n)
	}

	var fee FeeState
	if last, ok := cl.state.fee.last(); ok {
		fee.Last = last.drops
		fee.SecAgo = now.Sub(last.at).Seconds()
	}
	if n := cl.state.fee.len(); n > 0 {
		var sum float64
		for _, s := range cl.state.fee.items() {
			sum += s.drops
		}
		fee.Avg = sum / float64(n)
	}

	secLastContact := math.MaxFloat64
	if !cl.state.lastContact.IsZero() {
		secLastContact = now.Sub(cl.state.lastContact).Seconds()
	}

	return ConnectionState{
		Online:  cl.isOnline(),
		Latency: lat,
		Server: ServerInfo{
			Version:   cl.state.serverVersion,
			Uptime:    cl.state.serverUptime,
			PublicKey: cl.state.serverPublicKey,
			URI:       cl.state.serverURI,
		},
		Ledger: LedgerState{
			Last:      cl.state.lastLedgerIndex,
			Validated: cl.state.validatedLedgers,
			Count:     ledgerRangeCount(cl.state.validatedLedgers),
		},
		Fee: fee,
		Reserve: ReserveState{
			Base:  cl.state.reserveBase,
			Owner: cl.state.reserveInc,
		},
		SecLastContact: secLastContact,
	}
}

// --- request-shape helpers ---------------------------------------------

func extractStreams(req map[string]interface{}) []string {
	raw, ok := req["streams"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func streamsToAny(streams []string) []interface{} {
	out := make([]interface{}, len(streams))
	for i, s := range streams {
		out[i] = s
	}
	return out
}

func indexOfStream(streams []string, want string) int {
	for i, s := range streams {
		if s == want {
			return i
		}
	}
	return -1
}

// onlyIDCommandStreams reports whether req carries no fields beyond id,
// command, and streams: the condition under which removing "ledger" from
// an unsubscribe's streams leaves nothing meaningfully left to unsubscribe
// from.
func onlyIDCommandStreams(req map[string]interface{}) bool {
	for k := range req {
		if k != "id" && k != "command" && k != "streams" {
			return false
		}
	}
	return true
}
