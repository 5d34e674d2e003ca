package xrplclient

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"
)

var errNoTransport = errors.New("no transport open")

// transmit marshals c's payload and writes it to the current transport.
func (cl *Client) transmit(c *call) error {
	data, err := c.marshal()
	if err != nil {
		return err
	}
	return cl.send(data, func() { c.sentAt = time.Now() })
}

// send is the single choke point for writes to the wire: every outbound
// frame, whether a caller's call or an internally-issued probe, goes
// through here so callsSent and the no-transport error path only need to
// live in one place.
func (cl *Client) send(data []byte, onSent func()) error {
	if cl.transportConn == nil {
		return errNoTransport
	}
	if err := cl.transportConn.Send(data); err != nil {
		return err
	}
	cl.metrics.incCallsSent()
	if onSent != nil {
		onSent()
	}
	return nil
}

// sendLedgerSubscribeProbe issues the internal ledger-stream subscription
// every connect cycle piggy-backs on. It is deliberately never inserted
// into the call registry: its ack is recognised and suppressed by the
// router, never surfaced to a caller.
func (cl *Client) sendLedgerSubscribeProbe() {
	id := cl.registry.nextID()
	userIDJSON, _ := json.Marshal(internalSubscriptionID)
	payload := map[string]interface{}{
		"command": "subscribe",
		"streams": []interface{}{streamLedger},
	}
	if err := setEnvelopeID(payload, id, userIDJSON); err != nil {
		cl.logger.Debug("failed to build ledger-subscribe probe", zap.Error(err))
		return
	}
	cl.probes[id] = &probeRecord{internalID: id, kind: probeKindOf(userIDJSON), userID: userIDJSON}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := cl.send(data, nil); err != nil {
		cl.logTransportErr("ledger-subscribe-probe", err)
	}
}

// sendServerInfoProbe issues the internal server_info probe that samples
// latency and the cushioned open-ledger fee. Its id carries an
// emission-timestamp suffix so the router can derive round-trip latency
// without any other bookkeeping.
func (cl *Client) sendServerInfoProbe() {
	id := cl.registry.nextID()
	tag := internalServerInfoID + "@" + strconv.FormatInt(time.Now().UnixMilli(), 10)
	userIDJSON, _ := json.Marshal(tag)
	payload := map[string]interface{}{"command": "server_info"}
	if err := setEnvelopeID(payload, id, userIDJSON); err != nil {
		cl.logger.Debug("failed to build server_info probe", zap.Error(err))
		return
	}
	cl.probes[id] = &probeRecord{internalID: id, kind: probeKindOf(userIDJSON), userID: userIDJSON}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := cl.send(data, nil); err != nil {
		cl.logTransportErr("server-info-probe", err)
	}
}
