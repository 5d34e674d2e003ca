package xrplclient

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// handleInboundMessage classifies an inbound frame into reply-to-pending-call,
// reply-to-subscription, async stream event, or unknown, and dispatches
// accordingly. Frames tagged with a stale generation are dropped outright:
// they belong to a transport the supervisor has already abandoned.
func (cl *Client) handleInboundMessage(generation uint64, data []byte) {
	if generation != cl.transportGen {
		return
	}

	_, span := cl.tracer.Start(context.Background(), "MessageRouter.Dispatch")
	defer span.End()

	var msg map[string]interface{}
	if err := json.Unmarshal(data, &msg); err != nil {
		cl.metrics.incFramesDropped()
		cl.logger.Warn("dropping frame that failed to parse as JSON", zap.Error(err))
		return
	}
	cl.state.lastContact = time.Now()
	span.SetAttributes(attribute.Int("xrplclient.frame_bytes", len(data)))

	idVal, hasID := msg["id"]
	if hasID {
		internalID, userID, isEnvelope := parseEnvelope(idVal)
		if isEnvelope {
			if sub, ok := cl.registry.getSubscription(internalID); ok {
				cl.handleSubscriptionFrame(sub, msg, userID)
				return
			}
			if c, ok := cl.registry.takePending(internalID); ok {
				cl.handlePendingFrame(c, msg, userID)
				return
			}
			if pr, ok := cl.takeProbe(internalID); ok {
				cl.handleProbeFrame(pr, msg)
				return
			}
			cl.logger.Debug("dropping frame with unmatched internal id", zap.Uint64("internalId", internalID))
			return
		}
	}
	cl.handleAsyncFrame(msg)
}

// handleSubscriptionFrame is the direct-match branch for a frame whose
// envelope id names one of our live Subscription calls: the ack for a
// subscribe/unsubscribe/path_find. The first such ack resolves send();
// everything after is delivered solely via events.
func (cl *Client) handleSubscriptionFrame(sub *call, msg map[string]interface{}, userID json.RawMessage) {
	restoreUserID(msg, userID)
	if !sub.resolved {
		cl.resolveCall(sub, resultOf(msg))
	}
	if sub.command == "unsubscribe" {
		cl.registry.removeSubscription(sub.internalID)
		cl.registry.removeSubscriptionsMatching(sub.streams)
	}
	cl.emitMessageFor(msg)
	cl.dispatchByType(msg, sub)
}

// handlePendingFrame is the direct-match branch for a one-shot call: resolve
// and forget.
func (cl *Client) handlePendingFrame(c *call, msg map[string]interface{}, userID json.RawMessage) {
	restoreUserID(msg, userID)
	cl.resolveCall(c, resultOf(msg))
	cl.emitMessageFor(msg)
}

// handleProbeFrame consumes the reply to one of our own internally-issued
// probes. Neither probe kind is ever surfaced to a caller: the
// ledger-subscription probe is never registered as a call to begin with, and
// the server_info probe's result only feeds the health aggregator.
func (cl *Client) handleProbeFrame(pr *probeRecord, msg map[string]interface{}) {
	if pr.kind != probeServerInfo {
		return
	}
	cl.feedServerInfoProbe(pr.userID, callOutcome{value: resultOf(msg)})
	if !cl.uplinkReady {
		cl.goOnline()
	}
}

// handleAsyncFrame is the catch-all for frames that carry no envelope id at
// all: the normal shape of a stream push (ledgerClosed, transaction,
// path_find, validation). It falls back to matching the stored request of
// a live Subscription by command/streams when the frame's own "type" field
// doesn't say enough to dispatch on its own.
func (cl *Client) handleAsyncFrame(msg map[string]interface{}) {
	sub := cl.fallbackMatchSubscription(msg)
	if sub != nil && !sub.resolved {
		cl.resolveCall(sub, resultOf(msg))
	}
	cl.emitMessageFor(msg)
	cl.dispatchByType(msg, sub)
}

// dispatchByType dispatches a frame by its "type" field, falling back to
// matching sub's command/streams when the frame carries no recognised
// "type".
func (cl *Client) dispatchByType(msg map[string]interface{}, sub *call) {
	typ, _ := msg["type"].(string)
	switch typ {
	case "ledgerClosed":
		cl.handleLedgerClosed(msg)
		return
	case "path_find":
		cl.events.emitPath(marshalMsg(msg))
		return
	case "transaction":
		cl.events.emitTransaction(marshalMsg(msg))
		return
	}
	if _, has := msg["validation_public_key"]; has {
		cl.events.emitValidation(marshalMsg(msg))
		return
	}
	if sub == nil {
		return
	}
	switch {
	case sub.command == "path_find":
		cl.events.emitPath(marshalMsg(msg))
	case containsStream(sub.streams, streamLedger):
		cl.handleLedgerClosed(msg)
	}
}

// handleLedgerClosed is the system's heartbeat: refresh ledger/reserve
// state, rearm the Liveness Watchdog, transition Online if this is the
// first ledger event of the connection, and piggy-back another server_info
// probe.
func (cl *Client) handleLedgerClosed(msg map[string]interface{}) {
	if v, ok := msg["validated_ledgers"].(string); ok {
		cl.state.validatedLedgers = v
	}
	if v, ok := numericField(msg, "reserve_base"); ok {
		b := v / 1e6
		cl.state.reserveBase = &b
	}
	if v, ok := numericField(msg, "reserve_inc"); ok {
		i := v / 1e6
		cl.state.reserveInc = &i
	}
	if v, ok := numericField(msg, "ledger_index"); ok {
		cl.state.lastLedgerIndex = uint64(v)
	}

	cl.alive()
	if !cl.uplinkReady {
		cl.goOnline()
	}
	cl.metrics.setValidatedLedgerLast(float64(cl.state.lastLedgerIndex))
	cl.events.emitLedger(LedgerEvent{
		ValidatedLedgers: cl.state.validatedLedgers,
		ReserveBase:      cl.state.reserveBase,
		ReserveInc:       cl.state.reserveInc,
		Raw:              marshalMsg(msg),
	})
	cl.checkReadyWaiters()
	cl.sendServerInfoProbe()
}

func (cl *Client) emitMessageFor(msg map[string]interface{}) {
	cl.events.emitMessage(marshalMsg(msg))
}

// fallbackMatchSubscription matches an untyped or unrecognised-type frame
// against a live subscription by command/streams: a path_find push matches
// a live path_find subscription; otherwise a subscribe that named "ledger"
// among its streams matches, regardless of what else it subscribed to.
func (cl *Client) fallbackMatchSubscription(msg map[string]interface{}) *call {
	if typ, _ := msg["type"].(string); typ == "path_find" {
		if c, ok := cl.registry.findSubscription(func(c *call) bool { return c.command == "path_find" }); ok {
			return c
		}
	}
	if c, ok := cl.registry.findSubscription(func(c *call) bool {
		return c.command == "subscribe" && containsStream(c.streams, streamLedger)
	}); ok {
		return c
	}
	return nil
}

func resultOf(msg map[string]interface{}) json.RawMessage {
	if r, has := msg["result"]; has {
		return marshalAny(r)
	}
	return marshalMsg(msg)
}

func marshalAny(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func numericField(msg map[string]interface{}, key string) (float64, bool) {
	v, has := msg[key]
	if !has {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func containsStream(streams []string, want string) bool {
	for _, s := range streams {
		if s == want {
			return true
		}
	}
	return false
}
