package xrplclient

import (
	"encoding/json"
	"sync"
)

// LedgerEvent is the payload of an "ledger" event, derived from a
// "ledgerClosed" stream message.
type LedgerEvent struct {
	ValidatedLedgers string
	ReserveBase      *float64
	ReserveInc       *float64
	Raw              json.RawMessage
}

// NodeSwitchEvent is the payload of a "nodeswitch" event.
type NodeSwitchEvent struct {
	Endpoint string
}

// RetryEvent is the payload of a "retry" event.
type RetryEvent struct {
	Attempt int
	Delay   float64
}

// CloseEvent is the payload of a "close" event.
type CloseEvent struct {
	Err error
}

// eventBus fans out typed callbacks for the fixed event vocabulary of the
// public event surface. Registration (Client.OnXxx) may be called from any
// goroutine; dispatch (emitXxx) only ever happens from the loop goroutine,
// so the mutex here only ever guards the slice against concurrent
// registration, not concurrent dispatch.
type eventBus struct {
	mu sync.RWMutex

	onOnline      []func()
	onOffline     []func()
	onState       []func(ConnectionState)
	onLedger      []func(LedgerEvent)
	onTransaction []func(json.RawMessage)
	onPath        []func(json.RawMessage)
	onValidation  []func(json.RawMessage)
	onMessage     []func(json.RawMessage)
	onRetry       []func(RetryEvent)
	onNodeSwitch  []func(NodeSwitchEvent)
	onRound       []func()
	onClose       []func(CloseEvent)
	onError       []func(error)
}

func newEventBus() *eventBus { return &eventBus{} }

func (b *eventBus) emitOnline() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, f := range b.onOnline {
		f()
	}
}

func (b *eventBus) emitOffline() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, f := range b.onOffline {
		f()
	}
}

func (b *eventBus) emitState(s ConnectionState) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, f := range b.onState {
		f(s)
	}
}

func (b *eventBus) emitLedger(e LedgerEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, f := range b.onLedger {
		f(e)
	}
}

func (b *eventBus) emitTransaction(m json.RawMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, f := range b.onTransaction {
		f(m)
	}
}

func (b *eventBus) emitPath(m json.RawMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, f := range b.onPath {
		f(m)
	}
}

func (b *eventBus) emitValidation(m json.RawMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, f := range b.onValidation {
		f(m)
	}
}

func (b *eventBus) emitMessage(m json.RawMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, f := range b.onMessage {
		f(m)
	}
}

func (b *eventBus) emitRetry(e RetryEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, f := range b.onRetry {
		f(e)
	}
}

func (b *eventBus) emitNodeSwitch(e NodeSwitchEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, f := range b.onNodeSwitch {
		f(e)
	}
}

func (b *eventBus) emitRound() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, f := range b.onRound {
		f()
	}
}

func (b *eventBus) emitClose(e CloseEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, f := range b.onClose {
		f(e)
	}
}

func (b *eventBus) emitError(err error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, f := range b.onError {
		f(err)
	}
}

// OnOnline registers a callback fired every time the client transitions to
// the Online lifecycle state.
func (cl *Client) OnOnline(f func()) { cl.events.mu.Lock(); defer cl.events.mu.Unlock(); cl.events.onOnline = append(cl.events.onOnline, f) }

// OnOffline registers a callback fired when a previously-Online client loses
// its uplink.
func (cl *Client) OnOffline(f func()) { cl.events.mu.Lock(); defer cl.events.mu.Unlock(); cl.events.onOffline = append(cl.events.onOffline, f) }

// OnState registers a callback fired with a fresh snapshot alongside
// "online", on every disconnect, and on close. Ledger, fee and latency
// updates alone do not fire it.
func (cl *Client) OnState(f func(ConnectionState)) {
	cl.events.mu.Lock()
	defer cl.events.mu.Unlock()
	cl.events.onState = append(cl.events.onState, f)
}

// OnLedger registers a callback fired for every "ledgerClosed" stream
// message; this is the system's heartbeat.
func (cl *Client) OnLedger(f func(LedgerEvent)) {
	cl.events.mu.Lock()
	defer cl.events.mu.Unlock()
	cl.events.onLedger = append(cl.events.onLedger, f)
}

// OnTransaction registers a callback fired for every streamed transaction
// message.
func (cl *Client) OnTransaction(f func(json.RawMessage)) {
	cl.events.mu.Lock()
	defer cl.events.mu.Unlock()
	cl.events.onTransaction = append(cl.events.onTransaction, f)
}

// OnPath registers a callback fired for every streamed path_find update.
func (cl *Client) OnPath(f func(json.RawMessage)) {
	cl.events.mu.Lock()
	defer cl.events.mu.Unlock()
	cl.events.onPath = append(cl.events.onPath, f)
}

// OnValidation registers a callback fired for every streamed validation
// message.
func (cl *Client) OnValidation(f func(json.RawMessage)) {
	cl.events.mu.Lock()
	defer cl.events.mu.Unlock()
	cl.events.onValidation = append(cl.events.onValidation, f)
}

// OnMessage registers a callback fired for every non-internal inbound
// message, regardless of how it was otherwise classified.
func (cl *Client) OnMessage(f func(json.RawMessage)) {
	cl.events.mu.Lock()
	defer cl.events.mu.Unlock()
	cl.events.onMessage = append(cl.events.onMessage, f)
}

// OnRetry registers a callback fired when a reconnect attempt is scheduled.
func (cl *Client) OnRetry(f func(RetryEvent)) {
	cl.events.mu.Lock()
	defer cl.events.mu.Unlock()
	cl.events.onRetry = append(cl.events.onRetry, f)
}

// OnNodeSwitch registers a callback fired when the endpoint cursor advances
// after exhausting connection attempts against the current endpoint.
func (cl *Client) OnNodeSwitch(f func(NodeSwitchEvent)) {
	cl.events.mu.Lock()
	defer cl.events.mu.Unlock()
	cl.events.onNodeSwitch = append(cl.events.onNodeSwitch, f)
}

// OnRound registers a callback fired when the endpoint cursor wraps back to
// the first endpoint.
func (cl *Client) OnRound(f func()) {
	cl.events.mu.Lock()
	defer cl.events.mu.Unlock()
	cl.events.onRound = append(cl.events.onRound, f)
}

// OnClose registers a callback fired whenever the uplink goes away while the
// client is running: the transport closing, a dial failing, or the
// dead-connect timer firing. Close() and connection exhaustion do not fire
// it.
func (cl *Client) OnClose(f func(CloseEvent)) {
	cl.events.mu.Lock()
	defer cl.events.mu.Unlock()
	cl.events.onClose = append(cl.events.onClose, f)
}

// OnError registers a callback fired for systemic errors (e.g. connection
// attempts exhausted) that are not tied to any single call's future.
func (cl *Client) OnError(f func(error)) {
	cl.events.mu.Lock()
	defer cl.events.mu.Unlock()
	cl.events.onError = append(cl.events.onError, f)
}
