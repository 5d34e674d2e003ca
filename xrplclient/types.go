package xrplclient

import (
	"encoding/json"
	"time"
)

// CallKind distinguishes a one-shot request/response call from a long-lived
// subscription that must be replayed across reconnects.
type CallKind int

const (
	CallKindOneShot CallKind = iota
	CallKindSubscription
)

func (k CallKind) String() string {
	if k == CallKindSubscription {
		return "subscription"
	}
	return "one-shot"
}

// probeKind marks calls the client issues to itself; probes are routed by
// internalId exactly like a caller's one-shot call, but their outcome is
// consumed internally instead of being handed back across the public API.
type probeKind int

const (
	probeNone probeKind = iota
	probeLedgerSubscribe
	probeServerInfo
)

// probeRecord is the lightweight bookkeeping kept for an internally-issued
// probe: it is routed by internalId exactly like a registered call, but it
// is never inserted into either registry map. It carries no deadline and
// no future, just enough to recognise its own reply and, for server_info,
// to derive latency from the id's timestamp suffix.
type probeRecord struct {
	internalID uint64
	kind       probeKind
	userID     json.RawMessage
}

// SendOptions controls how an individual Send behaves.
type SendOptions struct {
	// SendIfNotReady bypasses the wait-for-online gate: the call is
	// transmitted immediately even while offline/reconnecting, so long as
	// a transport exists to queue it on.
	SendIfNotReady bool
	// NoReplayAfterReconnect marks the call OneShot even if its command
	// would otherwise classify it as a Subscription, and excludes it from
	// the replay set sent on flush.
	NoReplayAfterReconnect bool
	// TimeoutSeconds arms a deadline that rejects the call's future if no
	// reply arrives in time. Zero means no deadline.
	TimeoutSeconds float64
	// TimeoutStartsWhenOnline defers arming the deadline until the call is
	// actually transmitted, instead of arming it at Send() time.
	TimeoutStartsWhenOnline bool
}

// callOutcome is the resolved/rejected value of a call's future.
type callOutcome struct {
	value json.RawMessage
	err   error
}

// call is the full internal bookkeeping record for one request. It is only
// ever read or mutated from the client's loop goroutine.
type call struct {
	internalID uint64

	// payload is the outbound object (with id already rewritten to the
	// envelope) marshaled fresh at every transmission.
	payload map[string]interface{}
	command string
	streams []string

	kind CallKind
	opts SendOptions

	userID json.RawMessage // original caller id, nil if the caller didn't set one

	resultCh chan sendResult
	resolved bool

	deadlineTimer *time.Timer
	armed         bool
	deadlineFired bool

	sentAt time.Time
}

func newCall(internalID uint64, payload map[string]interface{}, command string, streams []string, kind CallKind, opts SendOptions, userID json.RawMessage) *call {
	return &call{
		internalID: internalID,
		payload:    payload,
		command:    command,
		streams:    streams,
		kind:       kind,
		opts:       opts,
		userID:     userID,
		resultCh:   make(chan sendResult, 1),
	}
}

func (c *call) marshal() ([]byte, error) {
	return json.Marshal(c.payload)
}

// --- server-side state -----------------------------------------------------

type latencySample struct {
	at time.Time
	ms float64
}

type feeSample struct {
	at    time.Time
	drops float64
}

// serverState is the Health Aggregator's mutable state plus the supervisor's
// reconnect-attempt counter. Only touched from the loop goroutine.
type serverState struct {
	validatedLedgers string
	reserveBase      *float64
	reserveInc       *float64

	latency *ring[latencySample]
	fee     *ring[feeSample]

	connectAttempts int // -1 sentinel: pre-first-connect

	serverVersion   string
	serverPublicKey string
	serverUptime    uint64
	serverURI       string

	lastLedgerIndex uint64

	lastContact time.Time
}

func newServerState() *serverState {
	return &serverState{
		latency:         newRing[latencySample](latencyRingSize),
		fee:             newRing[feeSample](feeRingSize),
		connectAttempts: -1,
	}
}

// --- public snapshot ---------------------------------------------------

// LatencyState reports the client's round-trip sampling of server_info probes.
type LatencyState struct {
	Last   float64
	Avg    float64
	SecAgo float64
}

// ServerInfo reports the last server_info probe's identifying fields.
type ServerInfo struct {
	Version   string
	Uptime    uint64
	PublicKey string
	URI       string
}

// LedgerState reports the current validated ledger range.
type LedgerState struct {
	Last      uint64
	Validated string
	Count     uint64
}

// FeeState reports the client's sampling of the cushioned open-ledger fee.
type FeeState struct {
	Last   float64
	Avg    float64
	SecAgo float64
}

// ReserveState reports the account reserve requirements, in XRP.
type ReserveState struct {
	Base  *float64
	Owner *float64
}

// ConnectionState is a read-only snapshot of the client's current view of
// the server it is connected to.
type ConnectionState struct {
	Online         bool
	Latency        LatencyState
	Server         ServerInfo
	Ledger         LedgerState
	Fee            FeeState
	Reserve        ReserveState
	SecLastContact float64
}
