package xrplclient

import "time"

// Reserved id prefixes. The wire protocol reflects ids verbatim, so these
// strings double as the on-the-wire marker for internally-initiated calls.
const (
	internalSubscriptionID = "_WsClient_Internal_Subscription"
	internalServerInfoID   = "_WsClient_Internal_ServerInfo"
)

const (
	defaultEndpoint                     = "wss://xrplcluster.com"
	defaultConnectAttemptTimeoutSeconds = 3
	defaultAssumeOfflineAfterSeconds    = 15
	forcedMaxConnectionAttempts         = 3

	minReconnectDelaySeconds = 1.5

	latencyRingSize = 10
	feeRingSize     = 5
	feeCushion      = 1.2

	readyLastContactWindow = 10 * time.Second
)

// streamLedger names the ledger stream: the internal ledger-subscribe probe
// subscribes to it, the router's fallback dispatch matches on it, and the
// unsubscribe(ledger) rule in Send strips it.
const streamLedger = "ledger"
