package xrplclient

import (
	"encoding/json"
	"math"
	"time"

	"go.uber.org/zap"
)

// serverInfoResult mirrors the subset of a server_info reply the Health
// Aggregator cares about: result.info.{pubkey_node, build_version,
// complete_ledgers, uptime, load_factor, validated_ledger.base_fee_xrp}.
type serverInfoResult struct {
	Info struct {
		PubkeyNode      string `json:"pubkey_node"`
		BuildVersion    string `json:"build_version"`
		CompleteLedgers string `json:"complete_ledgers"`
		Uptime          uint64 `json:"uptime"`
		LoadFactor      float64 `json:"load_factor"`
		ValidatedLedger struct {
			BaseFeeXRP float64 `json:"base_fee_xrp"`
		} `json:"validated_ledger"`
	} `json:"info"`
}

// recordLatency appends a latency sample, drop-oldest at capacity 10.
func (cl *Client) recordLatency(ms float64) {
	cl.state.latency.push(latencySample{at: time.Now(), ms: ms})
}

// recordFee appends a cushioned fee sample (drops), drop-oldest at
// capacity 5. Zero or non-finite samples are discarded: a probe that landed
// before the ledger ever opened carries no useful signal.
func (cl *Client) recordFee(drops float64) {
	if drops == 0 || math.IsNaN(drops) || math.IsInf(drops, 0) {
		return
	}
	cl.state.fee.push(feeSample{at: time.Now(), drops: drops})
}

// feedServerInfoProbe derives latency from the probe's emission timestamp
// (encoded in its reserved id suffix) and, on a successful reply, samples
// the cushioned fee and refreshes the cached server identity fields used by
// GetState().
func (cl *Client) feedServerInfoProbe(userID json.RawMessage, outcome callOutcome) {
	sentMillis := probeEmittedAtMillis(userID)
	if sentMillis > 0 {
		ms := float64(time.Now().UnixMilli() - sentMillis)
		cl.recordLatency(ms)
		cl.metrics.setLatencyMs(ms)
	}
	if outcome.err != nil || outcome.value == nil {
		return
	}
	var res serverInfoResult
	if err := json.Unmarshal(outcome.value, &res); err != nil {
		cl.logger.Debug("failed to parse server_info probe result", zap.Error(err))
		return
	}
	cl.state.serverVersion = res.Info.BuildVersion
	cl.state.serverPublicKey = res.Info.PubkeyNode
	cl.state.serverUptime = res.Info.Uptime
	fee := res.Info.LoadFactor * res.Info.ValidatedLedger.BaseFeeXRP * 1e6 * feeCushion
	cl.recordFee(fee)
	if fee != 0 && !math.IsNaN(fee) && !math.IsInf(fee, 0) {
		cl.metrics.setFeeDrops(fee)
	}
}

// probeEmittedAtMillis parses the "<ms>" suffix off a
// "_WsClient_Internal_ServerInfo@<ms>" user id.
func probeEmittedAtMillis(userID json.RawMessage) int64 {
	if len(userID) == 0 {
		return 0
	}
	var s string
	if err := json.Unmarshal(userID, &s); err != nil {
		return 0
	}
	const prefix = internalServerInfoID + "@"
	if len(s) <= len(prefix) {
		return 0
	}
	var ms int64
	for _, c := range s[len(prefix):] {
		if c < '0' || c > '9' {
			return 0
		}
		ms = ms*10 + int64(c-'0')
	}
	return ms
}

// ledgerRangeCount sums b-a over each comma-separated "a-b" range in a
// complete_ledgers-style string (a bare value counts as 1).
func ledgerRangeCount(ranges string) uint64 {
	var total uint64
	start := 0
	for i := 0; i <= len(ranges); i++ {
		if i == len(ranges) || ranges[i] == ',' {
			total += rangeSpan(ranges[start:i])
			start = i + 1
		}
	}
	return total
}

func rangeSpan(rangeStr string) uint64 {
	if rangeStr == "" {
		return 0
	}
	dash := -1
	for i := 0; i < len(rangeStr); i++ {
		if rangeStr[i] == '-' {
			dash = i
			break
		}
	}
	if dash < 0 {
		return 1
	}
	a := parseUint(rangeStr[:dash])
	b := parseUint(rangeStr[dash+1:])
	if b < a {
		return 0
	}
	return b - a
}

func parseUint(s string) uint64 {
	var v uint64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		v = v*10 + uint64(c-'0')
	}
	return v
}
