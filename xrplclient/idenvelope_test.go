package xrplclient

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRewriteIDRoundTrip(t *testing.T) {
	require := require.New(t)

	req := map[string]interface{}{"command": "ping", "id": "my-id"}
	userID, err := rewriteID(req, 42)
	require.NoError(err)
	require.Equal(`"my-id"`, string(userID))

	envelope, ok := req["id"].(map[string]interface{})
	require.True(ok)
	require.Equal(float64(42), envelope["internal"])
	require.Equal("my-id", envelope["user"])

	internalID, gotUserID, isEnvelope := parseEnvelope(req["id"])
	require.True(isEnvelope)
	require.Equal(uint64(42), internalID)
	require.Equal(userID, gotUserID)

	msg := map[string]interface{}{"id": req["id"], "result": map[string]interface{}{}}
	restoreUserID(msg, gotUserID)
	require.Equal("my-id", msg["id"])
}

func TestRewriteIDWithoutCallerID(t *testing.T) {
	require := require.New(t)

	req := map[string]interface{}{"command": "server_info"}
	userID, err := rewriteID(req, 7)
	require.NoError(err)
	require.Empty(userID)

	msg := map[string]interface{}{"id": req["id"]}
	restoreUserID(msg, userID)
	_, has := msg["id"]
	require.False(has)
}

func TestParseEnvelopeRejectsNonEnvelope(t *testing.T) {
	_, _, ok := parseEnvelope("plain-string-id")
	require.False(t, ok)

	_, _, ok = parseEnvelope(float64(5))
	require.False(t, ok)
}

func TestProbeKindOf(t *testing.T) {
	require := require.New(t)

	subID, _ := json.Marshal(internalSubscriptionID)
	require.Equal(probeLedgerSubscribe, probeKindOf(subID))

	infoID, _ := json.Marshal(internalServerInfoID + "@12345")
	require.Equal(probeServerInfo, probeKindOf(infoID))

	userID, _ := json.Marshal("some-user-id")
	require.Equal(probeNone, probeKindOf(userID))

	require.Equal(probeNone, probeKindOf(nil))
}
