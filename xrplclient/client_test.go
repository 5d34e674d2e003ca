package xrplclient

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeTransport is the Send/Close double used wherever a test needs to
// drive the Connection Supervisor without a real socket, mirroring the
// lineage's pattern of substituting a scripted connection in front of the
// state machine under test.
type fakeTransport struct {
	mu      sync.Mutex
	sent    [][]byte
	closed  bool
	onClose func()
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("fakeTransport: send on closed connection")
	}
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

// Close is idempotent and, the first time it actually closes the
// connection, fires onClose: this stands in for the read pump noticing the
// socket died and surfacing a cmdTransportClosed for this generation, the
// way a real transport's readLoop would.
func (f *fakeTransport) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	cb := f.onClose
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

func (f *fakeTransport) sentMessages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

// fakeConn binds one dial outcome to the Client/generation the supervisor
// used for it, so a test can push inbound frames for that exact connection
// cycle after the fact.
type fakeConn struct {
	transport  *fakeTransport
	cl         *Client
	generation uint64
}

func (c *fakeConn) push(t *testing.T, msg map[string]interface{}) {
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	c.cl.post(cmdTransportMessage{generation: c.generation, data: data})
}

func (c *fakeConn) dropWithError(err error) {
	c.cl.post(cmdTransportClosed{generation: c.generation, err: err})
}

// fakeDialerCtl records every dial the supervisor makes. By default every
// dial succeeds immediately with a fresh fakeTransport; failNextDials lets a
// test script N consecutive failures first, to drive the Connection
// Supervisor's exhaustion/rotation branch the way a real flaky endpoint
// would.
type fakeDialerCtl struct {
	mu         sync.Mutex
	conns      []*fakeConn
	dialedURIs []string
	failLeft   int
}

func (ctl *fakeDialerCtl) dial(_ context.Context, uri string, cl *Client, generation uint64) (transport, error) {
	ctl.mu.Lock()
	ctl.dialedURIs = append(ctl.dialedURIs, uri)
	if ctl.failLeft > 0 {
		ctl.failLeft--
		ctl.mu.Unlock()
		return nil, errors.New("fakeDialerCtl: scripted dial failure")
	}
	ft := &fakeTransport{}
	fc := &fakeConn{transport: ft, cl: cl, generation: generation}
	ft.onClose = func() { cl.post(cmdTransportClosed{generation: generation, err: errors.New("fakeTransport: closed")}) }
	ctl.conns = append(ctl.conns, fc)
	ctl.mu.Unlock()
	return fc.transport, nil
}

// failNextDials scripts the next n calls to dial to fail before dialing
// resumes succeeding.
func (ctl *fakeDialerCtl) failNextDials(n int) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	ctl.failLeft = n
}

func (ctl *fakeDialerCtl) uris() []string {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	out := make([]string, len(ctl.dialedURIs))
	copy(out, ctl.dialedURIs)
	return out
}

func (ctl *fakeDialerCtl) count() int {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return len(ctl.conns)
}

func (ctl *fakeDialerCtl) at(i int) *fakeConn {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return ctl.conns[i]
}

func (ctl *fakeDialerCtl) latest() *fakeConn {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return ctl.conns[len(ctl.conns)-1]
}

func newTestClient(t *testing.T, ctl *fakeDialerCtl, opts ...Option) *Client {
	all := append([]Option{WithDialer(ctl.dial), WithConnectAttemptTimeout(1)}, opts...)
	cl, err := New([]string{"wss://test.example"}, all...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close(nil) })
	return cl
}

func ledgerClosedFrame(index int) map[string]interface{} {
	return map[string]interface{}{
		"type":              "ledgerClosed",
		"ledger_index":      index,
		"validated_ledgers": "1-" + strconv.Itoa(index),
		"reserve_base":      10000000,
		"reserve_inc":       2000000,
	}
}

func TestClientGoesOnlineAfterLedgerClosed(t *testing.T) {
	require := require.New(t)
	ctl := &fakeDialerCtl{}
	cl := newTestClient(t, ctl)

	require.Eventually(func() bool { return ctl.count() >= 1 }, 2*time.Second, 10*time.Millisecond)
	conn := ctl.at(0)

	require.False(cl.GetState().Online)

	conn.push(t, ledgerClosedFrame(100))

	require.Eventually(func() bool { return cl.GetState().Online }, 2*time.Second, 10*time.Millisecond)

	state := cl.GetState()
	require.EqualValues(100, state.Ledger.Last)
	require.InDelta(10.0, *state.Reserve.Base, 0.0001)
	require.InDelta(2.0, *state.Reserve.Owner, 0.0001)

	require.NoError(cl.Ready())
	require.True(cl.IsOnline(), "IsOnline must observe the same transition GetState().Online did")
}

func TestIsOnlineMatchesGetStateAcrossDisconnect(t *testing.T) {
	require := require.New(t)
	ctl := &fakeDialerCtl{}
	cl := newTestClient(t, ctl)

	require.False(cl.IsOnline())

	require.Eventually(func() bool { return ctl.count() >= 1 }, 2*time.Second, 10*time.Millisecond)
	conn := ctl.at(0)
	conn.push(t, ledgerClosedFrame(1))
	require.Eventually(cl.IsOnline, 2*time.Second, 10*time.Millisecond)

	conn.dropWithError(errors.New("connection reset"))
	require.Eventually(func() bool { return !cl.IsOnline() }, 2*time.Second, 10*time.Millisecond)
}

func TestClientSendResolvesOnMatchingReply(t *testing.T) {
	require := require.New(t)
	ctl := &fakeDialerCtl{}
	cl := newTestClient(t, ctl)

	require.Eventually(func() bool { return ctl.count() >= 1 }, 2*time.Second, 10*time.Millisecond)
	conn := ctl.at(0)
	conn.push(t, ledgerClosedFrame(1))
	require.Eventually(func() bool { return cl.GetState().Online }, 2*time.Second, 10*time.Millisecond)

	type sendOutcome struct {
		value json.RawMessage
		err   error
	}
	resultCh := make(chan sendOutcome, 1)
	go func() {
		v, err := cl.Send(map[string]interface{}{"command": "account_info", "id": "caller-id"}, SendOptions{})
		resultCh <- sendOutcome{value: v, err: err}
	}()

	var envelopeID interface{}
	require.Eventually(func() bool {
		for _, raw := range conn.transport.sentMessages() {
			var decoded map[string]interface{}
			if err := json.Unmarshal(raw, &decoded); err != nil {
				continue
			}
			if decoded["command"] == "account_info" {
				envelopeID = decoded["id"]
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	reply := map[string]interface{}{
		"id":     envelopeID,
		"status": "success",
		"result": map[string]interface{}{"account_data": map[string]interface{}{"Balance": "1000"}},
	}
	conn.push(t, reply)

	select {
	case out := <-resultCh:
		require.NoError(out.err)
		var parsed map[string]interface{}
		require.NoError(json.Unmarshal(out.value, &parsed))
		accountData, ok := parsed["account_data"].(map[string]interface{})
		require.True(ok)
		require.Equal("1000", accountData["Balance"])
	case <-time.After(2 * time.Second):
		require.Fail("Send did not resolve in time")
	}
}

func TestClientSubscribeReplaysAcrossReconnect(t *testing.T) {
	require := require.New(t)
	ctl := &fakeDialerCtl{}
	cl := newTestClient(t, ctl)

	require.Eventually(func() bool { return ctl.count() >= 1 }, 2*time.Second, 10*time.Millisecond)
	first := ctl.at(0)
	first.push(t, ledgerClosedFrame(1))
	require.Eventually(func() bool { return cl.GetState().Online }, 2*time.Second, 10*time.Millisecond)

	subDone := make(chan error, 1)
	go func() {
		_, err := cl.Send(map[string]interface{}{"command": "subscribe", "streams": []interface{}{"transactions"}}, SendOptions{})
		subDone <- err
	}()

	var subID interface{}
	require.Eventually(func() bool {
		for _, raw := range first.transport.sentMessages() {
			var decoded map[string]interface{}
			if err := json.Unmarshal(raw, &decoded); err != nil {
				continue
			}
			if decoded["command"] == "subscribe" {
				if streams, ok := decoded["streams"].([]interface{}); ok && len(streams) == 1 && streams[0] == "transactions" {
					subID = decoded["id"]
					return true
				}
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	first.push(t, map[string]interface{}{"id": subID, "status": "success", "result": map[string]interface{}{}})
	require.NoError(<-subDone)

	first.dropWithError(errors.New("connection reset"))

	require.Eventually(func() bool { return ctl.count() >= 2 }, 4*time.Second, 10*time.Millisecond)
	second := ctl.at(1)
	second.push(t, ledgerClosedFrame(2))

	require.Eventually(func() bool { return cl.GetState().Online }, 2*time.Second, 10*time.Millisecond)

	require.Eventually(func() bool {
		for _, raw := range second.transport.sentMessages() {
			var decoded map[string]interface{}
			if err := json.Unmarshal(raw, &decoded); err != nil {
				continue
			}
			// the internal ledger-subscribe probe also has command "subscribe"
			// but only ever names the "ledger" stream; the caller's replayed
			// subscription is the one naming "transactions".
			if decoded["command"] == "subscribe" {
				if streams, ok := decoded["streams"].([]interface{}); ok && len(streams) == 1 && streams[0] == "transactions" {
					return true
				}
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClientCloseIsIdempotent(t *testing.T) {
	require := require.New(t)
	ctl := &fakeDialerCtl{}
	cl, err := New([]string{"wss://test.example"}, WithDialer(ctl.dial), WithConnectAttemptTimeout(1))
	require.NoError(err)

	require.NoError(cl.Close(nil))
	err = cl.Close(nil)
	require.ErrorIs(err, ErrAlreadyClosed)

	require.False(cl.GetState().Online)
}

func TestSendRejectsNonObjectCommand(t *testing.T) {
	require := require.New(t)
	ctl := &fakeDialerCtl{}
	cl := newTestClient(t, ctl)

	_, err := cl.Send(map[string]interface{}{"notCommand": true}, SendOptions{})
	require.Error(err)
	var cerr *ClientError
	require.ErrorAs(err, &cerr)
	require.Equal(KindCallRejectedSemantic, cerr.Kind)
}

func TestSendRejectsLedgerOnlyUnsubscribe(t *testing.T) {
	require := require.New(t)
	ctl := &fakeDialerCtl{}
	cl := newTestClient(t, ctl)

	_, err := cl.Send(map[string]interface{}{
		"command": "UNSUBSCRIBE",
		"streams": []interface{}{"ledger"},
	}, SendOptions{})
	require.ErrorIs(err, ErrLedgerOnlyUnsubscribeForbidden)
}

// TestEndpointRotationAfterRepeatedConnectFailures: with two endpoints
// configured, three failed connects against the first rotate the cursor to
// the second (emitting nodeswitch and resetting the attempt counter), and
// three more failures against the second wrap the cursor back to the first
// (emitting round on top of the nodeswitch).
func TestEndpointRotationAfterRepeatedConnectFailures(t *testing.T) {
	require := require.New(t)
	ctl := &fakeDialerCtl{}
	ctl.failNextDials(6)

	var mu sync.Mutex
	var switches []NodeSwitchEvent
	rounds := 0

	cl, err := New([]string{"wss://a.example", "wss://b.example"},
		WithDialer(ctl.dial), WithConnectAttemptTimeout(1))
	require.NoError(err)
	t.Cleanup(func() { _ = cl.Close(nil) })

	cl.OnNodeSwitch(func(e NodeSwitchEvent) {
		mu.Lock()
		defer mu.Unlock()
		switches = append(switches, e)
	})
	cl.OnRound(func() {
		mu.Lock()
		defer mu.Unlock()
		rounds++
	})

	require.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(switches) >= 1
	}, 10*time.Second, 10*time.Millisecond, "expected a nodeswitch once three connects against the first endpoint failed")

	mu.Lock()
	require.Equal("wss://b.example", switches[0].Endpoint)
	mu.Unlock()

	require.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return rounds >= 1
	}, 10*time.Second, 10*time.Millisecond, "expected a round once the cursor wrapped back past the second endpoint")

	mu.Lock()
	require.Len(switches, 2, "one nodeswitch for the rotation to B, one for the wrap back to A")
	require.Equal("wss://a.example", switches[1].Endpoint)
	mu.Unlock()

	require.Eventually(func() bool { return len(ctl.uris()) >= 7 }, 5*time.Second, 10*time.Millisecond,
		"the 7th dial (the first to succeed) should have been issued by now")
	require.Equal([]string{
		"wss://a.example", "wss://a.example", "wss://a.example",
		"wss://b.example", "wss://b.example", "wss://b.example",
		"wss://a.example",
	}, ctl.uris()[:7])

	require.Eventually(func() bool { return cl.GetState().Online || ctl.count() >= 1 }, 5*time.Second, 10*time.Millisecond)
}

// TestWatchdogForcesReconnectAndResubscribe: once Online, withholding every
// ledgerClosed frame past assumeOfflineAfterSeconds makes the Liveness
// Watchdog force-close the transport; the client observes offline then
// retry, and a subscription registered before the drop is replayed once it
// reaches Online again.
func TestWatchdogForcesReconnectAndResubscribe(t *testing.T) {
	require := require.New(t)
	ctl := &fakeDialerCtl{}
	cl := newTestClient(t, ctl, WithAssumeOfflineAfter(0.2))

	var offlineCount, retryCount int32
	cl.OnOffline(func() { atomic.AddInt32(&offlineCount, 1) })
	cl.OnRetry(func(RetryEvent) { atomic.AddInt32(&retryCount, 1) })

	require.Eventually(func() bool { return ctl.count() >= 1 }, 2*time.Second, 10*time.Millisecond)
	first := ctl.at(0)
	first.push(t, ledgerClosedFrame(1))
	require.Eventually(func() bool { return cl.GetState().Online }, 2*time.Second, 10*time.Millisecond)

	go func() {
		_, _ = cl.Send(map[string]interface{}{"command": "subscribe", "streams": []interface{}{"transactions"}}, SendOptions{SendIfNotReady: true})
	}()
	require.Eventually(func() bool {
		for _, raw := range first.transport.sentMessages() {
			var decoded map[string]interface{}
			if err := json.Unmarshal(raw, &decoded); err != nil {
				continue
			}
			if decoded["command"] == "subscribe" {
				if streams, ok := decoded["streams"].([]interface{}); ok && len(streams) == 1 && streams[0] == "transactions" {
					return true
				}
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	// Withhold every further ledgerClosed frame past the 0.2s window: the
	// watchdog must force-close this connection's transport on its own.
	require.Eventually(func() bool { return first.transport.closed }, 2*time.Second, 10*time.Millisecond,
		"liveness watchdog should have closed the transport once the window elapsed with no ledgerClosed frame")

	require.Eventually(func() bool { return atomic.LoadInt32(&offlineCount) >= 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(func() bool { return atomic.LoadInt32(&retryCount) >= 1 }, 2*time.Second, 10*time.Millisecond)

	require.Eventually(func() bool { return ctl.count() >= 2 }, 5*time.Second, 10*time.Millisecond)
	second := ctl.at(1)
	second.push(t, ledgerClosedFrame(2))
	require.Eventually(func() bool { return cl.GetState().Online }, 2*time.Second, 10*time.Millisecond)

	require.Eventually(func() bool {
		for _, raw := range second.transport.sentMessages() {
			var decoded map[string]interface{}
			if err := json.Unmarshal(raw, &decoded); err != nil {
				continue
			}
			if decoded["command"] == "subscribe" {
				if streams, ok := decoded["streams"].([]interface{}); ok && len(streams) == 1 && streams[0] == "transactions" {
					return true
				}
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond, "subscription made before the drop must be replayed on the next connection")
}

func TestGetStateOnNewClientIsOffline(t *testing.T) {
	require := require.New(t)
	ctl := &fakeDialerCtl{}
	cl := newTestClient(t, ctl)

	state := cl.GetState()
	require.False(state.Online)
	require.Zero(state.Ledger.Last)
}
