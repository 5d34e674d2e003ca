package xrplclient

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCallRegistryPendingLifecycle(t *testing.T) {
	require := require.New(t)

	r := newCallRegistry()
	id := r.nextID()
	c := newCall(id, map[string]interface{}{"command": "account_info"}, "account_info", nil, CallKindOneShot, SendOptions{}, nil)
	r.insertPending(c)

	got, ok := r.takePending(id)
	require.True(ok)
	require.Same(c, got)

	_, ok = r.takePending(id)
	require.False(ok)
}

func TestCallRegistrySubscriptionLifecycle(t *testing.T) {
	require := require.New(t)

	r := newCallRegistry()
	id := r.nextID()
	c := newCall(id, map[string]interface{}{"command": "subscribe"}, "subscribe", []string{"ledger"}, CallKindSubscription, SendOptions{}, nil)
	r.insertSubscription(c)

	got, ok := r.getSubscription(id)
	require.True(ok)
	require.Same(c, got)

	r.removeSubscription(id)
	_, ok = r.getSubscription(id)
	require.False(ok)
}

func TestRemoveSubscriptionsMatching(t *testing.T) {
	require := require.New(t)

	r := newCallRegistry()
	ledgerSub := newCall(r.nextID(), nil, "subscribe", []string{"ledger", "transactions"}, CallKindSubscription, SendOptions{}, nil)
	otherSub := newCall(r.nextID(), nil, "subscribe", []string{"validations"}, CallKindSubscription, SendOptions{}, nil)
	pathFind := newCall(r.nextID(), nil, "path_find", nil, CallKindSubscription, SendOptions{}, nil)
	r.insertSubscription(ledgerSub)
	r.insertSubscription(otherSub)
	r.insertSubscription(pathFind)

	r.removeSubscriptionsMatching([]string{"transactions"})

	_, ok := r.getSubscription(ledgerSub.internalID)
	require.False(ok, "subscribe naming a removed stream should be dropped")
	_, ok = r.getSubscription(otherSub.internalID)
	require.True(ok, "subscribe not naming the removed stream should survive")
	_, ok = r.getSubscription(pathFind.internalID)
	require.True(ok, "non-subscribe commands are never touched")
}

func TestFlushSetExcludesNoReplayAfterReconnect(t *testing.T) {
	require := require.New(t)

	r := newCallRegistry()
	replay := newCall(r.nextID(), nil, "account_info", nil, CallKindOneShot, SendOptions{}, nil)
	skip := newCall(r.nextID(), nil, "account_info", nil, CallKindOneShot, SendOptions{NoReplayAfterReconnect: true}, nil)
	sub := newCall(r.nextID(), nil, "subscribe", []string{"ledger"}, CallKindSubscription, SendOptions{}, nil)
	r.insertPending(replay)
	r.insertPending(skip)
	r.insertSubscription(sub)

	set := r.flushSet()
	require.Len(set, 2)
	require.Contains(set, replay)
	require.Contains(set, sub)
	require.NotContains(set, skip)
}

func TestDrainAllEmptiesBothMaps(t *testing.T) {
	require := require.New(t)

	r := newCallRegistry()
	r.insertPending(newCall(r.nextID(), nil, "account_info", nil, CallKindOneShot, SendOptions{}, nil))
	r.insertSubscription(newCall(r.nextID(), nil, "subscribe", []string{"ledger"}, CallKindSubscription, SendOptions{}, nil))

	drained := r.drainAll()
	require.Len(drained, 2)
	require.Empty(r.pending)
	require.Empty(r.subscriptions)
}
