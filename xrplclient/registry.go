package xrplclient

import "sort"

// callRegistry allocates internal call ids and tracks the two disjoint sets
// of outstanding calls. A call is in at most one of pending/subscriptions
// at any moment; insertion and removal are the only ways a call moves
// between "nowhere" and one of the two maps, and nothing here ever touches
// a mutex: the registry is loop-goroutine-only.
type callRegistry struct {
	counter       uint64
	pending       map[uint64]*call
	subscriptions map[uint64]*call
}

func newCallRegistry() *callRegistry {
	return &callRegistry{
		pending:       make(map[uint64]*call),
		subscriptions: make(map[uint64]*call),
	}
}

func (r *callRegistry) nextID() uint64 {
	r.counter++
	return r.counter
}

func (r *callRegistry) insertPending(c *call) {
	r.pending[c.internalID] = c
}

func (r *callRegistry) insertSubscription(c *call) {
	r.subscriptions[c.internalID] = c
}

func (r *callRegistry) takePending(id uint64) (*call, bool) {
	c, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	return c, ok
}

func (r *callRegistry) getSubscription(id uint64) (*call, bool) {
	c, ok := r.subscriptions[id]
	return c, ok
}

func (r *callRegistry) removeSubscription(id uint64) {
	delete(r.subscriptions, id)
}

// findSubscription returns a live subscription matching the given
// predicate; when several match, which one is returned is not defined. Used
// by the router's fallback dispatch, which has no internalId to key off of
// and instead matches by the stored request's command/streams.
func (r *callRegistry) findSubscription(match func(*call) bool) (*call, bool) {
	for _, c := range r.subscriptions {
		if match(c) {
			return c, true
		}
	}
	return nil, false
}

// removeSubscriptionsMatching drops every live "subscribe" Subscription
// that named at least one of streams, as the side effect of an
// acknowledged unsubscribe. Real XRPL streams are not addressed by a
// per-subscription id, only by stream name, so this is stream-granular
// rather than tied to one specific original subscribe call.
func (r *callRegistry) removeSubscriptionsMatching(streams []string) {
	if len(streams) == 0 {
		return
	}
	for id, c := range r.subscriptions {
		if c.command != "subscribe" {
			continue
		}
		for _, s := range streams {
			if containsStream(c.streams, s) {
				delete(r.subscriptions, id)
				break
			}
		}
	}
}

// drainAll removes and returns every outstanding call (pending and
// subscriptions), leaving both maps empty. Used by hard close.
func (r *callRegistry) drainAll() []*call {
	out := make([]*call, 0, len(r.pending)+len(r.subscriptions))
	for _, c := range r.pending {
		out = append(out, c)
	}
	for _, c := range r.subscriptions {
		out = append(out, c)
	}
	r.pending = make(map[uint64]*call)
	r.subscriptions = make(map[uint64]*call)
	return out
}

// flushSet returns, in send order, every call that should be (re)transmitted
// right after the client goes Online: pending calls first (excluding those
// opted out of replay), then every subscription.
func (r *callRegistry) flushSet() []*call {
	out := make([]*call, 0, len(r.pending)+len(r.subscriptions))
	for _, c := range r.pending {
		if c.opts.NoReplayAfterReconnect {
			continue
		}
		out = append(out, c)
	}
	nPending := len(out)
	for _, c := range r.subscriptions {
		out = append(out, c)
	}
	// internal ids are allocated in send order, so sorting by them restores
	// it within each group.
	byID := func(s []*call) func(i, j int) bool {
		return func(i, j int) bool { return s[i].internalID < s[j].internalID }
	}
	sort.Slice(out[:nPending], byID(out[:nPending]))
	sort.Slice(out[nPending:], byID(out[nPending:]))
	return out
}
