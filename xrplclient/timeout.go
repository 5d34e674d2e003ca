package xrplclient

import "time"

// armDeadline starts c's timeout timer, which posts a cmdCallTimeout command
// back onto the client's loop when it fires. Arming is a no-op if the call
// has no timeout configured or is already armed; both keep "armed exactly
// once" true regardless of call site.
func (cl *Client) armDeadline(c *call) {
	if c.armed || c.opts.TimeoutSeconds <= 0 {
		return
	}
	c.armed = true
	seconds := c.opts.TimeoutSeconds
	c.deadlineTimer = time.AfterFunc(time.Duration(seconds*float64(time.Second)), func() {
		cl.post(cmdCallTimeout{internalID: c.internalID, seconds: seconds})
	})
}

// cancelDeadline stops a call's timer if one is running. It is always safe
// to call, including after the timer already fired (best-effort per spec).
func cancelDeadline(c *call) {
	if c.deadlineTimer != nil {
		c.deadlineTimer.Stop()
	}
}

// handleCallTimeout races the call's future against the timer firing: if
// the call is still outstanding (present in pending/subscriptions and not
// yet resolved), it is rejected; otherwise this is a no-op, satisfying
// "robust to being cleared after firing" and "a resolved call's future is
// never rejected, and vice versa".
func (cl *Client) handleCallTimeout(internalID uint64, seconds float64) {
	if c, ok := cl.registry.takePending(internalID); ok {
		cl.rejectCall(c, newClientError(KindCallTimeout, errCallTimeout(seconds)))
		return
	}
	if c, ok := cl.registry.getSubscription(internalID); ok && !c.resolved {
		cl.registry.removeSubscription(internalID)
		cl.rejectCall(c, newClientError(KindCallTimeout, errCallTimeout(seconds)))
	}
}
