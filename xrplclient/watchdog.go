package xrplclient

import "time"

// armWatchdog (re)arms the liveness timer for the current transport
// generation, replacing whatever was previously armed. It is called on
// every ledger event and from alive(). A generation tag on the resulting
// command means a watchdog left over from an abandoned transport can never
// force-close a transport that superseded it.
func (cl *Client) armWatchdog(generation uint64) {
	if cl.watchdogTimer != nil {
		cl.watchdogTimer.Stop()
	}
	window := cl.cfg.AssumeOfflineAfterSeconds
	if window <= 0 {
		window = defaultAssumeOfflineAfterSeconds
	}
	cl.watchdogTimer = time.AfterFunc(time.Duration(window*float64(time.Second)), func() {
		cl.post(cmdWatchdogFired{generation: generation})
	})
}

// alive is the explicit "I have evidence the link is up" trigger mentioned
// in the spec alongside ledger events; nothing currently calls it besides
// ledger events, but it exists as the named seam for that rule.
func (cl *Client) alive() {
	cl.armWatchdog(cl.transportGen)
}

// handleWatchdogFired implements "if it fires while uplinkReady is true it
// closes the transport... if fired before the first Online it is a no-op".
func (cl *Client) handleWatchdogFired(generation uint64) {
	if generation != cl.transportGen {
		return
	}
	if !cl.uplinkReady {
		return
	}
	cl.logger.Debug("liveness watchdog fired, forcing reconnect")
	cl.closeTransport()
}
