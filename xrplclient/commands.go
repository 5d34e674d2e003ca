package xrplclient

import "encoding/json"

// Every public operation that needs to touch shared state is translated
// into one of these values and sent over Client.cmds; Client.loop is the
// only goroutine that ever reads that channel, which is what makes the
// rest of the package lock-free.
type (
	cmdSend struct {
		req   map[string]interface{}
		opts  SendOptions
		reply chan sendResult
	}

	cmdReady struct {
		reply chan error
	}

	cmdGetState struct {
		reply chan ConnectionState
	}

	cmdClose struct {
		cause error
		reply chan error
	}

	// cmdDialResult is posted by the connect goroutine once
	// DialContext returns, successfully or not.
	cmdDialResult struct {
		generation uint64
		conn       transport
		err        error
	}

	cmdTransportMessage struct {
		generation uint64
		data       []byte
	}

	cmdTransportClosed struct {
		generation uint64
		err        error
	}

	cmdReconnectTick struct {
		generation uint64
	}

	cmdCallTimeout struct {
		internalID uint64
		seconds    float64
	}

	cmdWatchdogFired struct {
		generation uint64
	}

	// cmdDeadConnectFired is posted by the dead-connect timer armed in
	// supervisor.go's connect(); DESIGN.md records how that timer's budget
	// is chosen.
	cmdDeadConnectFired struct {
		generation uint64
	}
)

type sendResult struct {
	value json.RawMessage
	err   error
}
