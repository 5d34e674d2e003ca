package xrplclient

import (
	"context"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// transport is the seam between the Connection Supervisor and the wire. In
// production it is backed by *websocket.Conn; tests substitute a fake so the
// supervisor's state machine can be driven through scripted
// opens/closes/errors without a real socket. It is trimmed to exactly what
// the supervisor needs: send a frame, and close.
type transport interface {
	Send(data []byte) error
	Close() error
}

// dialer opens a transport to uri, with ctx bounding the attempt (by
// ConnectAttemptTimeoutSeconds, see supervisor.go). On success it is responsible for
// arranging delivery of subsequent frames/errors to cl, tagged with
// generation, before returning.
type dialer func(ctx context.Context, uri string, cl *Client, generation uint64) (transport, error)

func defaultDialer(ctx context.Context, uri string, cl *Client, generation uint64) (transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, uri, nil)
	if err != nil {
		return nil, err
	}
	go readLoop(cl, conn, generation)
	return &wsTransport{conn: conn}, nil
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Send(data []byte) error {
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// readLoop blocks reading frames from conn and forwards each one (or the
// terminal error) onto the client's command channel tagged with
// [generation], so the loop goroutine can discard frames belonging to a
// transport it has already abandoned. This is the only goroutine allowed to
// call conn.ReadMessage, matching the "exclusively owned by the Supervisor"
// resource-discipline rule applied to reads.
func readLoop(cl *Client, conn *websocket.Conn, generation uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			cl.post(cmdTransportClosed{generation: generation, err: err})
			return
		}
		cl.post(cmdTransportMessage{generation: generation, data: data})
	}
}

func (cl *Client) logTransportErr(context string, err error) {
	cl.logger.Debug("transport error", zap.String("context", context), zap.Error(err))
}
