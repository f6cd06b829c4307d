// Package wstransport adapts a gorilla/websocket connection to the
// gateway.Transport contract.
package wstransport

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

// ErrPeerGone is returned by Receive when the peer closed the connection
// or the socket died; the caller must use the no-close removal path.
var ErrPeerGone = errors.New("peer closed the connection")

const defaultWriteTimeout = 10 * time.Second

// Conn wraps a *websocket.Conn as a gateway.Transport. Writes are
// serialized by the owning registry connection; Conn only adds deadlines
// and the close handshake.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
}

// New wraps an upgraded websocket connection.
func New(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws, writeTimeout: defaultWriteTimeout}
}

// Accept completes the session handshake. The HTTP upgrade already
// performed it for websockets, so this never fails here; upgrade errors
// surface before a Conn exists.
func (c *Conn) Accept(ctx context.Context) error {
	return ctx.Err()
}

// Send writes one payload as a single text frame. The write deadline
// comes from the context when it has one, the default otherwise.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close performs the websocket closing handshake with the given close
// code, then releases the socket.
func (c *Conn) Close(code int) error {
	deadline := time.Now().Add(c.writeTimeout)
	err := c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, ""), deadline)
	if closeErr := c.ws.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Receive blocks for the next text or binary frame from the client. A
// peer-initiated close or a dead socket returns ErrPeerGone.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.ws.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
	}

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
			websocket.IsUnexpectedCloseError(err) {
			return nil, ErrPeerGone
		}
		return nil, err
	}
	return data, nil
}
