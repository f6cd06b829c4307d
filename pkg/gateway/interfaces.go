package gateway

import (
	"context"
	"io"
)

// Close codes passed to Transport.Close. Values follow the WebSocket
// close-status registry.
const (
	// CloseNormal is used for a graceful, caller-initiated removal.
	CloseNormal = 1000
	// CloseServiceRestart is used for every connection closed during a
	// gateway shutdown.
	CloseServiceRestart = 1012
)

// Transport is the socket session of a single client. Implementations own
// the wire framing; all methods may suspend and must honor the context
// where one is accepted.
type Transport interface {
	// Accept completes the session handshake. The connection is only
	// registered with the gateway after Accept returns nil.
	Accept(ctx context.Context) error

	// Send writes one payload to the client as a single frame.
	Send(ctx context.Context, data []byte) error

	// Close performs the closing handshake with the given close code and
	// releases the underlying socket. Calling Close on a transport that
	// already reported disconnection is an error.
	Close(code int) error
}

// BrokerMessage is one message delivered on a broker subscription. The
// channel name doubles as the routing topic.
type BrokerMessage struct {
	Channel string
	Data    []byte
}

// Broker is a pub/sub client for the shared channel that links gateway
// instances together. Implementations must filter out their own
// subscribe/unsubscribe acknowledgements so that NextMessage only ever
// yields data messages.
type Broker interface {
	io.Closer

	// Publish sends data to every subscriber of the channel, including
	// this client if it is subscribed.
	Publish(ctx context.Context, channel string, data []byte) error

	// Subscribe registers interest in a channel. It must be called before
	// NextMessage.
	Subscribe(ctx context.Context, channel string) error

	// NextMessage blocks until the next data message is delivered on the
	// subscription, the context is cancelled, or the broker is closed.
	NextMessage(ctx context.Context) (BrokerMessage, error)
}
