package registry

import (
	"context"
	"sync"

	"github.com/Daovouslabs/wsgateway-go/pkg/gateway"
	"github.com/Daovouslabs/wsgateway-go/pkg/topicmatch"
)

// State is the lifecycle state of a Connection.
type State int32

const (
	// StateOpen means the connection is registered and deliverable.
	StateOpen State = iota
	// StateClosed means the connection has been closed; it is never
	// reused or re-registered.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is one client socket session registered with the gateway. It
// carries an optional subscription pattern; a connection without a pattern
// receives only broadcasts.
//
// A Connection's own fields are touched only by the task working on its
// behalf; the write lock serializes frame writes so a cancelled delivery
// can never leave a half-written frame behind.
type Connection struct {
	id        string
	pattern   string
	transport gateway.Transport

	mu    sync.Mutex
	state State
}

func newConnection(transport gateway.Transport, id, pattern string) *Connection {
	return &Connection{
		id:        id,
		pattern:   pattern,
		transport: transport,
		state:     StateOpen,
	}
}

// ID returns the caller-supplied connection identifier.
func (c *Connection) ID() string {
	return c.id
}

// Pattern returns the subscription pattern, or "" if the connection only
// receives broadcasts.
func (c *Connection) Pattern() string {
	return c.pattern
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Matches reports whether a message on topic should be delivered to this
// connection. Connections without a pattern match nothing.
func (c *Connection) Matches(topic string) bool {
	return c.pattern != "" && topicmatch.Match(topic, c.pattern)
}

// Send writes one payload frame to the client. It refuses to start the
// write once the context is cancelled or the connection is closed.
func (c *Connection) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.transport.Send(ctx, data)
}

// close performs the closing handshake exactly once. A second close, or a
// close after markClosed, returns ErrTransportClosed.
func (c *Connection) close(code int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return ErrTransportClosed
	}
	c.state = StateClosed
	return c.transport.Close(code)
}

// markClosed records that the transport already reported disconnection, so
// no closing handshake will be attempted.
func (c *Connection) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateClosed
}
