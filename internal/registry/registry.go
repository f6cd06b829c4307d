// Package registry owns the set of active client connections of one
// gateway instance. The registry is explicitly constructed and explicitly
// owned; there is no package-level state. Insertion order is preserved and
// is the delivery order for fan-out.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Daovouslabs/wsgateway-go/pkg/gateway"
)

var (
	// ErrHandshake is returned when a transport's accept fails; the
	// connection is never registered.
	ErrHandshake = errors.New("transport handshake failed")
	// ErrDuplicateID is returned when a connection id is already registered.
	ErrDuplicateID = errors.New("connection id already registered")
	// ErrNotRegistered is returned when removing a connection that is not
	// in the registry. Removal is not idempotent; removing twice is a
	// caller error.
	ErrNotRegistered = errors.New("connection not registered")
	// ErrTransportClosed is returned for a graceful close of a connection
	// whose transport is already closed; callers should have used
	// RawRemoveConnection instead.
	ErrTransportClosed = errors.New("transport already closed")
)

// Registry maps connection ids to live Connections. It is safe for
// concurrent use; every mutation happens under a single lock so that
// interleavings at suspension points cannot corrupt the set.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Connection
	order  []*Connection
	logger *slog.Logger
}

// New creates an empty connection registry. A nil logger falls back to
// slog.Default.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:  make(map[string]*Connection),
		logger: logger.With("component", "registry"),
	}
}

// NewConnection builds a Connection bound to transport, id and pattern,
// performs the transport handshake and registers it. On any failure the
// connection is never inserted. Pattern may be empty for a broadcast-only
// connection.
func (r *Registry) NewConnection(ctx context.Context, transport gateway.Transport, id, pattern string) (*Connection, error) {
	if transport == nil {
		return nil, errors.New("transport cannot be nil")
	}
	if id == "" {
		return nil, errors.New("connection id cannot be empty")
	}

	conn := newConnection(transport, id, pattern)
	if err := r.connect(ctx, conn); err != nil {
		return nil, err
	}

	r.logger.Debug("connection registered", "conn_id", id, "pattern", pattern)
	return conn, nil
}

// RemoveConnection performs the closing handshake with the given close
// code, then deregisters the connection. Use it while the transport is
// still usable; if the transport already reported disconnection the call
// fails with ErrTransportClosed and the registry is left untouched.
func (r *Registry) RemoveConnection(conn *Connection, code int) error {
	if err := conn.close(code); err != nil {
		return err
	}
	if err := r.disconnect(conn); err != nil {
		return err
	}

	r.logger.Debug("connection removed", "conn_id", conn.ID(), "code", code)
	return nil
}

// RawRemoveConnection deregisters the connection without a closing
// handshake. Use it exactly when the transport has already reported
// disconnection.
func (r *Registry) RawRemoveConnection(conn *Connection) error {
	conn.markClosed()
	if err := r.disconnect(conn); err != nil {
		return err
	}

	r.logger.Debug("connection removed without close", "conn_id", conn.ID())
	return nil
}

// Snapshot returns the registered connections in insertion order. The
// returned slice is a copy; callers may iterate it while the registry
// keeps changing.
func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, len(r.order))
	copy(out, r.order)
	return out
}

// Get returns the connection registered under id.
func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[id]
	return conn, ok
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// connect accepts the transport handshake and inserts the connection.
func (r *Registry) connect(ctx context.Context, conn *Connection) error {
	if err := conn.transport.Accept(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[conn.id]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateID, conn.id)
	}
	r.conns[conn.id] = conn
	r.order = append(r.order, conn)
	return nil
}

// disconnect removes the connection from the registry exactly once.
func (r *Registry) disconnect(conn *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[conn.id]; !exists {
		return fmt.Errorf("%w: %q", ErrNotRegistered, conn.id)
	}
	delete(r.conns, conn.id)
	for i, c := range r.order {
		if c == conn {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}
