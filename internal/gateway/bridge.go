// Package gateway implements the bridge between the local connection
// registry and the shared broker channel. The bridge owns the gateway's
// lifecycle: it subscribes to the channel on startup, drains broker
// messages into the broadcaster for the lifetime of the instance, forwards
// locally published messages outward, and tears everything down on
// shutdown.
//
// Routing state never crosses instances directly: each instance only
// knows which of its own connections subscribed to what, and everything
// published goes through the broker. That is what lets any number of
// gateway processes share subscriber state transparently.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Daovouslabs/wsgateway-go/internal/broadcast"
	"github.com/Daovouslabs/wsgateway-go/internal/metrics"
	"github.com/Daovouslabs/wsgateway-go/internal/registry"
	"github.com/Daovouslabs/wsgateway-go/pkg/envelope"
	"github.com/Daovouslabs/wsgateway-go/pkg/gateway"
)

var (
	// ErrShuttingDown is returned for operations attempted once shutdown
	// has begun.
	ErrShuttingDown = errors.New("gateway is shutting down")
)

// State is the lifecycle state of a Bridge.
type State int32

const (
	// StateActive means the bridge is running and scheduling deliveries.
	StateActive State = iota
	// StateShuttingDown means shutdown has begun; no new deliveries or
	// connections are accepted.
	StateShuttingDown
	// StateStopped means shutdown has completed.
	StateStopped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateShuttingDown:
		return "shutting-down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Close codes, re-exported so bridge callers need not import the
// contract package.
const (
	CloseNormal         = gateway.CloseNormal
	CloseServiceRestart = gateway.CloseServiceRestart
)

// Bridge connects the connection registry and broadcaster to the external
// broker. It is safe for concurrent use.
type Bridge struct {
	config      *Config
	broker      gateway.Broker
	registry    *registry.Registry
	broadcaster *broadcast.Broadcaster
	logger      *slog.Logger
	metrics     *metrics.Metrics

	state atomic.Int32

	mu         sync.Mutex
	started    bool
	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics attaches Prometheus collectors. A nil value disables
// recording.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// New creates a Bridge over broker with the given configuration. The
// registry and broadcaster are constructed and owned by the bridge; their
// lifecycle is tied to Startup and Shutdown.
func New(config *Config, broker gateway.Broker, opts ...Option) (*Bridge, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if broker == nil {
		return nil, errors.New("broker cannot be nil")
	}

	b := &Bridge{
		config: config,
		broker: broker,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "bridge", "channel", config.Channel)

	b.registry = registry.New(b.logger)
	b.broadcaster = broadcast.New(b.registry,
		broadcast.WithLogger(b.logger),
		broadcast.WithMetrics(b.metrics),
		broadcast.WithWorkers(config.Workers),
		broadcast.WithQueueSize(config.QueueSize),
	)
	return b, nil
}

// Startup subscribes to the broker channel and starts the receive loop
// and the delivery workers. It is idempotent.
func (b *Bridge) Startup(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.State() != StateActive {
		return ErrShuttingDown
	}
	if b.started {
		return nil // already running, idempotent
	}

	if err := b.broker.Subscribe(ctx, b.config.Channel); err != nil {
		return fmt.Errorf("broker subscribe: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	if err := b.broadcaster.Start(loopCtx); err != nil {
		cancel()
		return err
	}
	b.loopCancel = cancel
	b.loopDone = make(chan struct{})
	go b.receiveLoop(loopCtx)

	b.started = true
	b.logger.Info("gateway started")
	return nil
}

// Shutdown stops the gateway: it cancels every tracked delivery, closes
// all active connections with the service-restart code, stops the receive
// loop and closes the broker handle. It is idempotent; once shutdown has
// begun, no new deliveries are scheduled.
func (b *Bridge) Shutdown(ctx context.Context) error {
	if !b.state.CompareAndSwap(int32(StateActive), int32(StateShuttingDown)) {
		return nil // already shutting down or stopped
	}
	b.logger.Info("gateway shutting down")

	// Cancel outstanding deliveries before touching connections so no
	// frame write races a close.
	b.broadcaster.Stop()

	for _, conn := range b.registry.Snapshot() {
		if err := b.registry.RemoveConnection(conn, gateway.CloseServiceRestart); err != nil {
			// The peer may have vanished mid-shutdown; fall back to the
			// no-close removal path so the registry still empties.
			if errors.Is(err, registry.ErrTransportClosed) {
				err = b.registry.RawRemoveConnection(conn)
			}
			if err != nil {
				b.logger.Warn("removing connection during shutdown",
					"conn_id", conn.ID(), "error", err)
				continue
			}
		}
		b.metrics.ConnectionClosed()
	}

	b.mu.Lock()
	cancel, done := b.loopCancel, b.loopDone
	b.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			b.logger.Warn("receive loop did not stop in time")
		}
	}

	if err := b.broker.Close(); err != nil {
		b.logger.Warn("closing broker", "error", err)
	}

	b.state.Store(int32(StateStopped))
	b.logger.Info("gateway stopped")
	return nil
}

// Publish forwards a locally originated payload outward to the shared
// broker channel. The instance's own subscribers see it only once it
// echoes back through the broker; there is deliberately no local
// short-circuit, so every instance observes the same stream.
func (b *Bridge) Publish(ctx context.Context, data []byte) error {
	if b.State() != StateActive {
		return ErrShuttingDown
	}
	if err := b.broker.Publish(ctx, b.config.Channel, data); err != nil {
		return fmt.Errorf("broker publish: %w", err)
	}
	b.metrics.Published()
	return nil
}

// PublishTagged tags a client payload with the envelope routing metadata
// and publishes it to the broker channel.
func (b *Bridge) PublishTagged(ctx context.Context, payload map[string]any, topic string) error {
	tagged := envelope.TagClientMessage(payload, topic)
	data, err := json.Marshal(tagged)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	return b.Publish(ctx, data)
}

// NewConnection registers a client connection with the gateway. It fails
// once shutdown has begun.
func (b *Bridge) NewConnection(ctx context.Context, transport gateway.Transport, id, pattern string) (*registry.Connection, error) {
	if b.State() != StateActive {
		return nil, ErrShuttingDown
	}
	conn, err := b.registry.NewConnection(ctx, transport, id, pattern)
	if err != nil {
		return nil, err
	}
	b.metrics.ConnectionOpened()
	return conn, nil
}

// RemoveConnection gracefully closes and deregisters a connection.
func (b *Bridge) RemoveConnection(conn *registry.Connection, code int) error {
	if err := b.registry.RemoveConnection(conn, code); err != nil {
		return err
	}
	b.metrics.ConnectionClosed()
	return nil
}

// RawRemoveConnection deregisters a connection whose transport already
// reported disconnection.
func (b *Bridge) RawRemoveConnection(conn *registry.Connection) error {
	if err := b.registry.RawRemoveConnection(conn); err != nil {
		return err
	}
	b.metrics.ConnectionClosed()
	return nil
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// Channel returns the configured broker channel.
func (b *Bridge) Channel() string {
	return b.config.Channel
}

// ConnectionCount returns the number of registered connections.
func (b *Bridge) ConnectionCount() int {
	return b.registry.Len()
}

// receiveLoop drains the broker subscription for the lifetime of the
// bridge, fanning every message out by its channel name (which doubles as
// the routing topic). Messages arriving mid-shutdown are dropped.
func (b *Bridge) receiveLoop(ctx context.Context) {
	defer close(b.loopDone)

	for {
		msg, err := b.broker.NextMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			// Transient faults are the broker client's to retry; an
			// error surfacing here means the subscription is gone.
			b.logger.Error("broker receive loop terminated", "error", err)
			return
		}
		b.metrics.Received()

		if b.State() != StateActive {
			continue
		}
		if err := b.broadcaster.Send(msg.Channel, msg.Data); err != nil {
			if errors.Is(err, broadcast.ErrStopped) {
				continue
			}
			b.logger.Warn("scheduling deliveries", "error", err)
		}
	}
}
