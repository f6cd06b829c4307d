// Package broadcast implements the fan-out engine between the broker
// subscription and the local client connections.
//
// Deliveries run on a fixed-size worker pool fed by a bounded queue. The
// queue bound is the gateway's only backpressure point: when every worker
// is busy and the queue is full, scheduling blocks the submitter (the
// broker receive loop) instead of growing unbounded. Each delivery is an
// independent attempt with isolated error handling, so one failing or slow
// connection cannot abort or stall delivery to the rest.
package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Daovouslabs/wsgateway-go/internal/metrics"
	"github.com/Daovouslabs/wsgateway-go/internal/registry"
)

var (
	// ErrNotStarted is returned when scheduling before Start.
	ErrNotStarted = errors.New("broadcaster not started")
	// ErrStopped is returned when scheduling after Stop; pending
	// deliveries have been cancelled.
	ErrStopped = errors.New("broadcaster stopped")
)

const (
	defaultWorkers   = 8
	defaultQueueSize = 256
)

// delivery is one scheduled write of a payload to a single connection.
type delivery struct {
	conn *registry.Connection
	data []byte
}

// Broadcaster delivers payloads to the subset of registered connections
// whose pattern matches a topic, or to all of them. It is safe for
// concurrent use.
type Broadcaster struct {
	registry *registry.Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics

	workers   int
	queueSize int

	mu      sync.Mutex
	started bool
	stopped bool
	queue   chan delivery
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broadcaster) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics attaches Prometheus collectors. A nil value disables
// recording.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broadcaster) {
		b.metrics = m
	}
}

// WithWorkers sets the number of delivery workers.
func WithWorkers(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithQueueSize sets the delivery queue bound.
func WithQueueSize(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// New creates a Broadcaster over reg. Call Start before scheduling.
func New(reg *registry.Registry, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		registry:  reg,
		logger:    slog.Default(),
		workers:   defaultWorkers,
		queueSize: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "broadcaster")
	return b
}

// Start launches the delivery workers. The workers run until Stop or
// until ctx is cancelled.
func (b *Broadcaster) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return ErrStopped
	}
	if b.started {
		return nil // already running, idempotent
	}

	b.ctx, b.cancel = context.WithCancel(ctx)
	b.queue = make(chan delivery, b.queueSize)
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	b.started = true
	return nil
}

// Send schedules delivery of data to every connection whose pattern
// matches topic, in registry insertion order. It returns once all
// deliveries are queued; completion order across connections is
// unspecified. Scheduling blocks only when the queue bound is reached.
func (b *Broadcaster) Send(topic string, data []byte) error {
	return b.schedule(data, func(conn *registry.Connection) bool {
		return conn.Matches(topic)
	})
}

// Broadcast schedules delivery of data to every registered connection,
// patterns ignored.
func (b *Broadcaster) Broadcast(data []byte) error {
	return b.schedule(data, func(*registry.Connection) bool {
		return true
	})
}

// Stop cancels every queued and in-flight delivery and waits for the
// workers to exit. A delivery whose frame write already began is allowed
// to finish the frame; queued deliveries are dropped.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	if !b.started || b.stopped {
		b.stopped = true
		b.mu.Unlock()
		return
	}
	b.stopped = true
	cancel := b.cancel
	b.mu.Unlock()

	cancel()
	b.wg.Wait()
}

func (b *Broadcaster) schedule(data []byte, match func(*registry.Connection) bool) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return ErrStopped
	}
	if !b.started {
		b.mu.Unlock()
		return ErrNotStarted
	}
	ctx, queue := b.ctx, b.queue
	b.mu.Unlock()

	for _, conn := range b.registry.Snapshot() {
		if !match(conn) {
			continue
		}
		select {
		case queue <- delivery{conn: conn, data: data}:
		case <-ctx.Done():
			return ErrStopped
		}
	}
	return nil
}

func (b *Broadcaster) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case d := <-b.queue:
			// Cancellation wins over queued work: a delivery picked up
			// after Stop is dropped, not attempted.
			select {
			case <-b.ctx.Done():
				return
			default:
			}
			b.deliver(d)
		}
	}
}

// deliver attempts one delivery. Failures are isolated: they are logged
// and counted against the connection, never propagated to other
// deliveries.
func (b *Broadcaster) deliver(d delivery) {
	if err := d.conn.Send(b.ctx, d.data); err != nil {
		b.metrics.DeliveryFailed()
		b.logger.Warn("delivery failed",
			"conn_id", d.conn.ID(),
			"error", err)
		return
	}
	b.metrics.Delivered()
}
