package broker

import (
	"context"
	"sync"

	"github.com/Daovouslabs/wsgateway-go/pkg/gateway"
)

const memoryClientBuffer = 128

// MemoryBus is an in-process pub/sub bus. Every client created from the
// same bus sees every publish on a channel it subscribed to, which makes
// it a drop-in stand-in for Redis in tests and single-process
// deployments.
type MemoryBus struct {
	mu      sync.RWMutex
	clients []*MemoryBroker
}

// NewMemoryBus creates an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Client creates a broker client attached to the bus.
func (bus *MemoryBus) Client() *MemoryBroker {
	client := &MemoryBroker{
		bus:      bus,
		channels: make(map[string]struct{}),
		incoming: make(chan gateway.BrokerMessage, memoryClientBuffer),
	}

	bus.mu.Lock()
	bus.clients = append(bus.clients, client)
	bus.mu.Unlock()
	return client
}

func (bus *MemoryBus) publish(msg gateway.BrokerMessage) {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	for _, client := range bus.clients {
		client.offer(msg)
	}
}

func (bus *MemoryBus) drop(target *MemoryBroker) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	for i, client := range bus.clients {
		if client == target {
			bus.clients = append(bus.clients[:i], bus.clients[i+1:]...)
			return
		}
	}
}

// MemoryBroker is one client handle on a MemoryBus, implementing
// gateway.Broker. Delivery is best effort: when a client's buffer is
// full, the message is dropped for that client.
type MemoryBroker struct {
	bus      *MemoryBus
	incoming chan gateway.BrokerMessage

	mu       sync.Mutex
	channels map[string]struct{}
	closed   bool
}

// Publish fans the message out to every bus client subscribed to channel,
// including this one.
func (b *MemoryBroker) Publish(ctx context.Context, channel string, data []byte) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrBrokerClosed
	}

	b.bus.publish(gateway.BrokerMessage{Channel: channel, Data: data})
	return nil
}

// Subscribe registers interest in channel. There is no acknowledgement to
// filter; only data messages ever reach the client buffer.
func (b *MemoryBroker) Subscribe(ctx context.Context, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBrokerClosed
	}
	b.channels[channel] = struct{}{}
	return nil
}

// NextMessage blocks until a message arrives, the context is cancelled or
// the broker is closed.
func (b *MemoryBroker) NextMessage(ctx context.Context) (gateway.BrokerMessage, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return gateway.BrokerMessage{}, ErrBrokerClosed
	}
	if len(b.channels) == 0 {
		b.mu.Unlock()
		return gateway.BrokerMessage{}, ErrNotSubscribed
	}
	b.mu.Unlock()

	select {
	case <-ctx.Done():
		return gateway.BrokerMessage{}, ctx.Err()
	case msg, ok := <-b.incoming:
		if !ok {
			return gateway.BrokerMessage{}, ErrBrokerClosed
		}
		return msg, nil
	}
}

// Close detaches the client from the bus.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.bus.drop(b)
	close(b.incoming)
	return nil
}

func (b *MemoryBroker) offer(msg gateway.BrokerMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if _, ok := b.channels[msg.Channel]; !ok {
		return
	}
	select {
	case b.incoming <- msg:
	default:
		// Best effort at most once: drop on overflow.
	}
}

var _ gateway.Broker = (*MemoryBroker)(nil)
