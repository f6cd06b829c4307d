// Package broker provides the pub/sub clients that implement the
// gateway.Broker contract: a Redis-backed client for multi-instance
// deployments and an in-memory bus for tests and single-process setups.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/Daovouslabs/wsgateway-go/pkg/gateway"
)

var (
	// ErrNotSubscribed is returned by NextMessage before Subscribe.
	ErrNotSubscribed = errors.New("broker: not subscribed")
	// ErrBrokerClosed is returned once the broker client is closed.
	ErrBrokerClosed = errors.New("broker: closed")
)

// RedisConfig configures the Redis broker client.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SetDefaults fills unset fields with safe defaults.
func (c *RedisConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
}

// Validate checks the configuration.
func (c *RedisConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("redis addr cannot be empty")
	}
	return nil
}

// RedisBroker implements gateway.Broker over Redis pub/sub. Reconnection
// and retry on the subscription are handled by the go-redis client.
type RedisBroker struct {
	client *redis.Client
	logger *slog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	closed bool
}

// NewRedis creates a Redis broker client. A nil logger falls back to
// slog.Default.
func NewRedis(config RedisConfig, logger *slog.Logger) (*RedisBroker, error) {
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return &RedisBroker{
		client: client,
		logger: logger.With("component", "redis-broker"),
	}, nil
}

// Ping checks connectivity to the Redis server.
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Publish sends data to every subscriber of channel.
func (b *RedisBroker) Publish(ctx context.Context, channel string, data []byte) error {
	return b.client.Publish(ctx, channel, data).Err()
}

// Subscribe opens the pub/sub subscription and waits for the server to
// confirm it.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBrokerClosed
	}
	pubsub := b.client.Subscribe(ctx, channel)
	// Receive consumes the subscription acknowledgement so it never
	// surfaces as a data message.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %q: %w", channel, err)
	}
	b.pubsub = pubsub
	b.logger.Info("subscribed", "channel", channel)
	return nil
}

// NextMessage blocks until the next data message arrives on the
// subscription. Subscribe/unsubscribe acknowledgements are filtered by
// the underlying client.
func (b *RedisBroker) NextMessage(ctx context.Context) (gateway.BrokerMessage, error) {
	b.mu.Lock()
	pubsub := b.pubsub
	closed := b.closed
	b.mu.Unlock()

	if closed {
		return gateway.BrokerMessage{}, ErrBrokerClosed
	}
	if pubsub == nil {
		return gateway.BrokerMessage{}, ErrNotSubscribed
	}

	msg, err := pubsub.ReceiveMessage(ctx)
	if err != nil {
		return gateway.BrokerMessage{}, err
	}
	return gateway.BrokerMessage{
		Channel: msg.Channel,
		Data:    []byte(msg.Payload),
	}, nil
}

// Close tears down the subscription and the client connection.
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.pubsub != nil {
		if err := b.pubsub.Close(); err != nil {
			b.logger.Warn("closing subscription", "error", err)
		}
		b.pubsub = nil
	}
	return b.client.Close()
}

var _ gateway.Broker = (*RedisBroker)(nil)
