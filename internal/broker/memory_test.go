package broker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func nextWithTimeout(t *testing.T, b *MemoryBroker) (string, []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msg, err := b.NextMessage(ctx)
	if err != nil {
		t.Fatalf("NextMessage failed: %v", err)
	}
	return msg.Channel, msg.Data
}

func TestMemoryBroker_PublishReachesAllSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	a := bus.Client()
	b := bus.Client()
	ctx := context.Background()

	if err := a.Subscribe(ctx, "gw"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := b.Subscribe(ctx, "gw"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := a.Publish(ctx, "gw", []byte("hi")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// The publisher receives its own echo; there is no self-filtering.
	for _, client := range []*MemoryBroker{a, b} {
		channel, data := nextWithTimeout(t, client)
		if channel != "gw" || string(data) != "hi" {
			t.Errorf("got (%s, %s), want (gw, hi)", channel, data)
		}
	}
}

func TestMemoryBroker_UnsubscribedChannelIgnored(t *testing.T) {
	bus := NewMemoryBus()
	a := bus.Client()
	b := bus.Client()
	ctx := context.Background()

	if err := a.Subscribe(ctx, "gw"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := b.Publish(ctx, "other", []byte("x")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := b.Publish(ctx, "gw", []byte("y")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	channel, data := nextWithTimeout(t, a)
	if channel != "gw" || string(data) != "y" {
		t.Errorf("got (%s, %s), want (gw, y)", channel, data)
	}
}

func TestMemoryBroker_NextMessageRequiresSubscription(t *testing.T) {
	bus := NewMemoryBus()
	client := bus.Client()

	_, err := client.NextMessage(context.Background())
	if !errors.Is(err, ErrNotSubscribed) {
		t.Fatalf("expected ErrNotSubscribed, got %v", err)
	}
}

func TestMemoryBroker_NextMessageHonorsContext(t *testing.T) {
	bus := NewMemoryBus()
	client := bus.Client()
	if err := client.Subscribe(context.Background(), "gw"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.NextMessage(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestMemoryBroker_Close(t *testing.T) {
	bus := NewMemoryBus()
	client := bus.Client()
	ctx := context.Background()

	if err := client.Subscribe(ctx, "gw"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}

	if err := client.Publish(ctx, "gw", []byte("x")); !errors.Is(err, ErrBrokerClosed) {
		t.Fatalf("expected ErrBrokerClosed, got %v", err)
	}
	if _, err := client.NextMessage(ctx); !errors.Is(err, ErrBrokerClosed) {
		t.Fatalf("expected ErrBrokerClosed, got %v", err)
	}

	// A closed client no longer receives bus traffic.
	other := bus.Client()
	if err := other.Subscribe(ctx, "gw"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := other.Publish(ctx, "gw", []byte("x")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	channel, _ := nextWithTimeout(t, other)
	if channel != "gw" {
		t.Errorf("expected gw, got %s", channel)
	}
}
