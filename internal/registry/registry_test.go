package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Daovouslabs/wsgateway-go/pkg/gateway"
)

// fakeTransport records handshake, send and close activity.
type fakeTransport struct {
	mu         sync.Mutex
	acceptErr  error
	sendErr    error
	accepted   bool
	closeCount int
	closeCode  int
	sent       [][]byte
}

func (f *fakeTransport) Accept(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acceptErr != nil {
		return f.acceptErr
	}
	f.accepted = true
	return nil
}

func (f *fakeTransport) Send(ctx context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeTransport) Close(code int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCount++
	f.closeCode = code
	return nil
}

func (f *fakeTransport) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCount
}

var _ gateway.Transport = (*fakeTransport)(nil)

func TestRegistry_NewConnection(t *testing.T) {
	r := New(nil)
	ctx := context.Background()
	transport := &fakeTransport{}

	conn, err := r.NewConnection(ctx, transport, "c1", "room/+")
	if err != nil {
		t.Fatalf("NewConnection failed: %v", err)
	}

	if !transport.accepted {
		t.Error("expected transport handshake to be accepted")
	}
	if conn.ID() != "c1" {
		t.Errorf("expected id 'c1', got %q", conn.ID())
	}
	if conn.Pattern() != "room/+" {
		t.Errorf("expected pattern 'room/+', got %q", conn.Pattern())
	}
	if conn.State() != StateOpen {
		t.Errorf("expected state open, got %v", conn.State())
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 registered connection, got %d", r.Len())
	}
	if got, ok := r.Get("c1"); !ok || got != conn {
		t.Error("expected Get to return the registered connection")
	}
}

func TestRegistry_NewConnection_HandshakeFailure(t *testing.T) {
	r := New(nil)
	transport := &fakeTransport{acceptErr: errors.New("refused")}

	_, err := r.NewConnection(context.Background(), transport, "c1", "")
	if !errors.Is(err, ErrHandshake) {
		t.Fatalf("expected ErrHandshake, got %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("expected empty registry after failed handshake, got %d", r.Len())
	}
}

func TestRegistry_NewConnection_DuplicateID(t *testing.T) {
	r := New(nil)
	ctx := context.Background()

	if _, err := r.NewConnection(ctx, &fakeTransport{}, "c1", ""); err != nil {
		t.Fatalf("first NewConnection failed: %v", err)
	}

	_, err := r.NewConnection(ctx, &fakeTransport{}, "c1", "")
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 registered connection, got %d", r.Len())
	}
}

func TestRegistry_RemoveConnection(t *testing.T) {
	r := New(nil)
	transport := &fakeTransport{}
	conn, err := r.NewConnection(context.Background(), transport, "c1", "room/+")
	if err != nil {
		t.Fatalf("NewConnection failed: %v", err)
	}

	if err := r.RemoveConnection(conn, gateway.CloseNormal); err != nil {
		t.Fatalf("RemoveConnection failed: %v", err)
	}

	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
	if transport.closes() != 1 {
		t.Errorf("expected exactly one transport close, got %d", transport.closes())
	}
	if transport.closeCode != gateway.CloseNormal {
		t.Errorf("expected close code %d, got %d", gateway.CloseNormal, transport.closeCode)
	}
	if conn.State() != StateClosed {
		t.Errorf("expected state closed, got %v", conn.State())
	}
}

func TestRegistry_RemoveConnection_AlreadyClosed(t *testing.T) {
	r := New(nil)
	transport := &fakeTransport{}
	conn, err := r.NewConnection(context.Background(), transport, "c1", "")
	if err != nil {
		t.Fatalf("NewConnection failed: %v", err)
	}

	if err := r.RemoveConnection(conn, gateway.CloseNormal); err != nil {
		t.Fatalf("first RemoveConnection failed: %v", err)
	}

	err = r.RemoveConnection(conn, gateway.CloseNormal)
	if !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("expected ErrTransportClosed, got %v", err)
	}
	if transport.closes() != 1 {
		t.Errorf("expected no second transport close, got %d", transport.closes())
	}
}

func TestRegistry_RawRemoveConnection(t *testing.T) {
	r := New(nil)
	transport := &fakeTransport{}
	conn, err := r.NewConnection(context.Background(), transport, "c1", "")
	if err != nil {
		t.Fatalf("NewConnection failed: %v", err)
	}

	if err := r.RawRemoveConnection(conn); err != nil {
		t.Fatalf("RawRemoveConnection failed: %v", err)
	}

	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
	if transport.closes() != 0 {
		t.Errorf("expected transport close to never run, got %d calls", transport.closes())
	}
}

func TestRegistry_RemoveUnregistered(t *testing.T) {
	r := New(nil)
	conn := newConnection(&fakeTransport{}, "ghost", "")

	if err := r.RawRemoveConnection(conn); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

func TestRegistry_SnapshotInsertionOrder(t *testing.T) {
	r := New(nil)
	ctx := context.Background()

	ids := []string{"c1", "c2", "c3"}
	for _, id := range ids {
		if _, err := r.NewConnection(ctx, &fakeTransport{}, id, ""); err != nil {
			t.Fatalf("NewConnection(%s) failed: %v", id, err)
		}
	}

	// Remove the middle connection; order of the rest must be preserved.
	conn, _ := r.Get("c2")
	if err := r.RemoveConnection(conn, gateway.CloseNormal); err != nil {
		t.Fatalf("RemoveConnection failed: %v", err)
	}

	snapshot := r.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 connections, got %d", len(snapshot))
	}
	if snapshot[0].ID() != "c1" || snapshot[1].ID() != "c3" {
		t.Errorf("expected order [c1 c3], got [%s %s]", snapshot[0].ID(), snapshot[1].ID())
	}
}

func TestConnection_SendAfterClose(t *testing.T) {
	r := New(nil)
	conn, err := r.NewConnection(context.Background(), &fakeTransport{}, "c1", "")
	if err != nil {
		t.Fatalf("NewConnection failed: %v", err)
	}

	if err := r.RemoveConnection(conn, gateway.CloseNormal); err != nil {
		t.Fatalf("RemoveConnection failed: %v", err)
	}

	if err := conn.Send(context.Background(), []byte("late")); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("expected ErrTransportClosed, got %v", err)
	}
}

func TestConnection_Matches(t *testing.T) {
	tests := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"room/+", "room/42", true},
		{"room/+", "lobby/1", false},
		{"room/#", "room/42/seat/7", true},
		{"", "room/42", false}, // no pattern: broadcasts only
	}

	for _, tt := range tests {
		conn := newConnection(&fakeTransport{}, "c", tt.pattern)
		if got := conn.Matches(tt.topic); got != tt.want {
			t.Errorf("pattern %q topic %q: got %v, want %v", tt.pattern, tt.topic, got, tt.want)
		}
	}
}
